package txpipe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Transfer is a plain value transfer request.
type Transfer struct {
	To     string `json:"to_address"`
	Amount string `json:"amount"`
	TxCommon
}

// ContractCall is a token approve or transfer request against an
// ERC-20 contract. Amounts are base units of the token.
type ContractCall struct {
	Contract string `json:"contract_address"`
	To       string `json:"to_address"`
	Amount   string `json:"amount"`
	TxCommon
}

// BuildTransfer constructs the params of a native value transfer.
// Callers without a configured endpoint get a fully deterministic
// transaction as long as nonce, gas and chain id are supplied in the
// overrides.
func BuildTransfer(req Transfer) (*TxParams, error) {
	to, err := parseAddress("to_address", req.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseDec("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	p := &TxParams{
		Legacy: req.Legacy(),
		To:     &to,
		Value:  amount,
	}
	if err := p.ApplyCommon(req.TxCommon); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildContractApproval constructs an ERC-20 approve(spender, amount)
// call. Contract calls need gas estimated against live state, so an
// endpoint is mandatory.
func BuildContractApproval(req ContractCall) (*TxParams, error) {
	return buildTokenCall("approve", req)
}

// BuildContractTransfer constructs an ERC-20 transfer(to, amount) call.
func BuildContractTransfer(req ContractCall) (*TxParams, error) {
	return buildTokenCall("transfer", req)
}

func buildTokenCall(method string, req ContractCall) (*TxParams, error) {
	if req.Web3APIURL == "" {
		return nil, ErrWeb3APIRequired
	}
	contract, err := parseAddress("contract_address", req.Contract)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to_address", req.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseDec("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	data, err := erc20.Pack(method, to, amount)
	if err != nil {
		return nil, fmt.Errorf("pack %s calldata: %w", method, err)
	}

	p := &TxParams{
		Legacy: req.Legacy(),
		To:     &contract,
		Value:  new(big.Int),
		Data:   data,
	}
	if err := p.ApplyCommon(req.TxCommon); err != nil {
		return nil, err
	}
	return p, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}
