package txpipe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxParams is a typed transaction under construction: the tagged
// legacy/fee-market variant with every field optional until filled.
// Materialize with Transaction once the required fields are resolved.
type TxParams struct {
	Legacy bool

	To       *common.Address
	Value    *big.Int
	Data     []byte
	Nonce    *uint64
	GasLimit *uint64

	// GasPrice doubles as the max fee and max priority fee for the
	// fee-market variant, matching the single price knob in TxCommon.
	GasPrice *big.Int

	ChainID *uint64
}

// Default gas limits used when nothing was supplied and no endpoint is
// configured to estimate.
const (
	defaultTransferGas = 21000
	defaultContractGas = 100000
)

// ApplyCommon re-applies the caller-supplied overrides. Explicit values
// always win over values computed during construction. Returns a
// malformed-input error before any network or signing work when a
// non-empty numeric string does not parse.
func (p *TxParams) ApplyCommon(c TxCommon) error {
	if c.Nonce != "" {
		nonce, err := parseDecUint64("nonce", c.Nonce)
		if err != nil {
			return err
		}
		p.Nonce = &nonce
	}
	if c.GasLimit != "" {
		limit, err := parseDecUint64("gas_limit", c.GasLimit)
		if err != nil {
			return err
		}
		p.GasLimit = &limit
	}
	if c.GasPrice != "" {
		price, err := parseDec("gas_price", c.GasPrice)
		if err != nil {
			return err
		}
		p.GasPrice = price
	}
	if c.ChainID != 0 {
		id := c.ChainID
		p.ChainID = &id
	}
	return nil
}

// Transaction materializes the params into a go-ethereum typed
// transaction. The chain id must be resolved by now; other unset fields
// fall back to zero values so two materializations of identical params
// are byte-identical.
func (p *TxParams) Transaction() (*types.Transaction, error) {
	if p.ChainID == nil {
		return nil, ErrChainIDRequired
	}

	var (
		nonce    uint64
		gasLimit uint64 = defaultTransferGas
		gasPrice        = new(big.Int)
		value           = new(big.Int)
	)
	if p.Nonce != nil {
		nonce = *p.Nonce
	}
	if p.GasLimit != nil {
		gasLimit = *p.GasLimit
	} else if len(p.Data) > 0 {
		gasLimit = defaultContractGas
	}
	if p.GasPrice != nil {
		gasPrice = new(big.Int).Set(p.GasPrice)
	}
	if p.Value != nil {
		value = new(big.Int).Set(p.Value)
	}

	if p.Legacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       p.To,
			Value:    value,
			Data:     p.Data,
		}), nil
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(*p.ChainID),
		Nonce:     nonce,
		GasTipCap: new(big.Int).Set(gasPrice),
		GasFeeCap: gasPrice,
		Gas:       gasLimit,
		To:        p.To,
		Value:     value,
		Data:      p.Data,
	}), nil
}

// TxArgs is the eth_signTransaction request object sent to the
// wallet. It must describe exactly the transaction Transaction
// materializes, or the wallet would sign different bytes than the
// pipeline encodes.
type TxArgs struct {
	From                 string `json:"from"`
	To                   string `json:"to,omitempty"`
	Gas                  string `json:"gas"`
	GasPrice             string `json:"gasPrice,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	Value                string `json:"value"`
	Nonce                string `json:"nonce"`
	Data                 string `json:"data"`
	ChainID              string `json:"chainId"`
}

// CallArgs renders the wallet-facing request for the materialized
// transaction.
func (p *TxParams) CallArgs(from common.Address) (TxArgs, error) {
	tx, err := p.Transaction()
	if err != nil {
		return TxArgs{}, err
	}

	args := TxArgs{
		From:    from.Hex(),
		Gas:     hexutil.EncodeUint64(tx.Gas()),
		Value:   hexutil.EncodeBig(tx.Value()),
		Nonce:   hexutil.EncodeUint64(tx.Nonce()),
		Data:    hexutil.Encode(tx.Data()),
		ChainID: hexutil.EncodeUint64(*p.ChainID),
	}
	if tx.To() != nil {
		args.To = tx.To().Hex()
	}
	if p.Legacy {
		args.GasPrice = hexutil.EncodeBig(tx.GasPrice())
	} else {
		args.MaxFeePerGas = hexutil.EncodeBig(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = hexutil.EncodeBig(tx.GasTipCap())
	}
	return args, nil
}

func (p *TxParams) String() string {
	kind := "eip1559"
	if p.Legacy {
		kind = "legacy"
	}
	return fmt.Sprintf("txpipe.TxParams{%s}", kind)
}
