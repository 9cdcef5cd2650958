// Package txpipe builds Ethereum-compatible typed transactions, fills
// missing fields from a web3 endpoint, and signs or broadcasts them
// through a connected wallet session.
package txpipe

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrWeb3APIRequired is returned when a contract-kind transaction
	// is built without a web3api endpoint
	ErrWeb3APIRequired = errors.New("web3api url is required for contract transactions")

	// ErrChainIDRequired is returned when neither the caller nor the
	// session supplied a chain id
	ErrChainIDRequired = errors.New("chain id is required")

	// ErrHashMismatch is returned when the hash reported by the wallet
	// does not match the locally computed hash of the broadcast bytes
	ErrHashMismatch = errors.New("broadcast hash does not match signed transaction")
)

// TxCommon carries the caller-supplied overrides shared by every
// transaction kind. Empty string fields are inferred or defaulted;
// non-empty fields must parse as decimal integers.
type TxCommon struct {
	From       string `json:"from"`
	Nonce      string `json:"nonce"`
	GasLimit   string `json:"gas_limit"`
	GasPrice   string `json:"gas_price"`
	ChainID    uint64 `json:"chain_id"`
	Web3APIURL string `json:"web3api_url"`
	LegacyTx   bool   `json:"legacy_tx"`
}

// Legacy reports whether the caller asked for a pre-fee-market
// transaction.
func (c TxCommon) Legacy() bool { return c.LegacyTx }

// FromAddress parses the optional signer address override. Empty means
// the session's first account signs.
func (c TxCommon) FromAddress() (common.Address, error) {
	if c.From == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(c.From) {
		return common.Address{}, fmt.Errorf("from: %q is not a hex address", c.From)
	}
	return common.HexToAddress(c.From), nil
}

// parseDec parses a non-empty decimal string into a big integer.
func parseDec(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s %q is not a decimal integer", field, s)
	}
	return v, nil
}

// parseDecUint64 parses a non-empty decimal string into a uint64.
func parseDecUint64(field, s string) (uint64, error) {
	v, err := parseDec(field, s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s %q overflows uint64", field, s)
	}
	return v.Uint64(), nil
}
