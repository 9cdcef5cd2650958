package txpipe

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Resolve fills the unset fields of p from a web3 endpoint: pending
// nonce, suggested gas price and an estimated gas limit. Fields the
// caller already set are left alone. Without an endpoint configured
// Resolve is a no-op; materialization falls back to defaults.
func Resolve(ctx context.Context, endpoint string, from common.Address, p *TxParams) error {
	if endpoint == "" {
		return nil
	}

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("dial web3api: %w", err)
	}
	defer client.Close()

	if p.ChainID == nil {
		id, err := client.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("fetch chain id: %w", err)
		}
		v := id.Uint64()
		p.ChainID = &v
	}
	if p.Nonce == nil {
		nonce, err := client.PendingNonceAt(ctx, from)
		if err != nil {
			return fmt.Errorf("fetch pending nonce: %w", err)
		}
		p.Nonce = &nonce
	}
	if p.GasPrice == nil {
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("suggest gas price: %w", err)
		}
		p.GasPrice = price
	}
	if p.GasLimit == nil {
		limit, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    p.To,
			Value: p.Value,
			Data:  p.Data,
		})
		if err != nil {
			return fmt.Errorf("estimate gas: %w", err)
		}
		p.GasLimit = &limit
	}
	return nil
}
