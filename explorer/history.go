package explorer

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HistoryClient talks to an Etherscan compatible API (Etherscan,
// Cronoscan) which authenticates requests with an API key.
type HistoryClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewHistoryClient(baseURL, apiKey string, log *zap.Logger) *HistoryClient {
	return &HistoryClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Transactions returns the normal transaction history of the address,
// most recent first.
func (c *HistoryClient) Transactions(ctx context.Context, address string) ([]TransferDetail, error) {
	query := url.Values{
		"module":  {"account"},
		"action":  {"txlist"},
		"address": {address},
		"sort":    {"desc"},
		"apikey":  {c.apiKey},
	}
	body, err := fetch(ctx, c.http, c.log, c.baseURL, query)
	if err != nil {
		return nil, err
	}
	return decodeTransfers(body), nil
}

// ERC20Transfers returns the ERC-20 transfer events matching the
// query. The address may be empty with ByContract and the contract
// address may be empty with ByAddress.
func (c *HistoryClient) ERC20Transfers(ctx context.Context, address, contractAddress string, option QueryOption) ([]TransferDetail, error) {
	return c.transferEvents(ctx, "tokentx", address, contractAddress, option)
}

// ERC721Transfers returns the ERC-721 transfer events matching the
// query, under the same option rules as ERC20Transfers.
func (c *HistoryClient) ERC721Transfers(ctx context.Context, address, contractAddress string, option QueryOption) ([]TransferDetail, error) {
	return c.transferEvents(ctx, "tokennfttx", address, contractAddress, option)
}

func (c *HistoryClient) transferEvents(ctx context.Context, action, address, contractAddress string, option QueryOption) ([]TransferDetail, error) {
	query := url.Values{
		"module": {"account"},
		"action": {action},
		"sort":   {"desc"},
		"apikey": {c.apiKey},
	}
	switch option {
	case ByContract:
		query.Set("contractaddress", contractAddress)
	case ByAddressAndContract:
		query.Set("address", address)
		query.Set("contractaddress", contractAddress)
	default:
		query.Set("address", address)
	}

	body, err := fetch(ctx, c.http, c.log, c.baseURL, query)
	if err != nil {
		return nil, err
	}
	return decodeTransfers(body), nil
}
