// Package explorer queries a BlockScout instance for token balances
// and token transfer history of an account.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// QueryOption selects how transfer history is filtered.
type QueryOption int

const (
	// ByAddress returns every token transfer touching the address
	ByAddress QueryOption = iota
	// ByContract returns transfers of one token contract regardless
	// of the account; the address argument may be empty
	ByContract
	// ByAddressAndContract narrows the history to one token contract
	ByAddressAndContract
)

// ErrBadStatus is returned when BlockScout reports a non-ok status in
// the response envelope.
var ErrBadStatus = errors.New("blockscout returned error status")

// Token is one token balance held by an address.
type Token struct {
	Balance         string
	ContractAddress string
	Decimals        string
	Name            string
	Symbol          string
	TokenType       string
}

// Amount scales the raw balance by the token's decimal places.
// Tokens without a decimals field (ERC-721) scale by zero.
func (t Token) Amount() decimal.Decimal {
	raw, err := decimal.NewFromString(t.Balance)
	if err != nil {
		return decimal.Zero
	}
	exp, err := decimal.NewFromString(t.Decimals)
	if err != nil || !exp.IsInteger() {
		return raw
	}
	return raw.Shift(int32(-exp.IntPart()))
}

// TransferDetail is one historical token transfer.
type TransferDetail struct {
	Hash            string
	ToAddress       string
	FromAddress     string
	Value           string
	BlockNumber     uint64
	Timestamp       time.Time
	ContractAddress string
}

// Client talks to one BlockScout REST endpoint, e.g.
// https://blockscout.com/xdai/mainnet/api.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Tokens lists the token balances owned by the address.
func (c *Client) Tokens(ctx context.Context, address string) ([]Token, error) {
	query := url.Values{
		"module":  {"account"},
		"action":  {"tokenlist"},
		"address": {address},
	}
	body, err := c.get(ctx, query)
	if err != nil {
		return nil, err
	}

	var tokens []Token
	gjson.GetBytes(body, "result").ForEach(func(_, item gjson.Result) bool {
		tokens = append(tokens, Token{
			Balance:         item.Get("balance").String(),
			ContractAddress: item.Get("contractAddress").String(),
			Decimals:        item.Get("decimals").String(),
			Name:            item.Get("name").String(),
			Symbol:          item.Get("symbol").String(),
			TokenType:       item.Get("type").String(),
		})
		return true
	})
	return tokens, nil
}

// TokenTransfers returns the token transfer history of the address.
// The contract address is consulted only with ByAddressAndContract.
func (c *Client) TokenTransfers(ctx context.Context, address, contractAddress string, option QueryOption) ([]TransferDetail, error) {
	query := url.Values{
		"module":  {"account"},
		"action":  {"tokentx"},
		"address": {address},
	}
	if option == ByAddressAndContract {
		query.Set("contractaddress", contractAddress)
	}
	if option == ByContract {
		query.Del("address")
		query.Set("contractaddress", contractAddress)
	}

	body, err := c.get(ctx, query)
	if err != nil {
		return nil, err
	}

	return decodeTransfers(body), nil
}

func (c *Client) get(ctx context.Context, query url.Values) ([]byte, error) {
	return fetch(ctx, c.http, c.log, c.baseURL, query)
}

func decodeTransfers(body []byte) []TransferDetail {
	var transfers []TransferDetail
	gjson.GetBytes(body, "result").ForEach(func(_, item gjson.Result) bool {
		transfers = append(transfers, TransferDetail{
			Hash:            item.Get("hash").String(),
			ToAddress:       item.Get("to").String(),
			FromAddress:     item.Get("from").String(),
			Value:           item.Get("value").String(),
			BlockNumber:     item.Get("blockNumber").Uint(),
			Timestamp:       time.Unix(item.Get("timeStamp").Int(), 0).UTC(),
			ContractAddress: item.Get("contractAddress").String(),
		})
		return true
	})
	return transfers
}

func fetch(ctx context.Context, hc *http.Client, log *zap.Logger, baseURL string, query url.Values) ([]byte, error) {
	reqURL := baseURL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query explorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query explorer: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// The API reports status "0" with message "No transactions found"
	// for empty result sets; that is not an error.
	status := gjson.GetBytes(body, "status").String()
	if status != "1" && !gjson.GetBytes(body, "result").IsArray() {
		log.Debug("explorer error response",
			zap.String("status", status),
			zap.String("message", gjson.GetBytes(body, "message").String()))
		return nil, ErrBadStatus
	}
	return body, nil
}
