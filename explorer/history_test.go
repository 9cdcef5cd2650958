package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const txListBody = `{
	"message": "OK",
	"status": "1",
	"result": [
		{
			"blockNumber": "7500001",
			"timeStamp": "1660000000",
			"hash": "0x18dfb5e776e6a43bdbd051e84b13ca36bb34321b6ad0b904575dea0e4fa4a4a0",
			"from": "0x3f349bbafec1551819b8be1efea2fc46ca749aa1",
			"to": "0xcbb6f0a5959fa0d0e8d63d2dd5e7786feb61fd33",
			"value": "250000000000000000",
			"contractAddress": ""
		},
		{
			"blockNumber": "7499980",
			"timeStamp": "1659999000",
			"hash": "0x9c9a2d2d7d6fd2d5b61c1b3cb02b0b2bdfb776bd3ba70b6541767db4c422a6f9",
			"from": "0xcbb6f0a5959fa0d0e8d63d2dd5e7786feb61fd33",
			"to": "0x6b175474e89094c44da98b954eedeac495271d0f",
			"value": "0",
			"contractAddress": ""
		}
	]
}`

const nftTxBody = `{
	"message": "OK",
	"status": "1",
	"result": [
		{
			"blockNumber": "4708120",
			"timeStamp": "1512907118",
			"hash": "0x031e6968a8de362e4328d60dcc7f72f0d6fc84284c452f63176632177146de66",
			"from": "0xb1690c08e213a35ed9bab7b318de14420fb57d8c",
			"to": "0x6975be450864c02b4613023c2152ee0743572325",
			"value": "0",
			"contractAddress": "0x06012c8cf97bead5deae237070f9587f8e7a266d"
		}
	]
}`

func newHistoryTestClient(t *testing.T, handler http.HandlerFunc) *HistoryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHistoryClient(srv.URL, "test-api-key", zaptest.NewLogger(t))
}

func TestTransactions(t *testing.T) {
	client := newHistoryTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "account", r.URL.Query().Get("module"))
		assert.Equal(t, "txlist", r.URL.Query().Get("action"))
		assert.Equal(t, "0xabc", r.URL.Query().Get("address"))
		assert.Equal(t, "test-api-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(txListBody))
	})

	txs, err := client.Transactions(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, uint64(7500001), txs[0].BlockNumber)
	assert.Equal(t, "250000000000000000", txs[0].Value)
	assert.Empty(t, txs[0].ContractAddress)
	assert.Equal(t, int64(1660000000), txs[0].Timestamp.Unix())
}

func TestERC20TransfersByAddress(t *testing.T) {
	client := newHistoryTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tokentx", r.URL.Query().Get("action"))
		assert.Equal(t, "0xabc", r.URL.Query().Get("address"))
		assert.Empty(t, r.URL.Query().Get("contractaddress"))
		w.Write([]byte(tokenTxBody))
	})

	transfers, err := client.ERC20Transfers(context.Background(), "0xabc", "", ByAddress)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0x6b175474e89094c44da98b954eedeac495271d0f", transfers[0].ContractAddress)
}

func TestERC20TransfersByContract(t *testing.T) {
	client := newHistoryTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("address"))
		assert.Equal(t, "0xcontract", r.URL.Query().Get("contractaddress"))
		w.Write([]byte(tokenTxBody))
	})

	_, err := client.ERC20Transfers(context.Background(), "", "0xcontract", ByContract)
	require.NoError(t, err)
}

func TestERC20TransfersByAddressAndContract(t *testing.T) {
	client := newHistoryTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc", r.URL.Query().Get("address"))
		assert.Equal(t, "0xcontract", r.URL.Query().Get("contractaddress"))
		w.Write([]byte(tokenTxBody))
	})

	_, err := client.ERC20Transfers(context.Background(), "0xabc", "0xcontract", ByAddressAndContract)
	require.NoError(t, err)
}

func TestERC721Transfers(t *testing.T) {
	client := newHistoryTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tokennfttx", r.URL.Query().Get("action"))
		w.Write([]byte(nftTxBody))
	})

	transfers, err := client.ERC721Transfers(context.Background(), "0xabc", "", ByAddress)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0x06012c8cf97bead5deae237070f9587f8e7a266d", transfers[0].ContractAddress)
}

func TestHistoryErrorEnvelope(t *testing.T) {
	client := newHistoryTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"Invalid API Key","status":"0","result":null}`))
	})

	_, err := client.Transactions(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrBadStatus)
}
