package main

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/wconnect"
	"github.com/layer-3/wconnect/adapters/relay"
	"github.com/layer-3/wconnect/adapters/store"
	"github.com/layer-3/wconnect/internal/envelope"
)

func connectedRecord(t *testing.T) string {
	t.Helper()
	key, err := envelope.KeyFromHex("0x2222222222222222222222222222222222222222222222222222222222222222")
	require.NoError(t, err)

	chainID := uint64(1)
	info := &wconnect.SessionInfo{
		Connected:      true,
		ChainID:        &chainID,
		Accounts:       []common.Address{common.HexToAddress("0x0aD0107AfE242744c98Bd4D0Af469798c8c0b2dE")},
		Bridge:         "https://bridge.example.org",
		Key:            key,
		PublicKey:      "f22533e8e3a0d0a156ab466cb232bb23d1a1e09ef7d262b205f8b315c04b475f",
		ClientID:       "persisted-client",
		ClientMeta:     wconnect.Metadata{Name: "wconnectd"},
		PeerID:         "wallet-1",
		PeerMeta:       &wconnect.Metadata{Name: "wallet"},
		HandshakeTopic: "handshake-1",
	}
	record, err := info.Marshal()
	require.NoError(t, err)
	return record
}

func TestOpenClientRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub()
	sessions := store.NewMemoryStore()
	meta := wconnect.Metadata{Name: "wconnectd"}

	require.NoError(t, sessions.Save(ctx, meta.Name, connectedRecord(t), time.Hour))

	client, err := openClient(ctx, hub.Endpoint(), "https://bridge.example.org", meta, 0, sessions, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	session, err := client.SessionSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, session.Connected)
	assert.Equal(t, "persisted-client", session.ClientID)
}

func TestOpenClientPairsFreshWithoutStore(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub()
	meta := wconnect.Metadata{Name: "wconnectd"}

	client, err := openClient(ctx, hub.Endpoint(), "https://bridge.example.org", meta, 0, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	session, err := client.SessionSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, session.Connected)
	assert.NotEmpty(t, session.HandshakeTopic)
}

func TestOpenClientPairsFreshOnBadRecord(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub()
	sessions := store.NewMemoryStore()
	meta := wconnect.Metadata{Name: "wconnectd"}

	require.NoError(t, sessions.Save(ctx, meta.Name, "{not a record", time.Hour))

	client, err := openClient(ctx, hub.Endpoint(), "https://bridge.example.org", meta, 0, sessions, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	session, err := client.SessionSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, session.Connected)
	assert.NotEqual(t, "persisted-client", session.ClientID)
}
