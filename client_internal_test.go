package wconnect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/wconnect/internal/envelope"
)

// faultyRelay fails Subscribe or Publish on demand.
type faultyRelay struct {
	subscribeErr error
	publishErr   error
	messages     chan RelayMessage
}

func (r *faultyRelay) Subscribe(ctx context.Context, topic string) error { return r.subscribeErr }
func (r *faultyRelay) Publish(ctx context.Context, topic, payload string) error {
	return r.publishErr
}
func (r *faultyRelay) Messages() <-chan RelayMessage { return r.messages }
func (r *faultyRelay) Close() error                  { return nil }

func TestWipePairingKeys(t *testing.T) {
	secret, _, err := envelope.GenerateKeyPair()
	require.NoError(t, err)
	info := &SessionInfo{Key: secret}

	wipePairingKeys(info, &secret)

	assert.Equal(t, envelope.Key{}, secret)
	assert.Equal(t, envelope.Key{}, info.Key)
}

func TestNewFailsWhenRelayRejectsSubscribe(t *testing.T) {
	relay := &faultyRelay{subscribeErr: errors.New("relay down")}
	_, err := New(context.Background(), relay, "https://bridge.example.org", Metadata{Name: "test"}, 0, zaptest.NewLogger(t).Sugar())
	require.ErrorContains(t, err, "subscribe handshake topic")
}

func TestNewFailsWhenRelayRejectsPublish(t *testing.T) {
	relay := &faultyRelay{publishErr: errors.New("relay down")}
	_, err := New(context.Background(), relay, "https://bridge.example.org", Metadata{Name: "test"}, 0, zaptest.NewLogger(t).Sugar())
	require.ErrorContains(t, err, "publish session proposal")
}
