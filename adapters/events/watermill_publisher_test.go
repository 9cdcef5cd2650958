package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/wconnect"
)

func TestPublishesLifecycleTransitions(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(t.Context(), "wconnect.lifecycle")
	require.NoError(t, err)

	chainID := uint64(25)
	session := &wconnect.SessionInfo{
		Connected: true,
		ClientID:  "client-1",
		PeerID:    "peer-1",
		ChainID:   &chainID,
	}

	cb := NewWatermillPublisher(pubSub, zaptest.NewLogger(t))
	cb.OnConnected(session)

	select {
	case msg := <-messages:
		msg.Ack()
		var event LifecycleEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "connected", event.State)
		assert.Equal(t, "client-1", event.ClientID)
		assert.Equal(t, "peer-1", event.PeerID)
		assert.Equal(t, uint64(25), event.ChainID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestEachTransitionHasItsOwnState(t *testing.T) {
	// publishes block until the subscriber acks, so delivery order is
	// the publish order
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(t.Context(), "wconnect.lifecycle")
	require.NoError(t, err)

	session := &wconnect.SessionInfo{ClientID: "client-1"}
	cb := NewWatermillPublisher(pubSub, zaptest.NewLogger(t))

	cb.OnConnecting(session)
	cb.OnUpdated(session)
	cb.OnDisconnected(session)

	want := []string{"connecting", "updated", "disconnected"}
	for _, state := range want {
		select {
		case msg := <-messages:
			msg.Ack()
			var event LifecycleEvent
			require.NoError(t, json.Unmarshal(msg.Payload, &event))
			assert.Equal(t, state, event.State)
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", state)
		}
	}
}
