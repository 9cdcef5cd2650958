package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/layer-3/wconnect"
)

// LifecycleEvent represents one session lifecycle transition
type LifecycleEvent struct {
	State    string `json:"state"`
	ClientID string `json:"client_id"`
	PeerID   string `json:"peer_id,omitempty"`
	ChainID  uint64 `json:"chain_id,omitempty"`
	Accounts int    `json:"accounts,omitempty"`
}

// WatermillPublisher implements the Callback interface using Watermill,
// fanning session lifecycle transitions out to a message broker.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	log       *zap.Logger
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, log *zap.Logger) wconnect.Callback {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     "wconnect.lifecycle",
		log:       log,
	}
}

func (p *WatermillPublisher) OnConnecting(s *wconnect.SessionInfo)   { p.publish("connecting", s) }
func (p *WatermillPublisher) OnConnected(s *wconnect.SessionInfo)    { p.publish("connected", s) }
func (p *WatermillPublisher) OnDisconnected(s *wconnect.SessionInfo) { p.publish("disconnected", s) }
func (p *WatermillPublisher) OnUpdated(s *wconnect.SessionInfo)      { p.publish("updated", s) }

// publish is invoked from the dispatcher goroutine, which tolerates no
// errors; failures are logged and the event dropped.
func (p *WatermillPublisher) publish(state string, s *wconnect.SessionInfo) {
	event := LifecycleEvent{
		State:    state,
		ClientID: s.ClientID,
		PeerID:   s.PeerID,
		Accounts: len(s.Accounts),
	}
	if s.ChainID != nil {
		event.ChainID = *s.ChainID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal lifecycle event", zap.Error(err))
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.log.Error("failed to publish lifecycle event",
			zap.String("state", state), zap.Error(err))
	}
}
