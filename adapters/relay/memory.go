// Package relay provides bridge transports: a websocket client for a
// production bridge and an in-process hub for tests.
package relay

import (
	"context"
	"sync"

	"github.com/layer-3/wconnect"
)

// Hub is an in-process bridge. Endpoints attached to the same hub
// exchange payloads by topic with the same semantics the websocket
// bridge gives: publishes to a topic nobody subscribed yet are kept
// and replayed on the first subscribe, and a publisher never receives
// its own payloads back.
type Hub struct {
	mu      sync.Mutex
	subs    map[string][]*Memory
	backlog map[string][]string
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string][]*Memory),
		backlog: make(map[string][]string),
	}
}

// Endpoint attaches a new client connection to the hub.
func (h *Hub) Endpoint() *Memory {
	return &Memory{
		hub:  h,
		msgs: make(chan wconnect.RelayMessage, 64),
	}
}

func (h *Hub) subscribe(m *Memory, topic string) {
	h.mu.Lock()
	pending := h.backlog[topic]
	delete(h.backlog, topic)
	h.subs[topic] = append(h.subs[topic], m)
	h.mu.Unlock()

	for _, payload := range pending {
		m.deliver(wconnect.RelayMessage{Topic: topic, Payload: payload})
	}
}

func (h *Hub) publish(from *Memory, topic, payload string) {
	h.mu.Lock()
	targets := make([]*Memory, 0, len(h.subs[topic]))
	for _, sub := range h.subs[topic] {
		if sub != from {
			targets = append(targets, sub)
		}
	}
	if len(targets) == 0 {
		h.backlog[topic] = append(h.backlog[topic], payload)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(wconnect.RelayMessage{Topic: topic, Payload: payload})
	}
}

func (h *Hub) detach(m *Memory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub != m {
				kept = append(kept, sub)
			}
		}
		h.subs[topic] = kept
	}
}

// Memory is one client connection to a Hub. Inbound delivery is
// buffered; payloads arriving while the buffer is full are dropped,
// which a consumer draining Messages never hits in practice.
type Memory struct {
	hub  *Hub
	msgs chan wconnect.RelayMessage

	mu     sync.RWMutex
	closed bool
}

var _ wconnect.Relay = (*Memory)(nil)

func (m *Memory) Subscribe(_ context.Context, topic string) error {
	m.hub.subscribe(m, topic)
	return nil
}

func (m *Memory) Publish(_ context.Context, topic, payload string) error {
	m.hub.publish(m, topic, payload)
	return nil
}

func (m *Memory) Messages() <-chan wconnect.RelayMessage {
	return m.msgs
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.hub.detach(m)
	close(m.msgs)
	return nil
}

func (m *Memory) deliver(msg wconnect.RelayMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.msgs <- msg:
	default:
	}
}
