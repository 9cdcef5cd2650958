package wconnect

import (
	"context"
	"time"
)

// RelayMessage is one opaque payload delivered for a subscribed topic.
type RelayMessage struct {
	Topic   string
	Payload string
}

// Relay is the transport that forwards opaque payloads between peers by
// topic. Implementations deliver inbound messages on Messages in arrival
// order and close the channel when the connection is gone. Retry policy,
// if any, belongs to the implementation; the client never retries.
type Relay interface {
	// Subscribe registers interest in a topic
	Subscribe(ctx context.Context, topic string) error

	// Publish sends a payload to everyone subscribed to the topic
	Publish(ctx context.Context, topic, payload string) error

	// Messages returns the inbound stream; closed on disconnect
	Messages() <-chan RelayMessage

	// Close tears the connection down
	Close() error
}

// Callback receives lifecycle transitions. Methods are invoked from the
// dispatcher goroutine, one at a time, in event order; the SessionInfo
// argument is a snapshot the observer may retain.
type Callback interface {
	OnConnecting(*SessionInfo)
	OnConnected(*SessionInfo)
	OnDisconnected(*SessionInfo)
	OnUpdated(*SessionInfo)
}

// Store persists serialized session records.
type Store interface {
	// Save stores the record under the client id with an expiry
	Save(ctx context.Context, clientID, record string, ttl time.Duration) error

	// Load retrieves a previously saved record
	Load(ctx context.Context, clientID string) (string, error)
}
