package wconnect

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/wconnect/internal/envelope"
)

// State is the lifecycle state of a session client.
type State int

const (
	// StateIdle means no pairing has been attempted yet.
	StateIdle State = iota

	// StatePairing means local keys exist and the proposal has been
	// published on the handshake topic.
	StatePairing

	// StateAwaitingApproval means the peer opened the relay channel and
	// the client is waiting for the settlement payload.
	StateAwaitingApproval

	// StateConnected means the session is established with accounts and
	// a chain id.
	StateConnected

	// StateDisconnected is terminal for this client instance.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePairing:
		return "pairing"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Metadata describes one end of a pairing to the other.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// SessionInfo is the serializable record describing one pairing. It is
// the persisted-state layout produced by Client.Save and consumed by
// Restore; unknown fields are ignored on read for forward compatibility.
//
// Key holds the local X25519 secret while pairing and the derived
// session symmetric key once connected. It serializes as 0x-hex inside
// this record and nowhere else.
type SessionInfo struct {
	Connected      bool             `json:"connected"`
	ChainID        *uint64          `json:"chain_id,omitempty"`
	Accounts       []common.Address `json:"accounts"`
	Bridge         string           `json:"bridge"`
	Key            envelope.Key     `json:"key"`
	PublicKey      string           `json:"public_key"`
	ClientID       string           `json:"client_id"`
	ClientMeta     Metadata         `json:"client_meta"`
	PeerID         string           `json:"peer_id,omitempty"`
	PeerMeta       *Metadata        `json:"peer_meta,omitempty"`
	HandshakeTopic string           `json:"handshake_topic"`
}

// Valid reports whether the record satisfies the session invariant: a
// connected session always carries at least one account and a chain id.
func (s *SessionInfo) Valid() bool {
	if s == nil {
		return false
	}
	if s.Connected && (len(s.Accounts) == 0 || s.ChainID == nil) {
		return false
	}
	return true
}

// clone returns a deep copy so observers never share mutable state with
// the client run loop.
func (s *SessionInfo) clone() *SessionInfo {
	if s == nil {
		return nil
	}
	out := *s
	out.Accounts = append([]common.Address(nil), s.Accounts...)
	out.ClientMeta.Icons = append([]string(nil), s.ClientMeta.Icons...)
	if s.ChainID != nil {
		id := *s.ChainID
		out.ChainID = &id
	}
	if s.PeerMeta != nil {
		meta := *s.PeerMeta
		meta.Icons = append([]string(nil), s.PeerMeta.Icons...)
		out.PeerMeta = &meta
	}
	return &out
}

// Marshal serializes the record for persistence.
func (s *SessionInfo) Marshal() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// UnmarshalSessionInfo parses a serialized session record. An empty
// input or a record violating the session invariant yields
// ErrInvalidSession.
func UnmarshalSessionInfo(serialized string) (*SessionInfo, error) {
	if serialized == "" {
		return nil, ErrInvalidSession
	}
	var info SessionInfo
	if err := json.Unmarshal([]byte(serialized), &info); err != nil {
		return nil, ErrInvalidSession
	}
	if !info.Valid() {
		return nil, ErrInvalidSession
	}
	return &info, nil
}

// MessageState tags a lifecycle event delivered to the observer.
type MessageState int

const (
	MessageConnecting MessageState = iota
	MessageConnected
	MessageDisconnected
	MessageUpdated
)

func (m MessageState) String() string {
	switch m {
	case MessageConnecting:
		return "connecting"
	case MessageConnected:
		return "connected"
	case MessageDisconnected:
		return "disconnected"
	case MessageUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// ClientChannelMessage is one ordered lifecycle event. Session is a
// snapshot copy; a Disconnected event may carry the stale former session
// for cleanup.
type ClientChannelMessage struct {
	State   MessageState `json:"state"`
	Session *SessionInfo `json:"session,omitempty"`
}
