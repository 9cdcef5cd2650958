package wconnect

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Protocol methods exchanged over the relay. Handshake-topic traffic
// (propose/approve) is plaintext and carries only public pairing data;
// everything on the derived session topic rides inside the type-0
// envelope.
const (
	methodSessionPropose = "wc_sessionPropose"
	methodSessionApprove = "wc_sessionApprove"
	methodSessionSettle  = "wc_sessionSettle"
	methodSessionUpdate  = "wc_sessionUpdate"
	methodSessionDelete  = "wc_sessionDelete"

	methodPersonalSign    = "personal_sign"
	methodSignTransaction = "eth_signTransaction"
	methodSendRawTx       = "eth_sendRawTransaction"
)

type jsonRPCRequest struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func newJSONRPCRequest(method string, params ...any) *jsonRPCRequest {
	if params == nil {
		params = []any{}
	}
	return &jsonRPCRequest{
		ID:      nextPayloadID(),
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

func (r *jsonRPCRequest) Marshal() string {
	raw, _ := json.Marshal(r)
	return string(raw)
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

func (r *jsonRPCResponse) Marshal() string {
	raw, _ := json.Marshal(r)
	return string(raw)
}

// sessionProposal is published plaintext on the handshake topic.
type sessionProposal struct {
	ProposerID        string   `json:"proposerId"`
	ProposerPublicKey string   `json:"proposerPublicKey"`
	ProposerMeta      Metadata `json:"proposerMeta"`
	ChainID           *uint64  `json:"chainId,omitempty"`
}

// sessionApproval is the wallet's plaintext reply on the handshake
// topic. The responder public key is all the client needs to derive the
// session topic and key; accounts arrive encrypted in the settlement.
type sessionApproval struct {
	ResponderPublicKey string `json:"responderPublicKey"`
}

// sessionSettlement is the first encrypted payload on the derived
// session topic.
type sessionSettlement struct {
	Accounts []string  `json:"accounts"`
	ChainID  uint64    `json:"chainId"`
	PeerID   string    `json:"peerId"`
	PeerMeta *Metadata `json:"peerMeta,omitempty"`
}

// sessionUpdate replaces the account/chain view without dropping the
// connection; Approved false is a remote disconnect.
type sessionUpdate struct {
	Approved bool     `json:"approved"`
	Accounts []string `json:"accounts"`
	ChainID  uint64   `json:"chainId"`
}

var payloadCounter atomic.Int64

// nextPayloadID returns a unique, monotonically increasing request id.
func nextPayloadID() int64 {
	base := time.Now().UnixNano() / 1000
	for {
		last := payloadCounter.Load()
		next := base
		if next <= last {
			next = last + 1
		}
		if payloadCounter.CompareAndSwap(last, next) {
			return next
		}
	}
}
