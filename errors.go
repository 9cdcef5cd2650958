package wconnect

import (
	"errors"
)

var (
	// ErrNoSession is returned when an operation needs a connected
	// session and none exists
	ErrNoSession = errors.New("no active session")

	// ErrPeerRejected is returned when the wallet explicitly declined a
	// request; retrying without user action will not help
	ErrPeerRejected = errors.New("request rejected by peer")

	// ErrPeerDisconnected is returned when the relay channel dropped
	// while a request was outstanding
	ErrPeerDisconnected = errors.New("peer disconnected")

	// ErrInvalidSession is returned when a serialized session record is
	// empty or violates the session invariants
	ErrInvalidSession = errors.New("invalid session record")

	// ErrMalformedPayload is returned when the peer sent data that does
	// not parse as the expected protocol structure
	ErrMalformedPayload = errors.New("malformed payload from peer")

	// ErrInvalidSignature is returned when signature bytes from the peer
	// do not recover to the expected address
	ErrInvalidSignature = errors.New("invalid signature from peer")

	// ErrRequestInFlight is returned when a second signing request is
	// issued while one is outstanding; callers must serialize signing
	// requests per client
	ErrRequestInFlight = errors.New("another request is in flight")

	// ErrClientClosed is returned for operations on a closed client
	ErrClientClosed = errors.New("client closed")
)
