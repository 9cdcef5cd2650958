// Package wconnect implements a WalletConnect v2 pairing client for
// dApps: it proposes a session over a relay, tracks the connection
// lifecycle, and requests message and transaction signatures from the
// paired wallet.
package wconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/layer-3/wconnect/internal/envelope"
)

// Client owns the session lifecycle for one pairing. All session state
// lives in the run loop goroutine; the exported methods are blocking
// calls that send a message to that goroutine and wait for the reply, so
// the state is never touched from two execution contexts at once.
type Client struct {
	relay Relay
	log   *zap.SugaredLogger

	requests chan func()
	events   chan ClientChannelMessage
	closed   chan struct{}
	closeOne sync.Once
	bg       sync.WaitGroup

	cbMu sync.Mutex
	cb   Callback

	// Everything below is owned by the run loop.
	state        State
	session      *SessionInfo
	sessionTopic string
	pending      *pendingRequest
	waiters      []chan ensureResult
}

type pendingRequest struct {
	id    int64
	reply chan rpcResult
}

type rpcResult struct {
	result gjson.Result
	err    error
}

type ensureResult struct {
	accounts []common.Address
	chainID  uint64
	err      error
}

// New generates a fresh key pair and handshake topic, publishes the
// session proposal, and returns a client in the Pairing state. A
// requestedChainID of zero means no preference.
func New(ctx context.Context, relay Relay, bridgeURL string, meta Metadata, requestedChainID uint64, log *zap.SugaredLogger) (*Client, error) {
	secret, publicKey, err := envelope.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate pairing keys: %w", err)
	}

	var chainID *uint64
	if requestedChainID != 0 {
		chainID = &requestedChainID
	}

	info := &SessionInfo{
		Connected:      false,
		ChainID:        chainID,
		Bridge:         bridgeURL,
		Key:            secret,
		PublicKey:      publicKey,
		ClientID:       uuid.NewString(),
		ClientMeta:     meta,
		HandshakeTopic: uuid.NewString(),
	}

	c := newClient(relay, info, StatePairing, log)

	if err := relay.Subscribe(ctx, info.HandshakeTopic); err != nil {
		wipePairingKeys(info, &secret)
		return nil, fmt.Errorf("subscribe handshake topic: %w", err)
	}

	proposal := newJSONRPCRequest(methodSessionPropose, sessionProposal{
		ProposerID:        info.ClientID,
		ProposerPublicKey: publicKey,
		ProposerMeta:      meta,
		ChainID:           chainID,
	})
	if err := relay.Publish(ctx, info.HandshakeTopic, proposal.Marshal()); err != nil {
		wipePairingKeys(info, &secret)
		return nil, fmt.Errorf("publish session proposal: %w", err)
	}

	c.start()
	c.log.Infow("pairing started",
		"handshake_topic", info.HandshakeTopic,
		"client_id", info.ClientID)
	return c, nil
}

// wipePairingKeys zeroes the freshly generated secret when pairing
// setup fails, so the key does not outlive the aborted constructor.
func wipePairingKeys(info *SessionInfo, secret *envelope.Key) {
	secret.Zero()
	info.Key.Zero()
}

// Restore reconstructs a client from a serialized session record. No
// keys are re-derived; the record is used verbatim. The client comes up
// Connected or Disconnected depending on the record.
func Restore(ctx context.Context, relay Relay, serialized string, log *zap.SugaredLogger) (*Client, error) {
	info, err := UnmarshalSessionInfo(serialized)
	if err != nil {
		return nil, err
	}

	state := StateDisconnected
	if info.Connected {
		state = StateConnected
	}

	c := newClient(relay, info, state, log)
	if state == StateConnected {
		c.sessionTopic = envelope.TopicFromKey(info.Key)
		if err := relay.Subscribe(ctx, c.sessionTopic); err != nil {
			return nil, fmt.Errorf("subscribe session topic: %w", err)
		}
	}

	c.start()
	c.log.Infow("session restored", "state", state.String(), "client_id", info.ClientID)
	return c, nil
}

func newClient(relay Relay, info *SessionInfo, state State, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		relay:    relay,
		log:      log.With("key", info.Key.Fingerprint()),
		requests: make(chan func()),
		events:   make(chan ClientChannelMessage, 32),
		closed:   make(chan struct{}),
		state:    state,
		session:  info,
	}
}

func (c *Client) start() {
	// queue the initial event before the run loop owns the session, so
	// no other goroutine touches state once the loop is live
	if c.state == StatePairing {
		c.emit(MessageConnecting)
	}
	c.bg.Add(2)
	go c.run()
	go c.dispatch()
}

// Close tears down the client and its relay connection, and waits for
// the run loop and the dispatcher to finish. Outstanding calls fail
// with ErrClientClosed. Close must not be called from an observer
// callback.
func (c *Client) Close() error {
	var err error
	c.closeOne.Do(func() {
		close(c.closed)
		err = c.relay.Close()
		c.bg.Wait()
	})
	return err
}

// run is the actor loop: the only goroutine that reads or writes
// session state.
func (c *Client) run() {
	defer c.bg.Done()
	msgs := c.relay.Messages()
	for {
		select {
		case fn := <-c.requests:
			fn()
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				c.relayClosed()
				continue
			}
			c.handleRelayMessage(msg)
		case <-c.closed:
			c.failPending(ErrClientClosed)
			c.failWaiters(ErrClientClosed)
			close(c.events)
			return
		}
	}
}

// do schedules fn on the run loop.
func (c *Client) do(ctx context.Context, fn func()) error {
	select {
	case c.requests <- fn:
		return nil
	case <-c.closed:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureSession returns the approved accounts and chain id, blocking
// until the session reaches Connected. It fails with
// ErrPeerDisconnected when the relay channel is torn down first, and
// with ctx.Err() on cancellation.
func (c *Client) EnsureSession(ctx context.Context) ([]common.Address, uint64, error) {
	reply := make(chan ensureResult, 1)
	err := c.do(ctx, func() {
		switch c.state {
		case StateConnected:
			reply <- ensureResult{
				accounts: append([]common.Address(nil), c.session.Accounts...),
				chainID:  chainIDOrZero(c.session.ChainID),
			}
		case StateDisconnected:
			reply <- ensureResult{err: ErrPeerDisconnected}
		default:
			c.waiters = append(c.waiters, reply)
		}
	})
	if err != nil {
		return nil, 0, err
	}

	select {
	case res := <-reply:
		return res.accounts, res.chainID, res.err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-c.closed:
		return nil, 0, ErrClientClosed
	}
}

// ConnectionString returns the pairing URI for QR rendering or deep
// links.
func (c *Client) ConnectionString(ctx context.Context) (string, error) {
	info, err := c.SessionSnapshot(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wc:%s@2?bridge=%s&key=%s",
		info.HandshakeTopic, url.QueryEscape(info.Bridge), info.PublicKey), nil
}

// SessionSnapshot returns a copy of the current session record.
func (c *Client) SessionSnapshot(ctx context.Context) (*SessionInfo, error) {
	reply := make(chan *SessionInfo, 1)
	if err := c.do(ctx, func() { reply <- c.session.clone() }); err != nil {
		return nil, err
	}
	select {
	case info := <-reply:
		return info, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClientClosed
	}
}

// Save serializes the current session record. Callable from any state;
// the result is sufficient for Restore.
func (c *Client) Save(ctx context.Context) (string, error) {
	info, err := c.SessionSnapshot(ctx)
	if err != nil {
		return "", err
	}
	return info.Marshal()
}

// RunCallback registers the external lifecycle observer. A second call
// REPLACES the previous observer; events are never fanned out to more
// than one.
func (c *Client) RunCallback(cb Callback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

func (c *Client) callback() Callback {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.cb
}

// PersonalSign asks the wallet for an off-chain signature over message
// and verifies that the returned signature recovers to address.
func (c *Client) PersonalSign(ctx context.Context, message string, address common.Address) ([]byte, error) {
	res, err := c.request(ctx, methodPersonalSign, hexutil.Encode([]byte(message)), address.Hex())
	if err != nil {
		return nil, err
	}

	sig, err := hexutil.Decode(res.String())
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrMalformedPayload)
	}
	if !verifyPersonalSig(address, sig, []byte(message)) {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// SignTransaction asks the wallet to sign the given transaction request
// (the signer address travels in the request's "from" field) and
// returns the 65-byte signature.
func (c *Client) SignTransaction(ctx context.Context, txArgs any) ([]byte, error) {
	res, err := c.request(ctx, methodSignTransaction, txArgs)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(res.String())
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrMalformedPayload)
	}
	return sig, nil
}

// SendRawTransaction broadcasts a signed raw transaction through the
// session and returns the transaction hash reported by the wallet.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx string) (common.Hash, error) {
	res, err := c.request(ctx, methodSendRawTx, rawTx)
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := hexutil.Decode(res.String())
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: bad transaction hash", ErrMalformedPayload)
	}
	return common.BytesToHash(raw), nil
}

// request runs one encrypted JSON-RPC round trip on the session topic.
// One request in flight per client; concurrent calls get
// ErrRequestInFlight.
func (c *Client) request(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	reply := make(chan rpcResult, 1)
	err := c.do(ctx, func() {
		if c.state != StateConnected {
			reply <- rpcResult{err: ErrNoSession}
			return
		}
		if c.pending != nil {
			reply <- rpcResult{err: ErrRequestInFlight}
			return
		}

		req := newJSONRPCRequest(method, params...)
		payload := envelope.EncryptAndEncode(c.session.Key, []byte(req.Marshal()))
		if err := c.relay.Publish(ctx, c.sessionTopic, payload); err != nil {
			reply <- rpcResult{err: fmt.Errorf("publish %s: %w", method, err)}
			return
		}
		c.pending = &pendingRequest{id: req.ID, reply: reply}
		c.log.Debugw("request sent", "method", method, "id", req.ID)
	})
	if err != nil {
		return gjson.Result{}, err
	}

	select {
	case res := <-reply:
		return res.result, res.err
	case <-ctx.Done():
		c.abandonPending(reply)
		return gjson.Result{}, ctx.Err()
	case <-c.closed:
		return gjson.Result{}, ErrClientClosed
	}
}

// abandonPending clears the in-flight slot after the caller gave up, so
// the client does not stay wedged on a request nobody is waiting for.
func (c *Client) abandonPending(reply chan rpcResult) {
	select {
	case c.requests <- func() {
		if c.pending != nil && c.pending.reply == reply {
			c.pending = nil
		}
	}:
	case <-c.closed:
	}
}

func (c *Client) handleRelayMessage(msg RelayMessage) {
	switch msg.Topic {
	case c.session.HandshakeTopic:
		c.handleHandshakePayload(msg.Payload)
	case c.sessionTopic:
		if c.sessionTopic == "" {
			return
		}
		plaintext, err := envelope.DecodeDecrypt(c.session.Key, msg.Payload)
		if err != nil {
			c.log.Warnw("discarding undecryptable payload", "topic", msg.Topic)
			return
		}
		c.handleSessionPayload(string(plaintext))
	default:
		c.log.Debugw("message for unknown topic", "topic", msg.Topic)
	}
}

// handleHandshakePayload processes plaintext handshake-topic traffic.
// The only payload the proposer expects there is the approval carrying
// the responder's public key.
func (c *Client) handleHandshakePayload(payload string) {
	if c.state != StatePairing {
		return
	}
	parsed := gjson.Parse(payload)
	if parsed.Get("method").String() != methodSessionApprove {
		return
	}
	responderKey := parsed.Get("params.0.responderPublicKey").String()

	topic, symKey, ok := envelope.DeriveSymkeyTopic(responderKey, c.session.Key)
	if !ok {
		c.log.Warnw("cannot derive session key from responder public key")
		return
	}

	if err := c.relay.Subscribe(context.Background(), topic); err != nil {
		c.log.Errorw("subscribe session topic", "err", err)
		symKey.Zero()
		return
	}

	c.session.Key = symKey
	c.sessionTopic = topic
	c.state = StateAwaitingApproval
	c.log.Infow("pairing approved, awaiting settlement", "session_topic", topic)
	c.emit(MessageConnecting)
}

func (c *Client) handleSessionPayload(payload string) {
	parsed := gjson.Parse(payload)
	if method := parsed.Get("method"); method.Exists() {
		c.handlePeerRequest(method.String(), parsed)
		return
	}
	c.handlePeerResponse(parsed)
}

func (c *Client) handlePeerRequest(method string, parsed gjson.Result) {
	switch method {
	case methodSessionSettle:
		c.handleSettle(parsed)
	case methodSessionUpdate:
		c.handleUpdate(parsed)
	case methodSessionDelete:
		c.remoteDisconnect("session deleted by peer")
	default:
		c.log.Debugw("ignoring peer request", "method", method)
	}
}

func (c *Client) handleSettle(parsed gjson.Result) {
	if c.state != StateAwaitingApproval {
		return
	}

	accounts, ok := parseAccounts(parsed.Get("params.0.accounts"))
	chainID := parsed.Get("params.0.chainId").Uint()
	if !ok || len(accounts) == 0 || chainID == 0 {
		c.log.Errorw("invalid settlement payload from peer")
		return
	}

	c.session.Connected = true
	c.session.Accounts = accounts
	c.session.ChainID = &chainID
	c.session.PeerID = parsed.Get("params.0.peerId").String()
	if meta := parsed.Get("params.0.peerMeta"); meta.Exists() {
		var pm Metadata
		if err := json.Unmarshal([]byte(meta.Raw), &pm); err == nil {
			c.session.PeerMeta = &pm
		}
	}
	c.state = StateConnected
	c.log.Infow("session connected", "accounts", len(accounts), "chain_id", chainID)

	c.emit(MessageConnected)
	c.resolveWaiters()
}

func (c *Client) handleUpdate(parsed gjson.Result) {
	if c.state != StateConnected {
		return
	}
	params := parsed.Get("params.0")
	if !params.Get("approved").Bool() {
		c.remoteDisconnect("peer revoked approval")
		return
	}

	accounts, ok := parseAccounts(params.Get("accounts"))
	chainID := params.Get("chainId").Uint()
	if !ok || len(accounts) == 0 || chainID == 0 {
		c.log.Errorw("invalid session update from peer")
		return
	}

	c.session.Accounts = accounts
	c.session.ChainID = &chainID
	c.log.Infow("session updated", "accounts", len(accounts), "chain_id", chainID)
	c.emit(MessageUpdated)
}

func (c *Client) handlePeerResponse(parsed gjson.Result) {
	if c.pending == nil || parsed.Get("id").Int() != c.pending.id {
		c.log.Debugw("response without matching request", "id", parsed.Get("id").Int())
		return
	}
	reply := c.pending.reply
	c.pending = nil

	if errField := parsed.Get("error"); errField.Exists() {
		reply <- rpcResult{err: fmt.Errorf("%w: %s", ErrPeerRejected, errField.Get("message").String())}
		return
	}
	reply <- rpcResult{result: parsed.Get("result")}
}

// remoteDisconnect moves the client to its terminal state after the
// peer ended the session.
func (c *Client) remoteDisconnect(reason string) {
	if c.state == StateDisconnected {
		return
	}
	c.log.Infow("session disconnected", "reason", reason)
	c.session.Connected = false
	c.state = StateDisconnected
	c.emit(MessageDisconnected)
	c.failPending(ErrPeerDisconnected)
	c.failWaiters(ErrPeerDisconnected)
}

// relayClosed handles the transport dropping out from under the client.
func (c *Client) relayClosed() {
	if c.state == StateDisconnected {
		return
	}
	c.log.Warnw("relay channel closed")
	c.session.Connected = false
	c.state = StateDisconnected
	c.emit(MessageDisconnected)
	c.failPending(ErrPeerDisconnected)
	c.failWaiters(ErrPeerDisconnected)
}

func (c *Client) resolveWaiters() {
	res := ensureResult{
		accounts: append([]common.Address(nil), c.session.Accounts...),
		chainID:  chainIDOrZero(c.session.ChainID),
	}
	for _, w := range c.waiters {
		w <- res
	}
	c.waiters = nil
}

func (c *Client) failWaiters(err error) {
	for _, w := range c.waiters {
		w <- ensureResult{err: err}
	}
	c.waiters = nil
}

func (c *Client) failPending(err error) {
	if c.pending == nil {
		return
	}
	c.pending.reply <- rpcResult{err: err}
	c.pending = nil
}

// emit appends one event to the ordered lifecycle stream with a
// snapshot of the session. Events are never reordered or dropped; the
// dispatcher goroutine drains this channel for the life of the client.
func (c *Client) emit(state MessageState) {
	select {
	case c.events <- ClientChannelMessage{State: state, Session: c.session.clone()}:
	case <-c.closed:
	}
}

func parseAccounts(field gjson.Result) ([]common.Address, bool) {
	if !field.IsArray() {
		return nil, false
	}
	var accounts []common.Address
	for _, item := range field.Array() {
		if !common.IsHexAddress(item.String()) {
			return nil, false
		}
		accounts = append(accounts, common.HexToAddress(item.String()))
	}
	return accounts, true
}

func chainIDOrZero(id *uint64) uint64 {
	if id == nil {
		return 0
	}
	return *id
}

// verifyPersonalSig recovers the signer of an EIP-191 personal message
// and compares it to the expected address. The wallet returns V as
// 27/28 per the yellow paper; recovery wants 0/1.
func verifyPersonalSig(address common.Address, sig, msg []byte) bool {
	rec := make([]byte, len(sig))
	copy(rec, sig)
	if rec[crypto.RecoveryIDOffset] >= 27 {
		rec[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), rec)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == address
}
