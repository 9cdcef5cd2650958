package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/layer-3/wconnect"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// frame is the bridge wire format. A client publishes with type "pub"
// and registers topic interest with type "sub"; the bridge forwards
// pub frames to every other subscriber of the topic.
type frame struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// Websocket is a bridge connection over a single websocket. Writes are
// serialized with a mutex per the connection's concurrency contract;
// the read pump runs until the connection drops and then closes the
// message channel.
type Websocket struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex
	msgs    chan wconnect.RelayMessage

	closeOnce sync.Once
	closeErr  error
}

var _ wconnect.Relay = (*Websocket)(nil)

// DialBridge connects to the bridge at bridgeURL. An http or https
// scheme is rewritten to the websocket equivalent. When authToken is
// non-empty it is presented as a bearer header, for bridges that
// require relay authentication.
func DialBridge(ctx context.Context, bridgeURL, authToken string, log *zap.Logger) (*Websocket, error) {
	wsURL, err := toWebsocketURL(bridgeURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", wsURL, err)
	}

	w := &Websocket{
		conn: conn,
		log:  log,
		msgs: make(chan wconnect.RelayMessage, 64),
	}
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go w.readPump()
	go w.pingLoop()
	return w, nil
}

func (w *Websocket) Subscribe(ctx context.Context, topic string) error {
	return w.write(ctx, frame{Topic: topic, Type: "sub", Silent: true})
}

func (w *Websocket) Publish(ctx context.Context, topic, payload string) error {
	return w.write(ctx, frame{Topic: topic, Type: "pub", Payload: payload, Silent: true})
}

func (w *Websocket) Messages() <-chan wconnect.RelayMessage {
	return w.msgs
}

func (w *Websocket) Close() error {
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *Websocket) write(ctx context.Context, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

func (w *Websocket) readPump() {
	defer close(w.msgs)
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Warn("bridge connection lost", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			w.log.Debug("discarding unparseable bridge frame", zap.Error(err))
			continue
		}
		if f.Type != "pub" {
			continue
		}
		w.msgs <- wconnect.RelayMessage{Topic: f.Topic, Payload: f.Payload}
	}
}

func (w *Websocket) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		w.writeMu.Lock()
		w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := w.conn.WriteMessage(websocket.PingMessage, nil)
		w.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func toWebsocketURL(bridgeURL string) (string, error) {
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss", "":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	return u.String(), nil
}
