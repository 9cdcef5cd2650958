package wconnect

// dispatch is the callback dispatcher loop. It runs on its own
// goroutine for the life of the client, consumes the ordered lifecycle
// stream, and invokes the registered observer once per event, in order.
//
// A message whose session snapshot violates the session invariant is
// dropped with an error log; the loop keeps running. Observer panics
// are contained so one bad observer cannot kill the stream.
func (c *Client) dispatch() {
	defer c.bg.Done()
	for msg := range c.events {
		cb := c.callback()
		if cb == nil {
			c.log.Debugw("lifecycle event without observer", "state", msg.State.String())
			continue
		}
		if msg.Session != nil && !msg.Session.Valid() {
			c.log.Errorw("dropping lifecycle event with invalid session",
				"state", msg.State.String())
			continue
		}
		c.deliver(cb, msg)
	}
}

func (c *Client) deliver(cb Callback, msg ClientChannelMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("observer panicked", "state", msg.State.String(), "panic", r)
		}
	}()

	switch msg.State {
	case MessageConnecting:
		cb.OnConnecting(msg.Session)
	case MessageConnected:
		cb.OnConnected(msg.Session)
	case MessageDisconnected:
		cb.OnDisconnected(msg.Session)
	case MessageUpdated:
		cb.OnUpdated(msg.Session)
	}
}
