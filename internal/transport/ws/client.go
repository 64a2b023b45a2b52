package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"eggtimer/internal/countdown"
	"eggtimer/internal/relay"
	logx "eggtimer/pkg/logx"
)

// Client reads relay envelopes from a Server.
type Client struct {
	conn *websocket.Conn
	log  logx.Logger
}

// Dial connects to url (ws:// or wss://). token may be empty.
func Dial(ctx context.Context, url, token string, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: bearer(token)})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	return &Client{conn: conn, log: log}, nil
}

// Receive delivers every frame to l until ctx is done or the server closes
// the connection. Malformed frames and unknown actions are skipped.
// A normal or going-away close returns nil.
func (c *Client) Receive(ctx context.Context, l countdown.Listener) error {
	r := relay.NewReceiver(l, c.log)
	for {
		_, b, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		env, err := relay.UnmarshalEnvelope(b)
		if err != nil {
			c.log.Warn("ws frame dropped", logx.Err(err))
			continue
		}
		r.Deliver(env)
	}
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
