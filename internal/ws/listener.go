package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Handler receives push events in arrival order.
type Handler func(ctx context.Context, e Event)

// Listener subscribes to a hub over WebSocket and redials after a drop.
type Listener struct {
	url     string
	handler Handler
	dialer  *websocket.Dialer

	// MinBackoff and MaxBackoff bound the wait between reconnect attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnConnect runs after every successful dial. Events may have been
	// missed while disconnected, so callers typically invalidate caches here.
	OnConnect func(ctx context.Context)
}

// NewListener builds a listener for the hub at baseURL (http, https, ws or
// wss). token is sent as the token query parameter.
func NewListener(baseURL, token string, topics []string, h Handler) (*Listener, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse push url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported push url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	u.RawQuery = q.Encode()

	return &Listener{
		url:        u.String(),
		handler:    h,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}, nil
}

// Run dials and dispatches events until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.MinBackoff
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = l.MinBackoff
		} else {
			log.Printf("WARN: push channel: %v (retrying in %s)", err, backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if err != nil {
			backoff = min(backoff*2, l.MaxBackoff)
		}
	}
}

// session runs one connection. It returns nil when the server closed the
// connection normally.
func (l *Listener) session(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	if l.OnConnect != nil {
		l.OnConnect(ctx)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// The hub batches queued events into one frame, newline separated.
		for _, line := range bytes.Split(msg, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var e Event
			if err := json.Unmarshal(line, &e); err != nil {
				log.Printf("WARN: push channel: bad event %q: %v", line, err)
				continue
			}
			l.handler(ctx, e)
		}
	}
}
