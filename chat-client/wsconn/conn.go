// Package wsconn is the client side of the chat websocket: one connection,
// dialled once, read by a single goroutine and written without waiting for
// acknowledgement. There is no reconnect.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Path is where chat servers expose their websocket.
	Path = "/ws"

	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20
)

// Endpoint derives the websocket URL for host. host may be a bare
// "host[:port]" or an http(s)/ws(s) URL; only its scheme and host are used.
func Endpoint(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("empty server host")
	}
	scheme := "ws"
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return "", fmt.Errorf("parse server %q: %w", host, err)
		}
		switch u.Scheme {
		case "http", "ws":
		case "https", "wss":
			scheme = "wss"
		default:
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		host = u.Host
	}
	if host == "" || strings.ContainsAny(host, "/?#") {
		return "", fmt.Errorf("invalid server host %q", host)
	}
	return (&url.URL{Scheme: scheme, Host: host, Path: Path}).String(), nil
}

// Handler receives each inbound text frame, in delivery order.
type Handler func(payload []byte)

// Conn wraps a gorilla websocket connection with serialised writes.
type Conn struct {
	ws       *websocket.Conn
	endpoint string
	wmu      sync.Mutex
	closed   chan struct{}
	once     sync.Once
}

// Dial opens the connection to endpoint.
func Dial(ctx context.Context, endpoint string) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	ws.SetReadLimit(maxMessageSize)
	log.Info().Str("endpoint", endpoint).Msg("[ws] connected")
	return &Conn{ws: ws, endpoint: endpoint, closed: make(chan struct{})}, nil
}

func (c *Conn) Endpoint() string { return c.endpoint }

// WriteJSON sends v as one text frame. It does not wait for any reply.
func (c *Conn) WriteJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// Listen reads frames until the connection drops or ctx ends, handing each
// text frame to h before reading the next. A normal close returns nil.
func (c *Conn) Listen(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-c.closed:
				return nil
			default:
			}
			return fmt.Errorf("read %s: %w", c.endpoint, err)
		}
		if mt != websocket.TextMessage {
			log.Debug().Int("type", mt).Msg("[ws] skip non-text frame")
			continue
		}
		h(payload)
	}
}

// Close sends a close frame and releases the socket. Safe to call twice.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
