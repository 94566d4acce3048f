// Package connect provides the low-level streaming transport: TCP with
// keepalive tuned for long-lived connections, TLS against the system trust
// store, and the websocket upgrade. It carries no business logic and never
// retries; backoff belongs to the stream adapters.
package connect

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parvezahmmedmahir/footprint/internal/types"
)

// keepalivePeriod keeps idle stream sockets from being dropped by middleboxes.
const keepalivePeriod = 20 * time.Second

const handshakeTimeout = 10 * time.Second

// FrameType classifies incoming frames. Only text and close frames matter to
// the adapters.
type FrameType int

const (
	FrameText FrameType = iota
	FrameClose
	FrameOther
)

type Frame struct {
	Type    FrameType
	Payload []byte
}

// Conn is a connected duplex frame reader/writer.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects and upgrades in one shot, returning a connected handle or a
// websocket-kind error.
func Dial(ctx context.Context, url string) (*Conn, error) {
	netDialer := &net.Dialer{
		Timeout:   handshakeTimeout,
		KeepAlive: keepalivePeriod,
	}
	dialer := &websocket.Dialer{
		NetDialContext:   netDialer.DialContext,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		HandshakeTimeout: handshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, types.NewWebsocketError("dial "+url, err)
	}
	return &Conn{ws: ws}, nil
}

// ReadFrame blocks until the next frame arrives. A server-initiated close
// surfaces as a FrameClose frame rather than an error; transport failures
// surface as websocket-kind errors.
func (c *Conn) ReadFrame() (Frame, error) {
	msgType, payload, err := c.ws.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return Frame{Type: FrameClose, Payload: []byte(closeErr.Text)}, nil
		}
		return Frame{}, types.NewWebsocketError("read frame", err)
	}

	switch msgType {
	case websocket.TextMessage:
		return Frame{Type: FrameText, Payload: payload}, nil
	default:
		return Frame{Type: FrameOther}, nil
	}
}

// WriteJSON marshals v and writes it as a single text frame. Writes are
// serialized; reads are not affected.
func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		return types.NewWebsocketError("write frame", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
