// File: wsconn/channel.go
// Package wsconn exposes a gorilla/websocket connection as an api.FrameChannel.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// gorilla/websocket consumes control frames inside ReadMessage. The handlers
// installed here forward them to the channel in arrival order instead of
// answering them, so the reply policy stays with the caller.

package wsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/momentics/wstransport/api"
	"github.com/momentics/wstransport/internal/pump"
)

// DefaultWriteTimeout bounds every frame write.
const DefaultWriteTimeout = 10 * time.Second

type config struct {
	writeTimeout time.Duration
	readLimit    int64
	queue        int
	log          *zap.Logger
}

// Option customizes a Channel.
type Option func(*config)

// WithWriteTimeout bounds each frame write. Zero disables the deadline for
// data frames.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) { c.writeTimeout = d }
}

// WithReadLimit caps inbound message size.
func WithReadLimit(n int64) Option {
	return func(c *config) { c.readLimit = n }
}

// WithInboundQueue bounds the number of frames read ahead.
func WithInboundQueue(n int) Option {
	return func(c *config) { c.queue = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// Channel is an api.FrameChannel over a *websocket.Conn.
type Channel struct {
	*pump.Channel
	ws *websocket.Conn
}

var _ api.FrameChannel = (*Channel)(nil)

// New takes ownership of ws.
func New(ws *websocket.Conn, opts ...Option) *Channel {
	cfg := config{writeTimeout: DefaultWriteTimeout, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.readLimit > 0 {
		ws.SetReadLimit(cfg.readLimit)
	}
	log := cfg.log.With(zap.String("channel", "gorilla"), zap.Stringer("remote", ws.RemoteAddr()))
	fc := &frameConn{ws: ws, writeTimeout: cfg.writeTimeout}
	return &Channel{
		Channel: pump.New(fc, pump.WithLogger(log), pump.WithInboundQueue(cfg.queue)),
		ws:      ws,
	}
}

// Dial connects to a WebSocket server.
func Dial(ctx context.Context, url string, opts ...Option) (*Channel, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsconn: dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("wsconn: dial %s: %w", url, err)
	}
	return New(ws, opts...), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Upgrade completes the server side of the opening handshake.
func Upgrade(w http.ResponseWriter, r *http.Request, opts ...Option) (*Channel, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return New(ws, opts...), nil
}

// Subprotocol returns the negotiated subprotocol.
func (c *Channel) Subprotocol() string {
	return c.ws.Subprotocol()
}

// frameConn implements pump.Conn and pump.ControlSource.
type frameConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	// closeSeen is set once the peer's close frame has been delivered.
	closeSeen atomic.Bool
}

func (f *frameConn) SetControlHandler(h func(api.Frame)) {
	f.ws.SetPingHandler(func(data string) error {
		h(api.PingFrame([]byte(data)))
		return nil
	})
	f.ws.SetPongHandler(func(data string) error {
		h(api.PongFrame([]byte(data)))
		return nil
	})
	f.ws.SetCloseHandler(func(code int, text string) error {
		f.closeSeen.Store(true)
		if code == websocket.CloseNoStatusReceived {
			h(api.CloseFrame(nil))
			return nil
		}
		h(api.CloseFrame(&api.CloseReason{Code: uint16(code), Reason: text}))
		return nil
	})
}

func (f *frameConn) ReadFrame() (api.Frame, error) {
	mt, data, err := f.ws.ReadMessage()
	if err != nil {
		// gorilla also reports a dropped connection as a CloseError (1006);
		// only a received close frame ends the stream.
		var ce *websocket.CloseError
		if errors.As(err, &ce) && f.closeSeen.Load() {
			return api.Frame{}, io.EOF
		}
		return api.Frame{}, err
	}
	switch mt {
	case websocket.TextMessage:
		return api.Frame{Opcode: api.OpcodeText, Payload: data}, nil
	case websocket.BinaryMessage:
		return api.BinaryFrame(data), nil
	default:
		return api.Frame{}, api.NewError(api.ErrCodeNotSupported, "wsconn: unexpected message type").
			WithContext("type", mt)
	}
}

func (f *frameConn) deadline() time.Time {
	if f.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(f.writeTimeout)
}

func (f *frameConn) WriteFrame(fr api.Frame) error {
	switch fr.Opcode {
	case api.OpcodeText, api.OpcodeBinary:
		if err := f.ws.SetWriteDeadline(f.deadline()); err != nil {
			return err
		}
		return f.ws.WriteMessage(int(fr.Opcode), fr.Payload)
	case api.OpcodePing, api.OpcodePong:
		return f.ws.WriteControl(int(fr.Opcode), fr.Payload, f.deadline())
	case api.OpcodeClose:
		var payload []byte
		if fr.Close != nil {
			payload = websocket.FormatCloseMessage(int(fr.Close.Code), fr.Close.Reason)
		}
		return f.ws.WriteControl(websocket.CloseMessage, payload, f.deadline())
	default:
		return api.NewError(api.ErrCodeNotSupported, "wsconn: cannot write frame").
			WithContext("frame", fr.String())
	}
}

// Close sends a normal closure and drops the connection.
func (f *frameConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = f.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return f.ws.Close()
}
