// File: protocol/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// StreamChannel speaks the frame protocol over an already-upgraded byte
// stream such as a net.Conn.

package protocol

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/momentics/wstransport/api"
	"github.com/momentics/wstransport/internal/pump"
)

type streamConfig struct {
	mask       bool
	maxPayload int64
	queue      int
	log        *zap.Logger
}

// StreamOption customizes a StreamChannel.
type StreamOption func(*streamConfig)

// WithClientMasking masks every outbound frame, as RFC 6455 requires of clients.
func WithClientMasking() StreamOption {
	return func(c *streamConfig) { c.mask = true }
}

// WithMaxPayload overrides MaxFramePayload for inbound frames.
func WithMaxPayload(n int64) StreamOption {
	return func(c *streamConfig) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// WithInboundQueue bounds the number of frames read ahead.
func WithInboundQueue(n int) StreamOption {
	return func(c *streamConfig) { c.queue = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) StreamOption {
	return func(c *streamConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// StreamChannel is an api.FrameChannel over an io.ReadWriteCloser.
type StreamChannel struct {
	*pump.Channel
}

var _ api.FrameChannel = (*StreamChannel)(nil)

// NewStreamChannel takes ownership of rw, which must already be past the
// opening handshake.
func NewStreamChannel(rw io.ReadWriteCloser, opts ...StreamOption) *StreamChannel {
	cfg := streamConfig{maxPayload: MaxFramePayload, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	sc := &streamConn{
		rw:         rw,
		br:         bufio.NewReader(rw),
		mask:       cfg.mask,
		maxPayload: cfg.maxPayload,
	}
	return &StreamChannel{
		Channel: pump.New(sc,
			pump.WithLogger(cfg.log.With(zap.String("channel", "stream"))),
			pump.WithInboundQueue(cfg.queue),
		),
	}
}

// streamConn is the blocking side driven by the pump.
type streamConn struct {
	rw         io.ReadWriteCloser
	br         *bufio.Reader
	mask       bool
	maxPayload int64
	wbuf       []byte
}

func (s *streamConn) ReadFrame() (api.Frame, error) {
	wf, err := DecodeFrame(s.br, s.maxPayload)
	if err != nil {
		return api.Frame{}, err
	}
	return ToFrame(wf)
}

func (s *streamConn) WriteFrame(f api.Frame) error {
	var key *[4]byte
	if s.mask {
		var k [4]byte
		if _, err := rand.Read(k[:]); err != nil {
			return fmt.Errorf("protocol: mask key: %w", err)
		}
		key = &k
	}
	buf, err := AppendFrame(s.wbuf[:0], f, key)
	if err != nil {
		return err
	}
	s.wbuf = buf
	_, err = s.rw.Write(buf)
	return err
}

func (s *streamConn) Close() error {
	return s.rw.Close()
}
