// File: internal/pump/pump.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel adapts a blocking frame connection to the non-blocking
// api.FrameChannel contract. A reader goroutine fills a bounded inbound FIFO
// and a writer goroutine drains the single write slot; every state change
// is announced on the Ready channel.

package pump

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/wstransport/api"
)

// Conn is a blocking frame connection. ReadFrame is only called from the
// reader goroutine and WriteFrame only from the writer goroutine.
// ReadFrame returns io.EOF when the peer ends the stream.
type Conn interface {
	ReadFrame() (api.Frame, error)
	WriteFrame(f api.Frame) error
	Close() error
}

// ControlSource is implemented by connections that observe control frames
// outside ReadFrame. The handler must be called from within ReadFrame so
// that delivery order is preserved.
type ControlSource interface {
	SetControlHandler(func(api.Frame))
}

// DefaultInboundQueue bounds the number of frames buffered ahead of RecvFrame.
const DefaultInboundQueue = 64

// Option customizes a Channel.
type Option func(*Channel)

// WithInboundQueue bounds the inbound FIFO.
func WithInboundQueue(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.maxQueued = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}

// Channel implements api.FrameChannel on top of a Conn.
type Channel struct {
	conn      Conn
	log       *zap.Logger
	maxQueued int

	mu       sync.Mutex
	space    *sync.Cond
	inbound  *queue.Queue
	readErr  error
	busy     bool
	writeErr error
	closed   bool
	closeErr error

	outbox chan api.Frame
	ready  chan struct{}
	done   chan struct{}

	framesReceived int64
	framesSent     int64
	bytesReceived  int64
	bytesSent      int64
}

var _ api.FrameChannel = (*Channel)(nil)

// New starts the reader and writer goroutines for conn.
func New(conn Conn, opts ...Option) *Channel {
	c := &Channel{
		conn:      conn,
		log:       zap.NewNop(),
		maxQueued: DefaultInboundQueue,
		inbound:   queue.New(),
		outbox:    make(chan api.Frame, 1),
		ready:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	c.space = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	if src, ok := conn.(ControlSource); ok {
		src.SetControlHandler(c.enqueue)
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// readLoop pulls frames until the connection fails or ends.
func (c *Channel) readLoop() {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			c.mu.Lock()
			if c.closed && !errors.Is(err, io.EOF) {
				err = api.ErrClosed
			}
			c.readErr = err
			c.mu.Unlock()
			if errors.Is(err, io.EOF) || errors.Is(err, api.ErrClosed) {
				c.log.Debug("inbound stream ended", zap.Error(err))
			} else {
				c.log.Warn("read frame", zap.Error(err))
			}
			c.notify()
			return
		}
		c.enqueue(f)
	}
}

// enqueue appends f to the inbound FIFO, waiting while it is full.
func (c *Channel) enqueue(f api.Frame) {
	c.mu.Lock()
	for c.inbound.Length() >= c.maxQueued && !c.closed {
		c.space.Wait()
	}
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inbound.Add(f)
	c.mu.Unlock()

	atomic.AddInt64(&c.framesReceived, 1)
	atomic.AddInt64(&c.bytesReceived, int64(len(f.Payload)))
	c.log.Debug("frame received", zap.Stringer("frame", f))
	c.notify()
}

// writeLoop performs one write per accepted frame and frees the slot.
func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.outbox:
			err := c.conn.WriteFrame(f)
			if err != nil {
				c.log.Warn("write frame", zap.Stringer("frame", f), zap.Error(err))
			} else {
				atomic.AddInt64(&c.framesSent, 1)
				atomic.AddInt64(&c.bytesSent, int64(len(f.Payload)))
				c.log.Debug("frame sent", zap.Stringer("frame", f))
			}
			c.mu.Lock()
			c.busy = false
			if err != nil && c.writeErr == nil {
				c.writeErr = err
			}
			c.mu.Unlock()
			c.notify()
		}
	}
}

// RecvFrame implements api.FrameChannel.
func (c *Channel) RecvFrame() (api.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbound.Length() > 0 {
		f := c.inbound.Remove().(api.Frame)
		c.space.Signal()
		return f, nil
	}
	if c.readErr != nil {
		return api.Frame{}, c.readErr
	}
	return api.Frame{}, api.ErrWouldBlock
}

// StartSend implements api.FrameChannel.
func (c *Channel) StartSend(f api.Frame) (api.Frame, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.Frame{}, false, api.ErrClosed
	}
	if c.writeErr != nil {
		return api.Frame{}, false, c.writeErr
	}
	if c.busy {
		return f, false, nil
	}
	c.busy = true
	c.outbox <- f
	return api.Frame{}, true, nil
}

// Flush implements api.FrameChannel.
func (c *Channel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.busy {
		return api.ErrWouldBlock
	}
	return nil
}

// Close implements api.FrameChannel. It waits for the write slot to drain,
// then closes the connection exactly once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	if c.busy {
		c.mu.Unlock()
		return api.ErrWouldBlock
	}
	c.closed = true
	c.space.Broadcast()
	c.mu.Unlock()

	close(c.done)
	err := c.conn.Close()

	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
	c.log.Debug("channel closed", zap.Error(err))
	c.notify()
	return err
}

// Ready implements api.FrameChannel.
func (c *Channel) Ready() <-chan struct{} {
	return c.ready
}

func (c *Channel) notify() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the frame and byte counters.
func (c *Channel) Stats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  atomic.LoadInt64(&c.bytesReceived),
		"bytes_sent":      atomic.LoadInt64(&c.bytesSent),
		"frames_received": atomic.LoadInt64(&c.framesReceived),
		"frames_sent":     atomic.LoadInt64(&c.framesSent),
	}
}
