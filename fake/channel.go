// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the channel contracts.

package fake

import (
	"io"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/wstransport/api"
)

// step is one scripted inbound outcome.
type step struct {
	frame api.Frame
	err   error
	block bool
}

// Channel is a scripted api.FrameChannel with a single write slot.
//
// Inbound frames are replayed in the order they were pushed. A frame
// accepted by StartSend occupies the slot until Flush completes it; Flush
// reports api.ErrWouldBlock FlushDelay times per frame before completing.
// Every call is recorded in Events. Ready fires whenever a retry could make
// progress, so blocking callers never stall on a scripted delay.
type Channel struct {
	mu sync.Mutex

	inbound *queue.Queue
	ended   bool

	slot       *api.Frame
	flushDelay int
	flushPolls int
	rejects    int
	handBack   func(api.Frame) api.Frame

	sendErr  error
	flushErr error
	closeErr    error
	closeBlocks int
	closed      bool

	sent   []api.Frame
	events []string
	ready  chan struct{}
}

var _ api.FrameChannel = (*Channel)(nil)

// NewChannel creates an empty channel whose inbound side blocks until
// frames are pushed or End is called.
func NewChannel() *Channel {
	return &Channel{
		inbound: queue.New(),
		ready:   make(chan struct{}, 1),
	}
}

// Push appends inbound frames.
func (c *Channel) Push(frames ...api.Frame) {
	c.mu.Lock()
	for _, f := range frames {
		c.inbound.Add(step{frame: f})
	}
	c.mu.Unlock()
	c.notify()
}

// PushBlock makes the next RecvFrame report api.ErrWouldBlock once.
func (c *Channel) PushBlock() {
	c.mu.Lock()
	c.inbound.Add(step{block: true})
	c.mu.Unlock()
}

// PushError makes a RecvFrame return err at this point of the script.
func (c *Channel) PushError(err error) {
	c.mu.Lock()
	c.inbound.Add(step{err: err})
	c.mu.Unlock()
	c.notify()
}

// End terminates the inbound stream once the script is drained.
func (c *Channel) End() {
	c.mu.Lock()
	c.ended = true
	c.mu.Unlock()
	c.notify()
}

// SetFlushDelay sets how many Flush polls each accepted frame needs.
func (c *Channel) SetFlushDelay(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushDelay = n
}

// RejectSends makes the next n StartSend calls refuse their frame.
func (c *Channel) RejectSends(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejects = n
}

// SetHandBack replaces the frame returned on refusal. Used to simulate a
// channel that breaks its StartSend contract.
func (c *Channel) SetHandBack(fn func(api.Frame) api.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handBack = fn
}

// SetSendError configures StartSend to fail.
func (c *Channel) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetFlushError configures Flush to fail.
func (c *Channel) SetFlushError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushErr = err
}

// SetCloseError configures Close to fail.
func (c *Channel) SetCloseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// RecvFrame implements api.FrameChannel.
func (c *Channel) RecvFrame() (api.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "recv")

	if c.inbound.Length() == 0 {
		if c.ended {
			return api.Frame{}, io.EOF
		}
		return api.Frame{}, api.ErrWouldBlock
	}
	s := c.inbound.Remove().(step)
	switch {
	case s.block:
		c.notify()
		return api.Frame{}, api.ErrWouldBlock
	case s.err != nil:
		return api.Frame{}, s.err
	}
	return s.frame, nil
}

// StartSend implements api.FrameChannel.
func (c *Channel) StartSend(f api.Frame) (api.Frame, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "send "+f.String())

	if c.sendErr != nil {
		return api.Frame{}, false, c.sendErr
	}
	if c.closed {
		return api.Frame{}, false, api.ErrClosed
	}
	if c.rejects > 0 || c.slot != nil {
		if c.rejects > 0 {
			c.rejects--
			c.notify()
		}
		if c.handBack != nil {
			return c.handBack(f), false, nil
		}
		return f, false, nil
	}
	c.slot = &f
	c.flushPolls = c.flushDelay
	return api.Frame{}, true, nil
}

// Flush implements api.FrameChannel.
func (c *Channel) Flush() error {
	c.mu.Lock()
	c.events = append(c.events, "flush")
	err := c.flushLocked()
	c.mu.Unlock()
	if err == nil || err == api.ErrWouldBlock {
		c.notify()
	}
	return err
}

func (c *Channel) flushLocked() error {
	if c.flushErr != nil {
		return c.flushErr
	}
	if c.slot == nil {
		return nil
	}
	if c.flushPolls > 0 {
		c.flushPolls--
		return api.ErrWouldBlock
	}
	c.sent = append(c.sent, *c.slot)
	c.slot = nil
	return nil
}

// SetCloseBlocks makes the next n Close calls report api.ErrWouldBlock
// without signalling Ready, as if a drain were still under way.
func (c *Channel) SetCloseBlocks(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeBlocks = n
}

// Close implements api.FrameChannel.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "close")
	if c.closeBlocks > 0 {
		c.closeBlocks--
		return api.ErrWouldBlock
	}
	if err := c.flushLocked(); err != nil {
		if err == api.ErrWouldBlock {
			c.notify()
		}
		return err
	}
	if c.closeErr != nil {
		return c.closeErr
	}
	c.closed = true
	return nil
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

// Sent returns every frame whose flush has completed.
func (c *Channel) Sent() []api.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

// InFlight returns the frame occupying the write slot, if any.
func (c *Channel) InFlight() (api.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == nil {
		return api.Frame{}, false
	}
	return *c.slot, true
}

// Events returns the call log.
func (c *Channel) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

// ClearEvents resets the call log.
func (c *Channel) ClearEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

// Closed reports whether Close has completed.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ConvertingChannel adds api.DecodeErrorConverter to a Channel.
type ConvertingChannel struct {
	*Channel
	Convert func(*api.Utf8Error) error
}

// ConvertDecodeError implements api.DecodeErrorConverter.
func (c *ConvertingChannel) ConvertDecodeError(err *api.Utf8Error) error {
	return c.Convert(err)
}
