// File: highlevel/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package highlevel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/momentics/wstransport/api"
)

// Conn turns a non-blocking api.TextChannel into blocking calls that wait
// for readiness or for ctx to end. A Conn belongs to one goroutine.
type Conn struct {
	ch        api.TextChannel
	readLimit int

	closed  atomic.Bool
	onClose func()
}

// NewConn wraps ch.
func NewConn(ch api.TextChannel) *Conn {
	return &Conn{
		ch:        ch,
		readLimit: 32 << 20, // 32MB default
	}
}

// SetReadLimit sets the maximum size for incoming messages. Zero disables it.
func (c *Conn) SetReadLimit(limit int) {
	c.readLimit = limit
}

// OnClose registers a callback invoked once after the channel is closed.
func (c *Conn) OnClose(fn func()) {
	c.onClose = fn
}

func (c *Conn) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ch.Ready():
		return nil
	}
}

// Read returns the next text message. io.EOF reports that the peer ended
// the stream.
func (c *Conn) Read(ctx context.Context) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	for {
		s, err := c.ch.Next()
		if err == nil {
			if c.readLimit > 0 && len(s) > c.readLimit {
				return "", ErrReadLimit
			}
			return s, nil
		}
		if !errors.Is(err, api.ErrWouldBlock) {
			return "", err
		}
		if err := c.wait(ctx); err != nil {
			return "", err
		}
	}
}

// ReadJSON unmarshals the next message into v.
func (c *Conn) ReadJSON(ctx context.Context, v any) error {
	s, err := c.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(s), v)
}

// Write hands s to the channel, retrying while the write slot is busy.
// It does not wait for the write to be flushed.
func (c *Conn) Write(ctx context.Context, s string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	for {
		back, ok, err := c.ch.StartSend(s)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s = back
		if err := c.wait(ctx); err != nil {
			return err
		}
	}
}

// WriteJSON marshals v and writes it as a text message.
func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("highlevel: marshal: %w", err)
	}
	return c.Write(ctx, string(data))
}

// Flush waits until every accepted message has been written out.
func (c *Conn) Flush(ctx context.Context) error {
	return c.poll(ctx, c.ch.Flush)
}

// Close flushes and closes the channel. If ctx ends while outstanding
// writes drain, the Conn stays open and Close may be called again. Calls
// after a completed close return nil.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed.Load() {
		return nil
	}
	for {
		err := c.ch.Close()
		if !errors.Is(err, api.ErrWouldBlock) {
			if c.closed.CompareAndSwap(false, true) && c.onClose != nil {
				c.onClose()
			}
			return err
		}
		if err := c.wait(ctx); err != nil {
			return err
		}
	}
}

func (c *Conn) poll(ctx context.Context, op func() error) error {
	for {
		err := op()
		if !errors.Is(err, api.ErrWouldBlock) {
			return err
		}
		if err := c.wait(ctx); err != nil {
			return err
		}
	}
}
