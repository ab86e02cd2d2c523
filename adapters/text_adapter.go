// File: adapters/text_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TextAdapter turns a FrameChannel into a TextChannel. It answers every
// Ping with a Pong carrying the same payload while the read side is polled,
// and decodes Binary frames as UTF-8 text.

package adapters

import (
	"errors"
	"fmt"
	"io"

	"github.com/momentics/wstransport/api"
)

// writeState tracks the one internally generated frame the adapter may own.
type writeState uint8

const (
	stateIdle writeState = iota
	stateAwaitingAccept
	stateAwaitingFlush
)

func (s writeState) String() string {
	switch s {
	case stateAwaitingAccept:
		return "awaiting-accept"
	case stateAwaitingFlush:
		return "awaiting-flush"
	default:
		return "idle"
	}
}

// TextAdapter wraps a FrameChannel and exposes plain text in both
// directions. It is not safe for concurrent use; all methods must be
// called from the goroutine that owns it.
type TextAdapter struct {
	ch      api.FrameChannel
	state   writeState
	pending api.Frame // valid only in stateAwaitingAccept

	// done latches io.EOF or a decode failure.
	done error
}

var _ api.TextChannel = (*TextAdapter)(nil)

// NewTextAdapter takes exclusive ownership of ch.
func NewTextAdapter(ch api.FrameChannel) *TextAdapter {
	return &TextAdapter{ch: ch}
}

// Into releases the wrapped channel. Any pending Pong is discarded.
func (a *TextAdapter) Into() api.FrameChannel {
	ch := a.ch
	a.ch = nil
	a.state = stateIdle
	a.pending = api.Frame{}
	return ch
}

// Next returns the next text item.
//
// It returns api.ErrWouldBlock when it must be called again later, io.EOF
// when the channel has ended, and any other error as a failure. A pending
// Pong is always written and flushed before another inbound frame is read.
func (a *TextAdapter) Next() (string, error) {
	if a.done != nil {
		return "", a.done
	}
	for {
		switch a.state {
		case stateAwaitingAccept:
			back, ok, err := a.ch.StartSend(a.pending)
			if err != nil {
				return "", err
			}
			if !ok {
				a.pending = back
				return "", api.ErrWouldBlock
			}
			a.pending = api.Frame{}
			a.state = stateAwaitingFlush
			continue
		case stateAwaitingFlush:
			if err := a.ch.Flush(); err != nil {
				return "", err
			}
			a.state = stateIdle
			continue
		}

		f, err := a.ch.RecvFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.done = io.EOF
			}
			return "", err
		}

		switch f.Opcode {
		case api.OpcodeText:
			return f.Text(), nil
		case api.OpcodeBinary:
			if uerr := api.CheckUTF8(f.Payload); uerr != nil {
				a.done = a.decodeError(uerr)
				return "", a.done
			}
			return string(f.Payload), nil
		case api.OpcodePing:
			a.pending = api.PongFrame(f.Payload)
			a.state = stateAwaitingAccept
		default:
			// Pong and Close carry nothing for the reader.
		}
	}
}

func (a *TextAdapter) decodeError(err *api.Utf8Error) error {
	if conv, ok := a.ch.(api.DecodeErrorConverter); ok {
		return conv.ConvertDecodeError(err)
	}
	return err
}

// StartSend offers s as a Text frame. When the channel's write slot is busy
// s is handed back with false and must be offered again after Ready fires.
func (a *TextAdapter) StartSend(s string) (string, bool, error) {
	back, ok, err := a.ch.StartSend(api.TextFrame(s))
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	if back.Opcode != api.OpcodeText {
		panic(fmt.Sprintf("adapters: frame channel returned %v for a refused Text frame", back))
	}
	return back.Text(), false, nil
}

// Flush delegates to the channel.
func (a *TextAdapter) Flush() error {
	return a.ch.Flush()
}

// Close delegates to the channel.
func (a *TextAdapter) Close() error {
	return a.ch.Close()
}

// Ready delegates to the channel.
func (a *TextAdapter) Ready() <-chan struct{} {
	return a.ch.Ready()
}

// String prints the write-side state without dumping the channel.
func (a *TextAdapter) String() string {
	if a.state == stateAwaitingAccept {
		return fmt.Sprintf("TextAdapter{ch: ..., state: %s, pending: %v}", a.state, a.pending)
	}
	return fmt.Sprintf("TextAdapter{ch: ..., state: %s}", a.state)
}
