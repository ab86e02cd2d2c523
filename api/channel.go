// File: api/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking duplex contracts. Every operation either completes at once
// or returns ErrWouldBlock; the caller retries the same operation after the
// Ready channel fires.

package api

// FrameChannel is an already-framed duplex connection.
//
// Implementations are owned by a single goroutine at a time; none of the
// methods may block.
type FrameChannel interface {
	// RecvFrame returns the next inbound frame, ErrWouldBlock when none is
	// available yet, or io.EOF once the peer has ended the stream.
	RecvFrame() (Frame, error)

	// StartSend offers f to the single write slot. When the slot is busy it
	// returns f back unchanged together with false.
	StartSend(f Frame) (Frame, bool, error)

	// Flush returns nil once every accepted frame has been written out,
	// ErrWouldBlock while a write is still in progress.
	Flush() error

	// Close flushes and shuts the connection down. It may return
	// ErrWouldBlock while outstanding writes drain.
	Close() error

	// Ready delivers a coalesced signal whenever an operation that
	// returned ErrWouldBlock may now make progress.
	Ready() <-chan struct{}
}

// TextChannel has the same shape as FrameChannel with plain text as unit.
type TextChannel interface {
	// Next returns the next text item, ErrWouldBlock, io.EOF or a failure.
	Next() (string, error)

	// StartSend offers s for transmission; when refused it hands s back.
	StartSend(s string) (string, bool, error)

	Flush() error
	Close() error
	Ready() <-chan struct{}
}

// DecodeErrorConverter is implemented by channels that want UTF-8 decode
// failures reported in their own error vocabulary.
type DecodeErrorConverter interface {
	ConvertDecodeError(err *Utf8Error) error
}
