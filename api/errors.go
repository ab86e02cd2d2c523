// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for wstransport.

package api

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Common errors used across the library.
var (
	// ErrWouldBlock reports that an operation cannot complete yet and must
	// be retried once Ready fires.
	ErrWouldBlock = errors.New("operation would block")

	ErrClosed          = errors.New("channel is closed")
	ErrFragmented      = errors.New("fragmented frames are not supported")
	ErrFrameTooLarge   = errors.New("frame payload exceeds maximum allowed size")
	ErrControlTooLarge = errors.New("control frame payload exceeds 125 bytes")
)

// Utf8Error reports a Binary payload that is not valid UTF-8.
type Utf8Error struct {
	// ValidUpTo is the length of the longest valid prefix.
	ValidUpTo int
	// Len is the total payload length.
	Len int
}

func (e *Utf8Error) Error() string {
	return fmt.Sprintf("invalid utf-8 sequence at byte %d of %d", e.ValidUpTo, e.Len)
}

// CheckUTF8 returns nil when b is valid UTF-8 and a *Utf8Error otherwise.
func CheckUTF8(b []byte) *Utf8Error {
	if utf8.Valid(b) {
		return nil
	}
	i := 0
	for i < len(b) {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		i += size
	}
	return &Utf8Error{ValidUpTo: i, Len: len(b)}
}

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeInvalidArgument ErrorCode = iota + 1
	ErrCodeProtocol
	ErrCodeNotSupported
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap attaches a cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
