// File: highlevel/common.go
// Package highlevel
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Blocking, context-aware API on top of the non-blocking text channels.

package highlevel

import "errors"

// Common error types
var (
	// ErrClosed is returned when attempting to read or write from a closed connection.
	ErrClosed = errors.New("highlevel: connection closed")

	// ErrReadLimit is returned when a received message exceeds the read limit.
	ErrReadLimit = errors.New("highlevel: read limit exceeded")
)
