// File: api/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tagged WebSocket frame model shared by every channel implementation.
// A Frame is one discrete message unit: Text, Binary, Ping, Pong or Close.

package api

import (
	"fmt"
	"strconv"
)

// Opcode identifies the frame variant. Values follow RFC 6455.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// IsControl reports whether the opcode denotes a control frame.
func (o Opcode) IsControl() bool {
	return o&0x08 != 0
}

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "opcode(" + strconv.Itoa(int(o)) + ")"
	}
}

// CloseReason carries the optional status code and text of a Close frame.
type CloseReason struct {
	Code   uint16
	Reason string
}

// Frame is a single, unfragmented WebSocket message.
//
// Payload holds the UTF-8 text for Text frames and the raw bytes for
// Binary, Ping and Pong frames. Close frames use Close instead; a nil
// Close means the peer sent no status.
type Frame struct {
	Opcode  Opcode
	Payload []byte
	Close   *CloseReason
}

// TextFrame builds a Text frame.
func TextFrame(s string) Frame {
	return Frame{Opcode: OpcodeText, Payload: []byte(s)}
}

// BinaryFrame builds a Binary frame.
func BinaryFrame(b []byte) Frame {
	return Frame{Opcode: OpcodeBinary, Payload: b}
}

// PingFrame builds a Ping frame.
func PingFrame(p []byte) Frame {
	return Frame{Opcode: OpcodePing, Payload: p}
}

// PongFrame builds a Pong frame.
func PongFrame(p []byte) Frame {
	return Frame{Opcode: OpcodePong, Payload: p}
}

// CloseFrame builds a Close frame. reason may be nil.
func CloseFrame(reason *CloseReason) Frame {
	return Frame{Opcode: OpcodeClose, Close: reason}
}

// Text returns the payload as a string.
func (f Frame) Text() string {
	return string(f.Payload)
}

// String renders a compact diagnostic form, e.g. Text("hi") or Ping(3 bytes).
func (f Frame) String() string {
	switch f.Opcode {
	case OpcodeText:
		return fmt.Sprintf("Text(%q)", f.Payload)
	case OpcodeClose:
		if f.Close == nil {
			return "Close()"
		}
		return fmt.Sprintf("Close(%d %q)", f.Close.Code, f.Close.Reason)
	case OpcodeBinary:
		return fmt.Sprintf("Binary(%d bytes)", len(f.Payload))
	case OpcodePing:
		return fmt.Sprintf("Ping(%d bytes)", len(f.Payload))
	case OpcodePong:
		return fmt.Sprintf("Pong(%d bytes)", len(f.Payload))
	default:
		return fmt.Sprintf("Frame(%s, %d bytes)", f.Opcode, len(f.Payload))
	}
}
