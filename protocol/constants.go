// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Frame limit settings
	MaxControlPayloadLen = 125

	// MaxFramePayload is the default cap on a single frame's payload.
	MaxFramePayload = 1 << 20 // 1 MiB

	// Bit masks
	FinBit  = 0x80
	MaskBit = 0x80
	rsvBits = 0x70

	// CloseNormalClosure is the RFC 6455 status for a clean end of stream.
	CloseNormalClosure = 1000
)
