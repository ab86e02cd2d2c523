// File: protocol/frame_codec.go
// Package protocol implements the RFC 6455 frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoding reads exactly one frame from a stream; encoding appends one frame
// to a caller-managed buffer. Only unfragmented frames are accepted.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/momentics/wstransport/api"
)

// WSFrame is a decoded frame as it appeared on the wire.
type WSFrame struct {
	IsFinal    bool  // FIN bit
	Opcode     byte  // Operation code
	Masked     bool  // Whether the frame was masked
	PayloadLen int64 // Actual payload length
	MaskKey    [4]byte
	Payload    []byte // unmasked
}

// DecodeFrame parses one frame header and payload from r, rejecting
// payloads larger than maxPayload. io.EOF is returned only when r ends
// exactly on a frame boundary.
func DecodeFrame(r io.Reader, maxPayload int64) (*WSFrame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0]&rsvBits != 0 {
		return nil, api.NewError(api.ErrCodeProtocol, "protocol: reserved bits set").
			WithContext("bits", fmt.Sprintf("0x%02x", hdr[0]&rsvBits))
	}

	isFin := hdr[0]&FinBit != 0
	opcode := hdr[0] & 0x0F
	isMasked := hdr[1]&MaskBit != 0
	payloadLen := int64(hdr[1] & 0x7F)

	switch payloadLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, unexpected(err)
		}
		payloadLen = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, unexpected(err)
		}
		n := binary.BigEndian.Uint64(ext[:])
		if n > 1<<62 {
			return nil, api.ErrFrameTooLarge
		}
		payloadLen = int64(n)
	}

	if payloadLen > maxPayload {
		return nil, api.ErrFrameTooLarge
	}

	var maskKey [4]byte
	if isMasked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return nil, unexpected(err)
		}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, unexpected(err)
	}
	if isMasked {
		maskInPlace(payload, maskKey)
	}

	return &WSFrame{
		IsFinal:    isFin,
		Opcode:     opcode,
		Masked:     isMasked,
		PayloadLen: payloadLen,
		MaskKey:    maskKey,
		Payload:    payload,
	}, nil
}

// unexpected converts a clean EOF inside a frame into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ToFrame validates a wire frame and converts it to an api.Frame.
func ToFrame(wf *WSFrame) (api.Frame, error) {
	op := api.Opcode(wf.Opcode)
	if !wf.IsFinal || op == api.OpcodeContinuation {
		return api.Frame{}, api.ErrFragmented
	}
	if op.IsControl() && wf.PayloadLen > MaxControlPayloadLen {
		return api.Frame{}, api.ErrControlTooLarge
	}

	switch op {
	case api.OpcodeText, api.OpcodeBinary, api.OpcodePing, api.OpcodePong:
		return api.Frame{Opcode: op, Payload: wf.Payload}, nil
	case api.OpcodeClose:
		reason, err := decodeClosePayload(wf.Payload)
		if err != nil {
			return api.Frame{}, err
		}
		return api.CloseFrame(reason), nil
	default:
		return api.Frame{}, api.NewError(api.ErrCodeProtocol, "protocol: unknown opcode").
			WithContext("opcode", fmt.Sprintf("0x%x", wf.Opcode))
	}
}

func decodeClosePayload(p []byte) (*api.CloseReason, error) {
	switch {
	case len(p) == 0:
		return nil, nil
	case len(p) == 1:
		return nil, api.NewError(api.ErrCodeProtocol, "protocol: close payload of 1 byte")
	}
	return &api.CloseReason{
		Code:   binary.BigEndian.Uint16(p[:2]),
		Reason: string(p[2:]),
	}, nil
}

// payloadOf returns the wire payload of f.
func payloadOf(f api.Frame) []byte {
	if f.Opcode != api.OpcodeClose {
		return f.Payload
	}
	if f.Close == nil {
		return nil
	}
	p := make([]byte, 2+len(f.Close.Reason))
	binary.BigEndian.PutUint16(p, f.Close.Code)
	copy(p[2:], f.Close.Reason)
	return p
}

// AppendFrame appends the wire encoding of f to dst. A non-nil maskKey
// masks the payload; f itself is never modified.
func AppendFrame(dst []byte, f api.Frame, maskKey *[4]byte) ([]byte, error) {
	payload := payloadOf(f)
	plen := len(payload)
	if f.Opcode.IsControl() && plen > MaxControlPayloadLen {
		return dst, api.ErrControlTooLarge
	}

	var maskBit byte
	if maskKey != nil {
		maskBit = MaskBit
	}

	dst = append(dst, FinBit|byte(f.Opcode)&0x0F)
	switch {
	case plen <= 125:
		dst = append(dst, byte(plen)|maskBit)
	case plen <= 0xFFFF:
		dst = append(dst, 126|maskBit)
		dst = binary.BigEndian.AppendUint16(dst, uint16(plen))
	default:
		dst = append(dst, 127|maskBit)
		dst = binary.BigEndian.AppendUint64(dst, uint64(plen))
	}

	if maskKey == nil {
		return append(dst, payload...), nil
	}
	dst = append(dst, maskKey[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	maskInPlace(dst[start:], *maskKey)
	return dst, nil
}

// maskInPlace applies XOR on buf using key. Masking is its own inverse.
func maskInPlace(buf []byte, key [4]byte) {
	for i := 0; i < len(buf); i++ {
		buf[i] ^= key[i%4]
	}
}
