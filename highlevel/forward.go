// File: highlevel/forward.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Forward pumps text items from one Conn to another.

package highlevel

import (
	"context"
	"errors"
	"io"
)

// Forward copies every message read from src into dst, flushing after each
// one, until src reports io.EOF. It returns the number of messages copied.
// src and dst may be the same Conn, which turns it into an echo.
func Forward(ctx context.Context, src, dst *Conn) (int, error) {
	n := 0
	for {
		s, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return n, dst.Flush(ctx)
		}
		if err != nil {
			return n, err
		}
		if err := dst.Write(ctx, s); err != nil {
			return n, err
		}
		if err := dst.Flush(ctx); err != nil {
			return n, err
		}
		n++
	}
}
