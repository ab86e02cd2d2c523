package highlevel_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/momentics/wstransport/adapters"
	"github.com/momentics/wstransport/api"
	"github.com/momentics/wstransport/fake"
	"github.com/momentics/wstransport/highlevel"
)

func newConn(t *testing.T) (*highlevel.Conn, *fake.Channel) {
	t.Helper()
	ch := fake.NewChannel()
	return highlevel.NewConn(adapters.NewTextAdapter(ch)), ch
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestForwardEchoes(t *testing.T) {
	c, ch := newConn(t)
	ch.SetFlushDelay(2)
	ch.Push(
		api.TextFrame("Hello World"),
		api.PingFrame([]byte("Hello World")),
		api.BinaryFrame([]byte("Hello Binary")),
	)
	ch.End()

	n, err := highlevel.Forward(testContext(t), c, c)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 messages forwarded, got %d", n)
	}
	want := []api.Frame{
		api.TextFrame("Hello World"),
		api.PongFrame([]byte("Hello World")),
		api.TextFrame("Hello Binary"),
	}
	if got := ch.Sent(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestForwardBetweenConns(t *testing.T) {
	src, in := newConn(t)
	dst, out := newConn(t)
	in.Push(api.TextFrame("a"), api.TextFrame("b"))
	in.End()

	n, err := highlevel.Forward(testContext(t), src, dst)
	if err != nil || n != 2 {
		t.Fatalf("Forward: %d, %v", n, err)
	}
	if got := out.Sent(); len(got) != 2 || got[0].Text() != "a" || got[1].Text() != "b" {
		t.Fatalf("unexpected frames at destination: %v", got)
	}
	if got := in.Sent(); len(got) != 0 {
		t.Fatalf("source must not be written to: %v", got)
	}
}

func TestForwardStopsOnDecodeError(t *testing.T) {
	c, ch := newConn(t)
	ch.Push(api.TextFrame("ok"), api.BinaryFrame([]byte{0xf0, 0x28}))
	ch.End()

	n, err := highlevel.Forward(testContext(t), c, c)
	var uerr *api.Utf8Error
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *api.Utf8Error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message forwarded, got %d", n)
	}
}

func TestReadWaitsForInput(t *testing.T) {
	c, ch := newConn(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.Push(api.TextFrame("late"))
	}()

	s, err := c.Read(testContext(t))
	if err != nil || s != "late" {
		t.Fatalf("expected %q, got %q, %v", "late", s, err)
	}
}

func TestReadHonoursContext(t *testing.T) {
	c, _ := newConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestReadEndOfStream(t *testing.T) {
	c, ch := newConn(t)
	ch.End()

	if _, err := c.Read(testContext(t)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadLimit(t *testing.T) {
	c, ch := newConn(t)
	c.SetReadLimit(4)
	ch.Push(api.TextFrame("too long"), api.TextFrame("ok"))

	if _, err := c.Read(testContext(t)); !errors.Is(err, highlevel.ErrReadLimit) {
		t.Fatalf("expected ErrReadLimit, got %v", err)
	}
	if s, err := c.Read(testContext(t)); err != nil || s != "ok" {
		t.Fatalf("expected %q after an oversized message, got %q, %v", "ok", s, err)
	}
}

func TestWriteRetriesRefusedSend(t *testing.T) {
	c, ch := newConn(t)
	ch.RejectSends(2)

	if err := c.Write(testContext(t), "hi"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := ch.Sent(); len(got) != 1 || got[0].Text() != "hi" {
		t.Fatalf("expected Text(\"hi\"), got %v", got)
	}
}

func TestWriteSurfacesError(t *testing.T) {
	c, ch := newConn(t)
	errBroken := errors.New("broken pipe")
	ch.SetSendError(errBroken)

	if err := c.Write(testContext(t), "x"); err != errBroken {
		t.Fatalf("expected %v, got %v", errBroken, err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c, ch := newConn(t)
	type msg struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	}

	if err := c.WriteJSON(testContext(t), msg{Kind: "tick", Count: 3}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := c.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	sent := ch.Sent()
	if len(sent) != 1 || sent[0].Text() != `{"kind":"tick","count":3}` {
		t.Fatalf("unexpected frame: %v", sent)
	}

	ch.Push(sent[0])
	var got msg
	if err := c.ReadJSON(testContext(t), &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Kind != "tick" || got.Count != 3 {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestCloseFlushesOnce(t *testing.T) {
	c, ch := newConn(t)
	ch.SetFlushDelay(1)
	calls := 0
	c.OnClose(func() { calls++ })

	if err := c.Write(testContext(t), "bye"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(testContext(t)); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one close callback, got %d", calls)
	}
	if !ch.Closed() {
		t.Fatal("channel not closed")
	}
	if got := ch.Sent(); len(got) != 1 || got[0].Text() != "bye" {
		t.Fatalf("pending write lost on close: %v", got)
	}
	if _, err := c.Read(testContext(t)); !errors.Is(err, highlevel.ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
	if err := c.Write(testContext(t), "late"); !errors.Is(err, highlevel.ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestCloseRetriesAfterContextEnds(t *testing.T) {
	c, ch := newConn(t)
	ch.SetCloseBlocks(1)
	calls := 0
	c.OnClose(func() { calls++ })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Close(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while draining, got %v", err)
	}
	if ch.Closed() || calls != 0 {
		t.Fatalf("Conn must stay open after an interrupted close (closed=%v, callbacks=%d)", ch.Closed(), calls)
	}

	if err := c.Close(testContext(t)); err != nil {
		t.Fatalf("retried Close: %v", err)
	}
	if !ch.Closed() || calls != 1 {
		t.Fatalf("retry must close the channel once (closed=%v, callbacks=%d)", ch.Closed(), calls)
	}
	closes := 0
	for _, ev := range ch.Events() {
		if ev == "close" {
			closes++
		}
	}
	if closes != 2 {
		t.Fatalf("expected the channel to see two Close calls, got %d", closes)
	}
}
