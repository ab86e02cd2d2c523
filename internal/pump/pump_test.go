package pump

import (
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/momentics/wstransport/api"
)

// memConn is a blocking Conn fed from Go channels.
type memConn struct {
	in      chan api.Frame
	inErr   chan error
	gate    chan struct{} // each write waits for one token when non-nil
	control func(api.Frame)

	mu       sync.Mutex
	written  []api.Frame
	writeErr error
	closes   int
	closed   chan struct{}
}

func newMemConn() *memConn {
	return &memConn{
		in:     make(chan api.Frame, 16),
		inErr:  make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (m *memConn) ReadFrame() (api.Frame, error) {
	select {
	case f := <-m.in:
		if f.Opcode == api.OpcodeContinuation && m.control != nil {
			// test hook: a continuation marker triggers a control frame
			m.control(api.PingFrame(f.Payload))
			return m.ReadFrame()
		}
		return f, nil
	case err := <-m.inErr:
		return api.Frame{}, err
	case <-m.closed:
		return api.Frame{}, errors.New("use of closed connection")
	}
}

func (m *memConn) WriteFrame(f api.Frame) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, f)
	return nil
}

func (m *memConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	if m.closes == 1 {
		close(m.closed)
	}
	return nil
}

func (m *memConn) Written() []api.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.Frame, len(m.written))
	copy(out, m.written)
	return out
}

type controlConn struct{ *memConn }

func (c controlConn) SetControlHandler(h func(api.Frame)) { c.control = h }

func waitReady(t *testing.T, c *Channel) {
	t.Helper()
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for readiness")
	}
}

func recv(t *testing.T, c *Channel) (api.Frame, error) {
	t.Helper()
	for {
		f, err := c.RecvFrame()
		if !errors.Is(err, api.ErrWouldBlock) {
			return f, err
		}
		waitReady(t, c)
	}
}

func flush(t *testing.T, c *Channel) error {
	t.Helper()
	for {
		err := c.Flush()
		if !errors.Is(err, api.ErrWouldBlock) {
			return err
		}
		waitReady(t, c)
	}
}

func TestRecvInOrder(t *testing.T) {
	mc := newMemConn()
	c := New(mc)
	defer c.Close()

	if _, err := c.RecvFrame(); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock on empty channel, got %v", err)
	}

	want := []api.Frame{api.TextFrame("a"), api.BinaryFrame([]byte{1}), api.PingFrame([]byte("p"))}
	for _, f := range want {
		mc.in <- f
	}
	for i, w := range want {
		got, err := recv(t, c)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !reflect.DeepEqual(got, w) {
			t.Fatalf("frame %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestEndOfStreamAfterQueuedFrames(t *testing.T) {
	mc := newMemConn()
	c := New(mc)
	defer c.Close()

	mc.in <- api.TextFrame("last")
	// let the reader take the frame before the EOF races it
	if f, err := recv(t, c); err != nil || f.Text() != "last" {
		t.Fatalf("expected last frame, got %v, %v", f, err)
	}
	mc.inErr <- io.EOF
	if _, err := recv(t, c); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := c.RecvFrame(); err != io.EOF {
		t.Fatalf("io.EOF must persist, got %v", err)
	}
}

func TestSingleWriteSlot(t *testing.T) {
	mc := newMemConn()
	mc.gate = make(chan struct{})
	c := New(mc)
	defer c.Close()

	if _, ok, err := c.StartSend(api.TextFrame("one")); !ok || err != nil {
		t.Fatalf("first send refused: %v, %v", ok, err)
	}
	back, ok, err := c.StartSend(api.TextFrame("two"))
	if ok || err != nil {
		t.Fatalf("second send must be refused while the first is in flight: %v, %v", ok, err)
	}
	if back.Text() != "two" {
		t.Fatalf("refused frame must be handed back, got %v", back)
	}
	if err := c.Flush(); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock while writing, got %v", err)
	}

	mc.gate <- struct{}{}
	if err := flush(t, c); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, ok, _ := c.StartSend(back); !ok {
		t.Fatal("send refused after flush")
	}
	mc.gate <- struct{}{}
	if err := flush(t, c); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []api.Frame{api.TextFrame("one"), api.TextFrame("two")}
	if got := mc.Written(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	stats := c.Stats()
	if stats["frames_sent"] != 2 || stats["bytes_sent"] != 6 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestWriteErrorSurfaces(t *testing.T) {
	errBroken := errors.New("broken pipe")
	mc := newMemConn()
	mc.writeErr = errBroken
	core, logs := observer.New(zap.DebugLevel)
	c := New(mc, WithLogger(zap.New(core)))
	defer c.Close()

	if _, ok, err := c.StartSend(api.TextFrame("x")); !ok || err != nil {
		t.Fatalf("send refused: %v, %v", ok, err)
	}
	if err := flush(t, c); err != errBroken {
		t.Fatalf("expected %v from Flush, got %v", errBroken, err)
	}
	if _, _, err := c.StartSend(api.TextFrame("y")); err != errBroken {
		t.Fatalf("expected %v from StartSend, got %v", errBroken, err)
	}
	if n := logs.FilterMessage("write frame").Len(); n != 1 {
		t.Fatalf("expected one write failure logged, got %d", n)
	}
}

func TestCloseDrainsThenClosesOnce(t *testing.T) {
	mc := newMemConn()
	mc.gate = make(chan struct{})
	c := New(mc)

	if _, ok, _ := c.StartSend(api.TextFrame("bye")); !ok {
		t.Fatal("send refused")
	}
	if err := c.Close(); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("Close must wait for the in-flight write, got %v", err)
	}
	mc.gate <- struct{}{}
	for {
		err := c.Close()
		if err == nil {
			break
		}
		if !errors.Is(err, api.ErrWouldBlock) {
			t.Fatalf("Close: %v", err)
		}
		waitReady(t, c)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if mc.closes != 1 {
		t.Fatalf("expected one close of the connection, got %d", mc.closes)
	}
	if _, _, err := c.StartSend(api.TextFrame("late")); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if _, err := recv(t, c); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("expected ErrClosed from reader, got %v", err)
	}
	if got := mc.Written(); len(got) != 1 {
		t.Fatalf("in-flight write lost on close: %v", got)
	}
}

func TestControlFramesKeepOrder(t *testing.T) {
	mc := newMemConn()
	c := New(controlConn{mc})
	defer c.Close()

	mc.in <- api.TextFrame("before")
	mc.in <- api.Frame{Opcode: api.OpcodeContinuation, Payload: []byte("ctl")}
	mc.in <- api.TextFrame("after")

	want := []api.Frame{api.TextFrame("before"), api.PingFrame([]byte("ctl")), api.TextFrame("after")}
	for i, w := range want {
		got, err := recv(t, c)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !reflect.DeepEqual(got, w) {
			t.Fatalf("frame %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestInboundQueueBound(t *testing.T) {
	mc := newMemConn()
	c := New(mc, WithInboundQueue(1))
	defer c.Close()

	mc.in <- api.TextFrame("1")
	mc.in <- api.TextFrame("2")
	mc.in <- api.TextFrame("3")

	waitReady(t, c)
	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	queued := c.inbound.Length()
	c.mu.Unlock()
	if queued > 1 {
		t.Fatalf("inbound queue exceeded its bound: %d", queued)
	}

	for _, w := range []string{"1", "2", "3"} {
		f, err := recv(t, c)
		if err != nil || f.Text() != w {
			t.Fatalf("expected %q, got %v, %v", w, f, err)
		}
	}
}
