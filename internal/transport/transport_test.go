package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// waitMessage 轮询直到收到一条数据消息
func waitMessage(t *testing.T, tr Transport, send func() error) Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := send(); err != nil && !errors.Is(err, ErrPeerNotConnected) {
			t.Fatalf("send: %v", err)
		}
		for _, m := range tr.Receive() {
			if !m.Disconnected {
				return m
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for message")
	return Message{}
}

func TestMemoryDelivery(t *testing.T) {
	n := NewMemoryNetwork(2)
	a, b := n.Endpoint(0), n.Endpoint(1)

	if err := a.Send(1, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := b.Receive()
	if len(got) != 1 || got[0].Peer != 0 || string(got[0].Data) != "hi" {
		t.Fatalf("Receive() = %+v", got)
	}
	if len(b.Receive()) != 0 {
		t.Fatal("Receive() should drain the queue")
	}
}

func TestMemoryHoldRelease(t *testing.T) {
	n := NewMemoryNetwork(2)
	a, b := n.Endpoint(0), n.Endpoint(1)

	n.Hold(0, 1)
	_ = a.Send(1, []byte{1})
	_ = a.Send(1, []byte{2})
	if got := b.Receive(); len(got) != 0 {
		t.Fatalf("held link delivered %+v", got)
	}

	n.Release(0, 1)
	got := b.Receive()
	if len(got) != 2 || got[0].Data[0] != 1 || got[1].Data[0] != 2 {
		t.Fatalf("released = %+v, want in-order [1 2]", got)
	}
}

func TestMemoryCloseNotifiesPeers(t *testing.T) {
	n := NewMemoryNetwork(2)
	a, b := n.Endpoint(0), n.Endpoint(1)

	_ = a.Close()
	_ = a.Close()
	got := b.Receive()
	if len(got) != 1 || !got[0].Disconnected || got[0].Peer != 0 {
		t.Fatalf("Receive() = %+v, want one disconnect from 0", got)
	}
	if err := a.Send(1, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close = %v, want ErrClosed", err)
	}
}

func TestUDPRoundTrip(t *testing.T) {
	p0, p1 := freeUDPPort(t), freeUDPPort(t)
	loopback := func(port int) *net.UDPAddr { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port} }

	t0, err := ListenUDP(p0, map[PeerHandle]*net.UDPAddr{1: loopback(p1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer t0.Close()
	t1, err := ListenUDP(p1, map[PeerHandle]*net.UDPAddr{0: loopback(p0)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer t1.Close()

	m := waitMessage(t, t1, func() error { return t0.Send(1, []byte("udp")) })
	if m.Peer != 0 || string(m.Data) != "udp" {
		t.Fatalf("message = %+v", m)
	}

	if err := t0.Send(5, []byte("x")); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Send to unknown = %v, want ErrUnknownPeer", err)
	}
	if err := t0.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := t0.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestKCPRoundTrip(t *testing.T) {
	p0, p1 := freeUDPPort(t), freeUDPPort(t)
	addr := func(port int) string { return fmt.Sprintf("127.0.0.1:%d", port) }

	t1, err := ListenKCP(p1, 1, map[PeerHandle]string{0: addr(p0)})
	if err != nil {
		t.Fatalf("ListenKCP: %v", err)
	}
	defer t1.Close()
	t0, err := ListenKCP(p0, 0, map[PeerHandle]string{1: addr(p1)})
	if err != nil {
		t.Fatalf("ListenKCP: %v", err)
	}
	defer t0.Close()

	m := waitMessage(t, t1, func() error { return t0.Send(1, []byte("dial side")) })
	if m.Peer != 0 || string(m.Data) != "dial side" {
		t.Fatalf("message at 1 = %+v", m)
	}

	m = waitMessage(t, t0, func() error { return t1.Send(0, []byte("accept side")) })
	if m.Peer != 1 || string(m.Data) != "accept side" {
		t.Fatalf("message at 0 = %+v", m)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("abc")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if buf.Len() != 7 {
		t.Fatalf("frame length = %d, want 7", buf.Len())
	}
	got, err := readFrame(&buf)
	if err != nil || string(got) != "abc" {
		t.Fatalf("readFrame = %q, %v", got, err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x01, 0x00, 0x01})
	if _, err := readFrame(buf); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("readFrame = %v, want ErrPacketTooLarge", err)
	}
}

func TestOutboxDropsWhenWriterStuck(t *testing.T) {
	o := newOutbox()
	stuck := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- o.run(func([]byte) error {
			<-stuck
			return errors.New("写入中断")
		})
	}()

	// 写协程卡在第一条上，队列再容纳 outboxSize 条
	var full int
	for i := 0; i < outboxSize+10; i++ {
		if err := o.push([]byte{byte(i)}); err != nil {
			if !errors.Is(err, ErrSendQueueFull) {
				t.Fatalf("push %d: %v", i, err)
			}
			full++
		}
	}
	if full == 0 {
		t.Fatal("expected ErrSendQueueFull once the queue is full")
	}

	o.close()
	close(stuck)
	if err := <-done; err != nil {
		t.Fatalf("run after close = %v, want nil", err)
	}
	if err := o.push([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("push after close = %v, want ErrClosed", err)
	}
}

func TestRelaySendDoesNotBlockOnStalledServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		// 从不读取，客户端的 TCP 缓冲最终写满
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	sc, err := DialSignal(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	defer sc.Close()
	defer cancel()

	relay := NewRelay(sc, map[PeerHandle]string{1: "peer-1"}, nil)
	payload := bytes.Repeat([]byte{0xab}, MaxPacketSize)

	var full int
	for i := 0; i < 8000; i++ {
		start := time.Now()
		err := relay.Send(1, payload)
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Fatalf("send %d blocked for %v", i, elapsed)
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrSendQueueFull):
			full++
		default:
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if full == 0 {
		t.Fatal("expected ErrSendQueueFull after the server stopped reading")
	}
}

// brokenConn 每次读取都失败，关闭后返回 net.ErrClosed
type brokenConn struct {
	reads  atomic.Int32
	closed atomic.Bool
}

func (c *brokenConn) ReadFromUDPAddrPort([]byte) (int, netip.AddrPort, error) {
	if c.closed.Load() {
		return 0, netip.AddrPort{}, net.ErrClosed
	}
	c.reads.Add(1)
	return 0, netip.AddrPort{}, errors.New("connection refused")
}

func (c *brokenConn) WriteToUDP(b []byte, _ *net.UDPAddr) (int, error) { return len(b), nil }

func (c *brokenConn) LocalAddr() net.Addr { return &net.UDPAddr{} }

func (c *brokenConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestUDPReadErrorsBackOff(t *testing.T) {
	conn := &brokenConn{}
	tr := newUDP(conn, nil)

	time.Sleep(10 * readRetryDelay)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// 没有退避时这段时间内会读上百万次
	if n := conn.reads.Load(); n == 0 || n > 20 {
		t.Fatalf("reads = %d, want a handful with backoff", n)
	}
}
