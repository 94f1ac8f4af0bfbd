package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"rollduel/internal/transport"
	"rollduel/pkg/protocol"
)

func startServer(t *testing.T, grace time.Duration) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, "test-secret", grace)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *transport.SignalConn {
	t.Helper()
	sc, err := transport.DialSignal(context.Background(), url)
	if err != nil {
		t.Fatalf("DialSignal: %v", err)
	}
	t.Cleanup(func() { sc.Close() })
	return sc
}

func next(t *testing.T, sc *transport.SignalConn) *protocol.Signal {
	t.Helper()
	select {
	case s, ok := <-sc.Incoming():
		if !ok {
			t.Fatalf("connection closed: %v", sc.Err())
		}
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for signal")
		return nil
	}
}

func TestTicketRoundTrip(t *testing.T) {
	issuer := NewTicketIssuer("secret")
	ticket, err := issuer.Issue("peer-a", "room-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	peerID, roomID, err := issuer.Verify(ticket)
	if err != nil || peerID != "peer-a" || roomID != "room-1" {
		t.Fatalf("Verify = %q, %q, %v", peerID, roomID, err)
	}

	if _, _, err := NewTicketIssuer("other").Verify(ticket); !errors.Is(err, ErrInvalidTicket) {
		t.Fatalf("wrong key = %v, want ErrInvalidTicket", err)
	}

	expired := NewTicketIssuer("secret")
	expired.now = func() time.Time { return time.Now().Add(2 * TicketTTL) }
	if _, _, err := expired.Verify(ticket); !errors.Is(err, ErrInvalidTicket) {
		t.Fatalf("expired = %v, want ErrInvalidTicket", err)
	}
}

func TestRosterInJoinOrder(t *testing.T) {
	url := startServer(t, time.Second) + "/order?players=2"

	a := dial(t, url)
	wa := next(t, a)
	if wa.Kind != protocol.SignalWelcome || len(wa.Roster) != 1 || wa.Roster[0] != wa.PeerID {
		t.Fatalf("first welcome = %+v", wa)
	}

	b := dial(t, url)
	wb := next(t, b)
	if !slices.Equal(wb.Roster, []string{wa.PeerID, wb.PeerID}) {
		t.Fatalf("second roster = %v, want [%s %s]", wb.Roster, wa.PeerID, wb.PeerID)
	}

	joined := next(t, a)
	if joined.Kind != protocol.SignalPeerJoined || joined.PeerID != wb.PeerID {
		t.Fatalf("announcement = %+v, want PeerJoined %s", joined, wb.PeerID)
	}
}

func TestRelayBetweenPeers(t *testing.T) {
	url := startServer(t, time.Second) + "/relay"
	a := dial(t, url)
	wa := next(t, a)
	b := dial(t, url)
	wb := next(t, b)
	next(t, a) // PeerJoined

	if err := a.Send(protocol.NewRelay(wb.PeerID, []byte{1, 2, 3})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := next(t, b)
	if got.Kind != protocol.SignalRelay || got.PeerID != wa.PeerID || string(got.Data) != "\x01\x02\x03" {
		t.Fatalf("relayed = %+v", got)
	}
}

func TestFullRoomRejected(t *testing.T) {
	url := startServer(t, time.Second) + "/solo?players=1"
	a := dial(t, url)
	next(t, a)

	b := dial(t, url)
	s := next(t, b)
	if s.Kind != protocol.SignalError {
		t.Fatalf("signal = %+v, want error", s)
	}
	select {
	case _, ok := <-b.Incoming():
		if ok {
			t.Fatal("expected connection to close after rejection")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rejected connection stayed open")
	}
}

func TestResumeKeepsPosition(t *testing.T) {
	base := startServer(t, 2*time.Second) + "/resume"
	a := dial(t, base)
	wa := next(t, a)
	b := dial(t, base)
	next(t, b)

	a.Close()
	time.Sleep(50 * time.Millisecond)

	again := dial(t, base+"?ticket="+wa.Ticket)
	w := next(t, again)
	if w.PeerID != wa.PeerID {
		t.Fatalf("resumed id = %s, want %s", w.PeerID, wa.PeerID)
	}
	if len(w.Roster) != 2 || w.Roster[0] != wa.PeerID {
		t.Fatalf("resumed roster = %v, want %s first", w.Roster, wa.PeerID)
	}
}

func TestDetachedPeerLeavesAfterGrace(t *testing.T) {
	base := startServer(t, 50*time.Millisecond) + "/grace"
	a := dial(t, base)
	wa := next(t, a)
	b := dial(t, base)
	next(t, b)
	next(t, a) // PeerJoined

	a.Close()
	left := next(t, b)
	if left.Kind != protocol.SignalPeerLeft || left.PeerID != wa.PeerID {
		t.Fatalf("signal = %+v, want PeerLeft %s", left, wa.PeerID)
	}
}

func TestBadRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewServer(ctx, "test-secret", time.Second)
	defer srv.Shutdown()

	tests := []struct {
		target string
		want   int
	}{
		{"/room?players=0", http.StatusBadRequest},
		{"/room?players=abc", http.StatusBadRequest},
		{"/room?ticket=garbage", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.target, rec.Code, tt.want)
		}
	}
}
