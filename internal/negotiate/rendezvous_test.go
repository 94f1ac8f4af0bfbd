package negotiate

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"rollduel/internal/signaling"
	"rollduel/internal/transport"
)

func startSignaling(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := signaling.NewServer(ctx, "test-secret", time.Second)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newRendezvous(t *testing.T, url string, n int) *Rendezvous {
	t.Helper()
	r, err := NewRendezvous(context.Background(), url, n, WithReconnectInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewRendezvous: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// pollFor 轮询直到满足条件或超时
func pollFor(t *testing.T, r *Rendezvous, done func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		state, err := r.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if done(state) {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out polling rendezvous")
	return StateAwaitingPeers
}

func rosterSize(r *Rendezvous, n int) func(State) bool {
	return func(State) bool { return len(r.Roster()) >= n }
}

func isReady(s State) bool { return s == StateReady }

func TestRendezvousReadyExactlyAtCount(t *testing.T) {
	url := startSignaling(t) + "/trio"
	a, b, c := newRendezvous(t, url, 3), newRendezvous(t, url, 3), newRendezvous(t, url, 3)

	pollFor(t, a, rosterSize(a, 1))
	pollFor(t, b, rosterSize(b, 2))
	if state := pollFor(t, a, rosterSize(a, 2)); state != StateAwaitingPeers {
		t.Fatalf("two of three peers: state = %v, want awaiting", state)
	}

	pollFor(t, c, isReady)
	pollFor(t, a, isReady)
	pollFor(t, b, isReady)

	want := a.Roster()
	if len(want) != 3 {
		t.Fatalf("roster = %v, want 3 ids", want)
	}
	for _, r := range []*Rendezvous{b, c} {
		if !slices.Equal(r.Roster(), want) {
			t.Fatalf("roster order differs: %v vs %v", r.Roster(), want)
		}
	}
	if want[0] != a.Self() || want[1] != b.Self() || want[2] != c.Self() {
		t.Fatalf("roster %v not in join order", want)
	}
}

func TestRendezvousRelayHandOff(t *testing.T) {
	url := startSignaling(t) + "/pair"
	a, b := newRendezvous(t, url, 2), newRendezvous(t, url, 2)

	pollFor(t, a, rosterSize(a, 1))
	pollFor(t, b, isReady)
	pollFor(t, a, isReady)

	ra, err := a.Result()
	if err != nil {
		t.Fatalf("Result(a): %v", err)
	}
	defer ra.Transport.Close()
	rb, err := b.Result()
	if err != nil {
		t.Fatalf("Result(b): %v", err)
	}
	defer rb.Transport.Close()

	if _, err := a.Result(); !errors.Is(err, ErrResultConsumed) {
		t.Fatalf("second Result = %v, want ErrResultConsumed", err)
	}
	if !ra.Participants[0].Local || ra.Participants[1].Local {
		t.Fatalf("a participants = %+v, want [local remote]", ra.Participants)
	}
	if rb.Participants[0].Local || !rb.Participants[1].Local {
		t.Fatalf("b participants = %+v, want [remote local]", rb.Participants)
	}

	if err := ra.Transport.Send(1, []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range rb.Transport.Receive() {
			if !m.Disconnected && m.Peer == transport.PeerHandle(0) && string(m.Data) == "ping" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("relayed message not received")
}

func TestRendezvousRoomFull(t *testing.T) {
	url := startSignaling(t) + "/full"
	a, b := newRendezvous(t, url, 2), newRendezvous(t, url, 2)
	pollFor(t, a, rosterSize(a, 1))
	pollFor(t, b, isReady)

	c := newRendezvous(t, url, 2)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Poll(); err != nil {
			if !errors.Is(err, ErrRoomFull) {
				t.Fatalf("Poll = %v, want ErrRoomFull", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("third peer was not rejected")
}
