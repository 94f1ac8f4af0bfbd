package session

import (
	"errors"
	"testing"
)

func TestBuildSlotsDirectPair(t *testing.T) {
	slots, err := BuildSlots([]Participant{{Local: true}, {Addr: "203.0.113.5:9000"}}, 2)
	if err != nil {
		t.Fatalf("BuildSlots: %v", err)
	}
	if !slots[0].IsLocal() || slots[0].Index != 0 {
		t.Errorf("slot 0 = %+v, want local index 0", slots[0])
	}
	if slots[1].IsLocal() || slots[1].Addr != "203.0.113.5:9000" || slots[1].Handle != 1 {
		t.Errorf("slot 1 = %+v, want remote 203.0.113.5:9000 handle 1", slots[1])
	}

	handles, err := LocalHandles(slots)
	if err != nil {
		t.Fatalf("LocalHandles: %v", err)
	}
	if len(handles) != 1 || handles[0] != 0 {
		t.Fatalf("LocalHandles = %v, want [0]", handles)
	}
}

func TestBuildSlotsCountMismatch(t *testing.T) {
	for _, n := range []int{1, 3} {
		if _, err := BuildSlots([]Participant{{Local: true}, {Addr: "b"}}, n); !errors.Is(err, ErrParticipantCountMismatch) {
			t.Errorf("BuildSlots(n=%d) = %v, want ErrParticipantCountMismatch", n, err)
		}
	}
}

func TestLocalHandlesRequiresLocal(t *testing.T) {
	slots, err := BuildSlots([]Participant{{Addr: "a"}, {Addr: "b"}}, 2)
	if err != nil {
		t.Fatalf("BuildSlots: %v", err)
	}
	if _, err := LocalHandles(slots); !errors.Is(err, ErrNoLocalParticipant) {
		t.Fatalf("LocalHandles = %v, want ErrNoLocalParticipant", err)
	}
}

func TestLocalHandlesOrdered(t *testing.T) {
	slots, _ := BuildSlots([]Participant{{Addr: "a"}, {Local: true}, {Local: true}}, 3)
	handles, err := LocalHandles(slots)
	if err != nil {
		t.Fatalf("LocalHandles: %v", err)
	}
	if len(handles) != 2 || handles[0] != 1 || handles[1] != 2 {
		t.Fatalf("LocalHandles = %v, want [1 2]", handles)
	}
}
