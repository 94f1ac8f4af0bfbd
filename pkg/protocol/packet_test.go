package protocol

import (
	"bytes"
	"errors"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestInputPacketRoundTrip(t *testing.T) {
	original := NewInputPacket(1, 42, []byte{0x01, 0x11, 0x00, 0x1f}, 39)

	decoded, err := UnmarshalPacket(MarshalPacket(original))
	if err != nil {
		t.Fatalf("UnmarshalPacket failed: %v", err)
	}

	if decoded.Kind != KindInput {
		t.Errorf("Kind = %v, want %v", decoded.Kind, KindInput)
	}
	if decoded.Slot != 1 {
		t.Errorf("Slot = %d, want 1", decoded.Slot)
	}
	if decoded.StartFrame != 42 {
		t.Errorf("StartFrame = %d, want 42", decoded.StartFrame)
	}
	if !bytes.Equal(decoded.Inputs, original.Inputs) {
		t.Errorf("Inputs = %v, want %v", decoded.Inputs, original.Inputs)
	}
	if decoded.AckFrame != 39 {
		t.Errorf("AckFrame = %d, want 39", decoded.AckFrame)
	}
	if decoded.EndFrame() != 46 {
		t.Errorf("EndFrame = %d, want 46", decoded.EndFrame())
	}
}

func TestPacketNoFrameAck(t *testing.T) {
	decoded, err := UnmarshalPacket(MarshalPacket(NewKeepalivePacket(0, NoFrame)))
	if err != nil {
		t.Fatalf("UnmarshalPacket failed: %v", err)
	}
	if decoded.AckFrame != NoFrame {
		t.Errorf("AckFrame = %d, want %d", decoded.AckFrame, NoFrame)
	}
	if len(decoded.Inputs) != 0 {
		t.Errorf("Inputs = %v, want empty", decoded.Inputs)
	}
}

func TestPacketVersionMismatch(t *testing.T) {
	p := NewHelloPacket(0)
	p.Version = Version + 1

	_, err := UnmarshalPacket(MarshalPacket(p))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("error = %v, want ErrVersionMismatch", err)
	}
}

func TestPacketSkipsUnknownFields(t *testing.T) {
	data := MarshalPacket(NewByePacket(1))
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "future")

	decoded, err := UnmarshalPacket(data)
	if err != nil {
		t.Fatalf("UnmarshalPacket failed: %v", err)
	}
	if decoded.Kind != KindBye || decoded.Slot != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPacketTruncated(t *testing.T) {
	data := MarshalPacket(NewInputPacket(0, 0, []byte{1, 2, 3}, 0))
	if _, err := UnmarshalPacket(data[:len(data)-4]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestSignalRoundTrip(t *testing.T) {
	original := NewWelcome("peer-b", "ticket", []string{"peer-a", "peer-b"})

	decoded, err := UnmarshalSignal(MarshalSignal(original))
	if err != nil {
		t.Fatalf("UnmarshalSignal failed: %v", err)
	}
	if decoded.Kind != SignalWelcome || decoded.PeerID != "peer-b" || decoded.Ticket != "ticket" {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Roster) != 2 || decoded.Roster[0] != "peer-a" || decoded.Roster[1] != "peer-b" {
		t.Errorf("Roster = %v", decoded.Roster)
	}

	relay, err := UnmarshalSignal(MarshalSignal(NewRelay("peer-a", []byte{7, 8})))
	if err != nil {
		t.Fatalf("UnmarshalSignal relay failed: %v", err)
	}
	if relay.Target != "peer-a" || !bytes.Equal(relay.Data, []byte{7, 8}) {
		t.Errorf("relay = %+v", relay)
	}
}

func TestSignalMissingKind(t *testing.T) {
	if _, err := UnmarshalSignal(nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestPacketMissingVersionIsMalformed(t *testing.T) {
	for _, data := range [][]byte{nil, {}, protowire.AppendVarint(protowire.AppendTag(nil, 2, protowire.VarintType), uint64(KindInput))} {
		_, err := UnmarshalPacket(data)
		if !errors.Is(err, ErrMalformed) || errors.Is(err, ErrVersionMismatch) {
			t.Errorf("UnmarshalPacket(%x) = %v, want ErrMalformed only", data, err)
		}
	}

	zero := protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 0)
	if _, err := UnmarshalPacket(zero); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("explicit v0 = %v, want ErrVersionMismatch", err)
	}
}
