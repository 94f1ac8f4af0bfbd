package core

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestInputBitLayout(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  byte
	}{
		{"empty", Input{}, 0x00},
		{"up", Input{Up: true}, 0x01},
		{"down", Input{Down: true}, 0x02},
		{"left", Input{Left: true}, 0x04},
		{"right", Input{Right: true}, 0x08},
		{"fire", Input{Fire: true}, 0x10},
		{"all", Input{Up: true, Down: true, Left: true, Right: true, Fire: true}, 0x1f},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.Encode(); got != tt.want {
				t.Errorf("Encode() = 0x%02x, want 0x%02x", got, tt.want)
			}
		})
	}
}

func TestInputRoundTripAllCombinations(t *testing.T) {
	for b := 0; b < 32; b++ {
		in, err := DecodeInput(byte(b))
		if err != nil {
			t.Fatalf("DecodeInput(0x%02x) failed: %v", b, err)
		}
		if got := in.Encode(); got != byte(b) {
			t.Fatalf("Encode(DecodeInput(0x%02x)) = 0x%02x", b, got)
		}
	}
}

func TestInputRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := Input{
			Up:    rapid.Bool().Draw(t, "up"),
			Down:  rapid.Bool().Draw(t, "down"),
			Left:  rapid.Bool().Draw(t, "left"),
			Right: rapid.Bool().Draw(t, "right"),
			Fire:  rapid.Bool().Draw(t, "fire"),
		}
		got, err := DecodeInput(in.Encode())
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got != in {
			t.Fatalf("round trip = %+v, want %+v", got, in)
		}
	})
}

func TestDecodeInputRejectsReservedBits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Byte().Filter(func(b byte) bool { return b&0xe0 != 0 }).Draw(t, "b")
		_, err := DecodeInput(b)
		if !errors.Is(err, ErrInvalidInputBits) {
			t.Fatalf("DecodeInput(0x%02x) error = %v, want ErrInvalidInputBits", b, err)
		}
	})
}

func TestDecodeInputRejectsEachReservedBit(t *testing.T) {
	for _, b := range []byte{0x20, 0x40, 0x80, 0x3f, 0xff} {
		if _, err := DecodeInput(b); !errors.Is(err, ErrInvalidInputBits) {
			t.Errorf("DecodeInput(0x%02x) error = %v, want ErrInvalidInputBits", b, err)
		}
	}
}
