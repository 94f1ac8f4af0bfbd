package rollback

import (
	"errors"
	"testing"

	"rollduel/pkg/core"
)

// leaky 状态里有一个 Save 不保存的计数器
type leaky struct {
	*core.Game
	steps uint64
}

func (l *leaky) Step(frame int32, inputs []core.Input) {
	l.steps++
	l.Game.Step(frame, inputs)
}

func (l *leaky) Checksum() uint64 {
	return l.Game.Checksum() ^ l.steps
}

func script(frame int32) []core.Input {
	return []core.Input{
		{Right: frame%20 < 10, Fire: frame%9 == 0},
		{Up: frame%6 < 3, Left: true, Fire: frame%17 == 0},
	}
}

func TestSyncTestPassesForGame(t *testing.T) {
	if err := RunSyncTest(core.NewGame(2), 300, 7, script); err != nil {
		t.Fatalf("RunSyncTest: %v", err)
	}
}

func TestSyncTestDetectsHiddenState(t *testing.T) {
	err := RunSyncTest(&leaky{Game: core.NewGame(2)}, 50, 2, script)
	if !errors.Is(err, ErrNonDeterministic) {
		t.Fatalf("RunSyncTest = %v, want ErrNonDeterministic", err)
	}
}

func TestSyncTestRejectsCheckDistance(t *testing.T) {
	for _, d := range []int{0, ringSize} {
		if err := RunSyncTest(core.NewGame(2), 10, d, script); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("checkDistance %d = %v, want ErrInvalidConfig", d, err)
		}
	}
}
