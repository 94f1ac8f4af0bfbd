package rollback

import (
	"errors"
	"fmt"
	"log"

	"rollduel/pkg/core"
)

var ErrNonDeterministic = errors.New("模拟不确定")

// InputScript 为同步测试提供每帧的输入
type InputScript func(frame int32) []core.Input

// RunSyncTest 单机验证模拟的确定性
//
// 每帧都回到 checkDistance 帧之前的快照重算，并与第一次模拟得到的校验和比较。
// 不需要网络，用于在联机之前发现 Save/Load/Step 中的不确定行为。
func RunSyncTest(sim Simulation, frames, checkDistance int, script InputScript) error {
	if checkDistance < 1 || checkDistance >= ringSize {
		return fmt.Errorf("%w: 检查距离 %d", ErrInvalidConfig, checkDistance)
	}

	var (
		states    [ringSize]any
		checksums [ringSize]uint64
	)

	for frame := int32(0); frame < int32(frames); frame++ {
		states[frame%ringSize] = sim.Save()
		sim.Step(frame, script(frame))
		checksums[(frame+1)%ringSize] = sim.Checksum()

		from := frame + 1 - int32(checkDistance)
		if from < 0 {
			continue
		}

		sim.Load(states[from%ringSize])
		for f := from; f <= frame; f++ {
			states[f%ringSize] = sim.Save()
			sim.Step(f, script(f))
			if got, want := sim.Checksum(), checksums[(f+1)%ringSize]; got != want {
				return fmt.Errorf("%w: 帧 %d 重算校验和 %016x，原值 %016x", ErrNonDeterministic, f, got, want)
			}
		}
	}

	log.Printf("同步测试通过: %d 帧, 检查距离 %d", frames, checkDistance)
	return nil
}
