package ai

import (
	"rollduel/pkg/ai/bt"
	"rollduel/pkg/core"
)

// 游荡方向持续帧数
const wanderDirectionFrames = 30 // 保持同一方向约 0.5 秒

var allDirections = []core.DirectionType{core.DirUp, core.DirDown, core.DirLeft, core.DirRight}

func actWander(bb bt.Blackboard) bt.Status {
	board := bb.(*Blackboard)
	if board.RNG == nil {
		return bt.StatusFailure
	}

	// 当前方向仍然可行且未超时，继续保持
	if board.WanderFrames > 0 && canMove(board.Player, board.WanderDirection) {
		board.WanderFrames--
		board.NextInput = directionToInput(board.WanderDirection)
		return bt.StatusRunning
	}

	walkable := make([]core.DirectionType, 0, len(allDirections))
	for _, dir := range allDirections {
		if canMove(board.Player, dir) {
			walkable = append(walkable, dir)
		}
	}
	if len(walkable) == 0 {
		return bt.StatusRunning
	}

	board.WanderDirection = walkable[board.RNG.Intn(len(walkable))]
	board.WanderFrames = wanderDirectionFrames
	board.NextInput = directionToInput(board.WanderDirection)
	return bt.StatusRunning
}
