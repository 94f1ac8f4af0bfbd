package ai

import (
	"rollduel/pkg/ai/bt"
	"rollduel/pkg/core"
)

func condHasOpponent(bb bt.Blackboard) bool {
	return bb.(*Blackboard).Opponent != nil
}

func condFireCoolingDown(bb bt.Blackboard) bool {
	board := bb.(*Blackboard)
	return board.Player.NextFireFrame > board.Frame
}

// aimDirection 与对手同行或同列时返回开火方向
func aimDirection(board *Blackboard) (core.DirectionType, bool) {
	if board.Opponent == nil {
		return 0, false
	}
	sx, sy := center(board.Player)
	ox, oy := center(board.Opponent)
	tol := board.Config.AlignTolerance

	if abs32(oy-sy) <= tol && ox != sx {
		if ox > sx {
			return core.DirRight, true
		}
		return core.DirLeft, true
	}
	if abs32(ox-sx) <= tol && oy != sy {
		if oy > sy {
			return core.DirDown, true
		}
		return core.DirUp, true
	}
	return 0, false
}

func condOpponentAligned(bb bt.Blackboard) bool {
	_, ok := aimDirection(bb.(*Blackboard))
	return ok
}

// actShoot 转向对手并开火；移动和开火在同一帧生效
func actShoot(bb bt.Blackboard) bt.Status {
	board := bb.(*Blackboard)
	dir, ok := aimDirection(board)
	if !ok {
		return bt.StatusFailure
	}
	board.NextInput = directionToInput(dir)
	board.NextInput.Fire = true
	return bt.StatusSuccess
}

// actApproach 沿差距较小的轴靠近，尽快进入同一行或同一列
func actApproach(bb bt.Blackboard) bt.Status {
	board := bb.(*Blackboard)
	sx, sy := center(board.Player)
	ox, oy := center(board.Opponent)
	dx, dy := ox-sx, oy-sy

	var dir core.DirectionType
	if abs32(dy) <= abs32(dx) {
		if dy > 0 {
			dir = core.DirDown
		} else {
			dir = core.DirUp
		}
		if abs32(dy) <= board.Config.AlignTolerance {
			// 已同行，冷却中拉开距离
			dir = core.DirLeft
			if dx < 0 {
				dir = core.DirRight
			}
		}
	} else {
		if dx > 0 {
			dir = core.DirRight
		} else {
			dir = core.DirLeft
		}
		if abs32(dx) <= board.Config.AlignTolerance {
			dir = core.DirUp
			if dy < 0 {
				dir = core.DirDown
			}
		}
	}

	if !canMove(board.Player, dir) {
		return bt.StatusFailure
	}
	board.NextInput = directionToInput(dir)
	return bt.StatusRunning
}
