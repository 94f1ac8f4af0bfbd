package ai

import (
	"rollduel/pkg/ai/bt"
	"rollduel/pkg/core"
)

// condThreatened 是否有对手的子弹即将命中
func condThreatened(bb bt.Blackboard) bool {
	board := bb.(*Blackboard)
	if board.Config.DodgeHorizonFrames <= 0 {
		return false
	}
	for i := range board.Game.Shots {
		s := board.Game.Shots[i]
		if s.Owner == board.Player.ID {
			continue
		}
		if willHit(s, board.Player, board.Frame, board.Config.DodgeHorizonFrames) {
			board.Threat = &s
			return true
		}
	}
	return false
}

// actDodge 沿垂直于弹道的方向闪避，优先远离子弹所在一侧
func actDodge(bb bt.Blackboard) bt.Status {
	board := bb.(*Blackboard)
	s := board.Threat
	if s == nil {
		return bt.StatusFailure
	}

	px, py := center(board.Player)
	var first, second core.DirectionType
	if s.VX != 0 {
		first, second = core.DirDown, core.DirUp
		if s.Y > py {
			first, second = core.DirUp, core.DirDown
		}
	} else {
		first, second = core.DirRight, core.DirLeft
		if s.X > px {
			first, second = core.DirLeft, core.DirRight
		}
	}

	switch {
	case canMove(board.Player, first):
		board.NextInput = directionToInput(first)
	case canMove(board.Player, second):
		board.NextInput = directionToInput(second)
	default:
		return bt.StatusFailure // 贴边无处可躲
	}
	return bt.StatusRunning
}
