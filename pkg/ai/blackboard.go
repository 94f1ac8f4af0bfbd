package ai

import (
	"math/rand"

	"rollduel/pkg/ai/bt"
	"rollduel/pkg/core"
)

type Blackboard struct {
	Game     *core.Game
	Player   *core.Player
	Opponent *core.Player
	RNG      *rand.Rand
	Config   *AIConfig

	Frame int32

	Threat    *core.Shot // 即将命中自己的子弹
	NextInput core.Input

	// 游荡方向
	WanderDirection core.DirectionType
	WanderFrames    int
}

func (bb *Blackboard) ResetFrame(game *core.Game, player *core.Player) {
	bb.Game = game
	bb.Player = player
	bb.Opponent = nearestOpponent(game, player)
	bb.Frame = game.Frame
	bb.Threat = nil
	bb.NextInput = core.Input{}
	// 游荡状态跨帧保留
}

func (bb *Blackboard) AsBT() bt.Blackboard {
	return bb
}
