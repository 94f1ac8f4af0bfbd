package ai

import (
	"math/rand"

	"rollduel/pkg/ai/bt"
	"rollduel/pkg/core"
)

type AIController struct {
	PlayerID int
	rnd      *rand.Rand
	config   *AIConfig

	thinkIntervalFrames int
	thinkCounter        int
	cachedInput         core.Input

	blackboard Blackboard
	tree       bt.Node
}

// NewAIController 创建 AI 控制器，使用默认配置（普通难度）
func NewAIController(playerID int, seed int64) *AIController {
	return NewAIControllerWithConfig(playerID, &AIConfigNormal, seed)
}

// NewAIControllerWithConfig 创建 AI 控制器，相同 seed 产生相同的决策序列
func NewAIControllerWithConfig(playerID int, config *AIConfig, seed int64) *AIController {
	rnd := rand.New(rand.NewSource(seed + int64(playerID)))

	if config == nil {
		config = &AIConfigNormal
	}

	controller := &AIController{
		PlayerID:            playerID,
		rnd:                 rnd,
		config:              config,
		thinkIntervalFrames: config.ThinkIntervalFrames,
	}

	controller.blackboard = Blackboard{
		RNG:    rnd,
		Config: config,
	}

	controller.tree = &bt.Selector{Children: []bt.Node{
		&bt.Sequence{Children: []bt.Node{
			&bt.Condition{Check: condThreatened},
			&bt.Action{Do: actDodge},
		}},
		&bt.Sequence{Children: []bt.Node{
			&bt.Inverter{Child: &bt.Condition{Check: condFireCoolingDown}},
			&bt.Condition{Check: condOpponentAligned},
			&bt.Action{Do: actShoot},
		}},
		&bt.Sequence{Children: []bt.Node{
			&bt.Condition{Check: condHasOpponent},
			&bt.Action{Do: actApproach},
		}},
		&bt.Action{Do: actWander},
	}}

	return controller
}

// Decide 根据当前局面给出本帧输入
//
// 有子弹来袭时立即重新决策，否则每 ThinkIntervalFrames 帧决策一次。
func (c *AIController) Decide(game *core.Game) core.Input {
	player := getPlayerByID(game, c.PlayerID)
	if player == nil {
		return core.Input{}
	}

	c.blackboard.ResetFrame(game, player)
	force := condThreatened(c.blackboard.AsBT())

	c.thinkCounter++
	if !force && c.thinkCounter < c.thinkIntervalFrames {
		// 开火只在决策帧生效，避免沿用时连发
		in := c.cachedInput
		in.Fire = false
		return in
	}
	c.thinkCounter = 0
	c.blackboard.NextInput = core.Input{}

	_ = c.tree.Tick(c.blackboard.AsBT())

	// 应用随机失误
	if c.config.MistakeRate > 0 && c.rnd.Float64() < c.config.MistakeRate {
		switch c.rnd.Intn(3) {
		case 0:
			// 什么都不做
			c.blackboard.NextInput = core.Input{}
		case 1:
			// 随机方向
			c.blackboard.NextInput = directionToInput(allDirections[c.rnd.Intn(len(allDirections))])
		case 2:
			// 保持原输入（不失误）
		}
	}

	c.cachedInput = c.blackboard.NextInput
	return c.cachedInput
}

// GetConfig 获取当前配置
func (c *AIController) GetConfig() *AIConfig {
	return c.config
}

// SetConfig 设置新配置
func (c *AIController) SetConfig(config *AIConfig) {
	if config == nil {
		return
	}
	c.config = config
	c.blackboard.Config = config
	c.thinkIntervalFrames = config.ThinkIntervalFrames
}

func getPlayerByID(game *core.Game, playerID int) *core.Player {
	for _, player := range game.Players {
		if player.ID == playerID {
			return player
		}
	}
	return nil
}

// Bots 由 AI 控制的本地槽位，可直接作为会话的输入采样器
type Bots struct {
	game        *core.Game
	config      *AIConfig
	seed        int64
	controllers map[int]*AIController
}

// NewBots 读取 game 的当前（可能是预测的）状态做决策
func NewBots(game *core.Game, config *AIConfig, seed int64) *Bots {
	return &Bots{
		game:        game,
		config:      config,
		seed:        seed,
		controllers: make(map[int]*AIController),
	}
}

// Sample 为槽位生成一帧输入
func (b *Bots) Sample(slot int) core.Input {
	c, ok := b.controllers[slot]
	if !ok {
		c = NewAIControllerWithConfig(slot, b.config, b.seed)
		b.controllers[slot] = c
	}
	return c.Decide(b.game)
}
