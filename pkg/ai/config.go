package ai

import "rollduel/pkg/core"

// AIConfig 定义 AI 的行为参数，用于控制 AI 的水平
type AIConfig struct {
	// ThinkIntervalFrames 重新决策的间隔（帧），期间沿用上次的输入
	ThinkIntervalFrames int

	// MistakeRate 随机失误率 (0.0-1.0)
	MistakeRate float64

	// DodgeHorizonFrames 预判来袭子弹的帧数，0 表示不躲避
	DodgeHorizonFrames int32

	// AlignTolerance 判定与对手同行或同列的容差（定点数）
	AlignTolerance int32
}

// 预设配置：普通难度
var AIConfigNormal = AIConfig{
	ThinkIntervalFrames: 12,
	MistakeRate:         0.05,
	DodgeHorizonFrames:  15,
	AlignTolerance:      core.PlayerSize / 2,
}

// 预设配置：困难难度
var AIConfigHard = AIConfig{
	ThinkIntervalFrames: 4,
	MistakeRate:         0.0,
	DodgeHorizonFrames:  30,
	AlignTolerance:      core.PlayerSize / 4,
}
