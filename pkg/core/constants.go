package core

// 场地配置（定点数，1 像素 = 256 单位）
const (
	FixedOne    = 256
	ArenaWidth  = 640 * FixedOne
	ArenaHeight = 480 * FixedOne
	PlayerSize  = 26 * FixedOne
)

// 游戏帧率
const (
	FPS        = 60
	NumPlayers = 2
)

// 玩家配置
const (
	PlayerSpeedPerFrame = 2 * FixedOne // 每帧移动距离
	diagonalNumerator   = 181          // ≈ 256/√2，斜向归一化
	FireCooldownFrames  = 12
)

// 子弹配置
const (
	ShotSpeedPerFrame = 6 * FixedOne
	ShotLifetime      = 90
	ShotRadius        = 4 * FixedOne
)
