package core

// DirectionType 朝向
type DirectionType int

const (
	DirDown DirectionType = iota
	DirUp
	DirLeft
	DirRight
)

// Player 玩家（纯逻辑，坐标为定点数）
type Player struct {
	ID        int           // 玩家槽位
	X, Y      int32         // 左上角坐标
	Direction DirectionType // 朝向
	IsMoving  bool          // 是否在移动

	NextFireFrame int32 // 下一次可开火的帧号
	Score         int32 // 命中次数
}

// NewPlayer 创建新玩家
func NewPlayer(id int, x, y int32) *Player {
	return &Player{
		ID:        id,
		X:         x,
		Y:         y,
		Direction: DirDown,
	}
}

// Move 移动玩家，越界时贴边
func (p *Player) Move(dx, dy int32) {
	p.X = clamp(p.X+dx, 0, ArenaWidth-PlayerSize)
	p.Y = clamp(p.Y+dy, 0, ArenaHeight-PlayerSize)
	p.IsMoving = dx != 0 || dy != 0

	if dx > 0 {
		p.Direction = DirRight
	} else if dx < 0 {
		p.Direction = DirLeft
	} else if dy > 0 {
		p.Direction = DirDown
	} else if dy < 0 {
		p.Direction = DirUp
	}
}

// center 返回中心点
func (p *Player) center() (int32, int32) {
	return p.X + PlayerSize/2, p.Y + PlayerSize/2
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
