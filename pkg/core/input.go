package core

import (
	"errors"
	"fmt"
)

// 输入位布局（每帧每名玩家一个字节）
// bit0=Up, bit1=Down, bit2=Left, bit3=Right, bit4=Fire，bit5-7 保留且必须为 0
const (
	InputUp    byte = 1 << 0
	InputDown  byte = 1 << 1
	InputLeft  byte = 1 << 2
	InputRight byte = 1 << 3
	InputFire  byte = 1 << 4

	inputMask     = InputUp | InputDown | InputLeft | InputRight | InputFire
	inputReserved = ^inputMask
)

// ErrInvalidInputBits 保留位被置位，通常意味着两端协议版本不一致
var ErrInvalidInputBits = errors.New("输入字节包含未定义的位")

// Input 表示一帧内玩家的输入
type Input struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
	Fire  bool
}

// Encode 将输入压缩为一个字节
func (in Input) Encode() byte {
	var b byte
	if in.Up {
		b |= InputUp
	}
	if in.Down {
		b |= InputDown
	}
	if in.Left {
		b |= InputLeft
	}
	if in.Right {
		b |= InputRight
	}
	if in.Fire {
		b |= InputFire
	}
	return b
}

// IsEmpty 没有任何按键
func (in Input) IsEmpty() bool {
	return in == Input{}
}

func (in Input) String() string {
	return fmt.Sprintf("%05b", in.Encode())
}

// DecodeInput 解析输入字节，保留位非零时返回 ErrInvalidInputBits
func DecodeInput(b byte) (Input, error) {
	if b&inputReserved != 0 {
		return Input{}, fmt.Errorf("%w: 0x%02x", ErrInvalidInputBits, b)
	}
	return Input{
		Up:    b&InputUp != 0,
		Down:  b&InputDown != 0,
		Left:  b&InputLeft != 0,
		Right: b&InputRight != 0,
		Fire:  b&InputFire != 0,
	}, nil
}

// ApplyInput 将输入应用到指定玩家
func ApplyInput(game *Game, player *Player, input Input) {
	if game == nil || player == nil {
		return
	}

	var moveX, moveY int32
	if input.Up {
		moveY -= PlayerSpeedPerFrame
	}
	if input.Down {
		moveY += PlayerSpeedPerFrame
	}
	if input.Left {
		moveX -= PlayerSpeedPerFrame
	}
	if input.Right {
		moveX += PlayerSpeedPerFrame
	}

	// 斜向移动时进行归一化，避免速度变快
	if moveX != 0 && moveY != 0 {
		moveX = moveX * diagonalNumerator / FixedOne
		moveY = moveY * diagonalNumerator / FixedOne
	}
	player.Move(moveX, moveY)

	if input.Fire && game.Frame >= player.NextFireFrame {
		player.NextFireFrame = game.Frame + FireCooldownFrames
		game.Shots = append(game.Shots, newShot(player, game.Frame))
	}
}

func newShot(p *Player, frame int32) Shot {
	x, y := p.center()
	s := Shot{Owner: p.ID, X: x, Y: y, ExpireAt: frame + ShotLifetime}
	switch p.Direction {
	case DirUp:
		s.VY = -ShotSpeedPerFrame
	case DirDown:
		s.VY = ShotSpeedPerFrame
	case DirLeft:
		s.VX = -ShotSpeedPerFrame
	case DirRight:
		s.VX = ShotSpeedPerFrame
	}
	return s
}
