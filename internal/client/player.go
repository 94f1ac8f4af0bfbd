package client

import (
	"image/color"

	"rollduel/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// toScreen 定点数转屏幕像素
func toScreen(v int32) float32 {
	return float32(v) / core.FixedOne
}

// drawPlayer 绘制玩家
func drawPlayer(screen *ebiten.Image, p *core.Player, inert bool) {
	info := GetCharacterInfo(p.ID)
	size := toScreen(core.PlayerSize)
	x, y := toScreen(p.X), toScreen(p.Y)

	body := info.BodyColor
	if inert {
		// 断线玩家半透明
		body.A = 90
	}

	// 绘制身体
	vector.DrawFilledRect(screen, x, y, size, size, body, false)

	// 绘制轮廓（2像素宽）
	vector.StrokeRect(screen, x, y, size, size, 2, info.OutlineColor, false)

	// 手部，移动时外摆
	handSize := size * 0.2
	handOffset := float32(0)
	if p.IsMoving {
		handOffset = 2
	}
	vector.DrawFilledCircle(screen, x-handOffset-2, y+size*0.6, handSize, info.HandColor, false)
	vector.DrawFilledCircle(screen, x+size+handOffset+2, y+size*0.6, handSize, info.HandColor, false)

	// 绘制眼睛（根据方向）
	eyeSize := size * 0.12
	eyeY := y + size*0.3
	eyeSpacing := size * 0.2
	var eyeLeftX, eyeRightX float32
	switch p.Direction {
	case core.DirUp:
		eyeLeftX, eyeRightX = x+size*0.3, x+size*0.7
		eyeY -= 2
	case core.DirDown:
		eyeLeftX, eyeRightX = x+size*0.3, x+size*0.7
		eyeY += 2
	case core.DirLeft:
		eyeLeftX, eyeRightX = x+size*0.3-eyeSpacing/2, x+size*0.5-eyeSpacing/2
	case core.DirRight:
		eyeLeftX, eyeRightX = x+size*0.5+eyeSpacing/2, x+size*0.7+eyeSpacing/2
	}

	vector.DrawFilledCircle(screen, eyeLeftX, eyeY, eyeSize, color.RGBA{255, 255, 255, 255}, false)
	vector.DrawFilledCircle(screen, eyeRightX, eyeY, eyeSize, color.RGBA{255, 255, 255, 255}, false)

	pupilSize := eyeSize * 0.5
	vector.DrawFilledCircle(screen, eyeLeftX, eyeY, pupilSize, color.RGBA{0, 0, 0, 255}, false)
	vector.DrawFilledCircle(screen, eyeRightX, eyeY, pupilSize, color.RGBA{0, 0, 0, 255}, false)
}

// drawShot 绘制子弹
func drawShot(screen *ebiten.Image, s core.Shot) {
	info := GetCharacterInfo(s.Owner)
	vector.DrawFilledCircle(screen, toScreen(s.X), toScreen(s.Y), toScreen(core.ShotRadius), info.ShotColor, false)
}
