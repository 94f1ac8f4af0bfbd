package client

import (
	"sync"

	"rollduel/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
)

// ControlScheme 按键方案
type ControlScheme int

const (
	ControlWASD  ControlScheme = iota // WASD + 空格键
	ControlArrow                      // 方向键+回车键
)

func (c ControlScheme) String() string {
	switch c {
	case ControlWASD:
		return "WASD+空格"
	case ControlArrow:
		return "方向键+回车"
	}
	return "未知"
}

// Label 屏幕上显示的按键说明（位图字体只有 ASCII）
func (c ControlScheme) Label() string {
	if c == ControlArrow {
		return "Arrows+Enter"
	}
	return "WASD+Space"
}

// KeyboardSampler 从键盘采样本地槽位的输入
//
// 同一台机器上有两个本地槽位时，第一个用 WASD，第二个用方向键。
type KeyboardSampler struct {
	mu      sync.Mutex
	schemes map[int]ControlScheme
}

// NewKeyboardSampler 创建采样器，未分配的槽位默认使用 WASD
func NewKeyboardSampler() *KeyboardSampler {
	return &KeyboardSampler{schemes: make(map[int]ControlScheme)}
}

// Assign 按本地槽位顺序分配按键方案
func (k *KeyboardSampler) Assign(localSlots []int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, slot := range localSlots {
		if i%2 == 0 {
			k.schemes[slot] = ControlWASD
		} else {
			k.schemes[slot] = ControlArrow
		}
	}
}

// Scheme 槽位的按键方案
func (k *KeyboardSampler) Scheme(slot int) ControlScheme {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.schemes[slot]
}

// Sample 实现 session.InputSampler
func (k *KeyboardSampler) Sample(slot int) core.Input {
	up, down, left, right, fire := getInputState(k.Scheme(slot))
	return core.Input{Up: up, Down: down, Left: left, Right: right, Fire: fire}
}

func getInputState(scheme ControlScheme) (up, down, left, right, fire bool) {
	if scheme == ControlWASD {
		up = ebiten.IsKeyPressed(ebiten.KeyW)
		down = ebiten.IsKeyPressed(ebiten.KeyS)
		left = ebiten.IsKeyPressed(ebiten.KeyA)
		right = ebiten.IsKeyPressed(ebiten.KeyD)
		fire = ebiten.IsKeyPressed(ebiten.KeySpace)
	} else {
		up = ebiten.IsKeyPressed(ebiten.KeyArrowUp)
		down = ebiten.IsKeyPressed(ebiten.KeyArrowDown)
		left = ebiten.IsKeyPressed(ebiten.KeyArrowLeft)
		right = ebiten.IsKeyPressed(ebiten.KeyArrowRight)
		fire = ebiten.IsKeyPressed(ebiten.KeyEnter)
	}
	return
}

type keyTracker struct {
	prev map[ebiten.Key]bool
}

func (k *keyTracker) JustPressed(key ebiten.Key) bool {
	if k.prev == nil {
		k.prev = make(map[ebiten.Key]bool)
	}
	now := ebiten.IsKeyPressed(key)
	prev := k.prev[key]
	k.prev[key] = now
	return now && !prev
}
