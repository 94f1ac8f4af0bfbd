package core

import (
	"encoding/binary"
	"hash/fnv"
)

// Shot 子弹
type Shot struct {
	Owner    int
	X, Y     int32
	VX, VY   int32
	ExpireAt int32
}

// Game 游戏状态（纯逻辑，不包含渲染）
// 所有运算使用整数，保证不同机器上回滚重算结果一致
type Game struct {
	Frame   int32
	Players []*Player
	Shots   []Shot
}

// NewGame 创建新游戏
func NewGame(numPlayers int) *Game {
	g := &Game{
		Players: make([]*Player, 0, numPlayers),
		Shots:   make([]Shot, 0),
	}
	for i := 0; i < numPlayers; i++ {
		x, y := spawnPosition(i)
		g.Players = append(g.Players, NewPlayer(i, x, y))
	}
	return g
}

// Step 推进一帧，inputs 按槽位排列
func (g *Game) Step(frame int32, inputs []Input) {
	g.Frame = frame
	for i, player := range g.Players {
		if i >= len(inputs) {
			break
		}
		ApplyInput(g, player, inputs[i])
	}
	g.updateShots()
	g.Frame = frame + 1
}

// Save 深拷贝当前状态
func (g *Game) Save() any {
	snapshot := &Game{
		Frame:   g.Frame,
		Players: make([]*Player, len(g.Players)),
		Shots:   append([]Shot(nil), g.Shots...),
	}
	for i, p := range g.Players {
		cp := *p
		snapshot.Players[i] = &cp
	}
	return snapshot
}

// Load 恢复到 Save 返回的状态
func (g *Game) Load(state any) {
	snapshot := state.(*Game).Save().(*Game)
	g.Frame = snapshot.Frame
	g.Players = snapshot.Players
	g.Shots = snapshot.Shots
}

// Checksum 状态校验和，用于一致性检查
func (g *Game) Checksum() uint64 {
	h := fnv.New64a()
	var buf [4]byte
	put := func(v int32) {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		h.Write(buf[:])
	}
	put(g.Frame)
	for _, p := range g.Players {
		put(int32(p.ID))
		put(p.X)
		put(p.Y)
		put(int32(p.Direction))
		put(p.NextFireFrame)
		put(p.Score)
	}
	for _, s := range g.Shots {
		put(int32(s.Owner))
		put(s.X)
		put(s.Y)
		put(s.VX)
		put(s.VY)
		put(s.ExpireAt)
	}
	return h.Sum64()
}

// updateShots 移动子弹并结算命中
func (g *Game) updateShots() {
	alive := g.Shots[:0]
	for _, s := range g.Shots {
		s.X += s.VX
		s.Y += s.VY
		if g.Frame >= s.ExpireAt || s.X < 0 || s.Y < 0 || s.X > ArenaWidth || s.Y > ArenaHeight {
			continue
		}
		if g.hitPlayer(s) {
			continue
		}
		alive = append(alive, s)
	}
	g.Shots = alive
}

func (g *Game) hitPlayer(s Shot) bool {
	for _, p := range g.Players {
		if p.ID == s.Owner {
			continue
		}
		if s.X+ShotRadius < p.X || s.X-ShotRadius > p.X+PlayerSize ||
			s.Y+ShotRadius < p.Y || s.Y-ShotRadius > p.Y+PlayerSize {
			continue
		}
		g.Players[s.Owner].Score++
		return true
	}
	return false
}

// spawnPosition 根据槽位获取出生点
func spawnPosition(slot int) (int32, int32) {
	spawns := []struct{ x, y int32 }{
		{2 * 64 * FixedOne, 224 * FixedOne}, // 槽位 0: 左侧
		{8 * 64 * FixedOne, 224 * FixedOne}, // 槽位 1: 右侧
		{5 * 64 * FixedOne, 64 * FixedOne},
		{5 * 64 * FixedOne, 384 * FixedOne},
	}
	s := spawns[slot%len(spawns)]
	return s.x, s.y
}
