package ai

import "rollduel/pkg/core"

func center(p *core.Player) (int32, int32) {
	return p.X + core.PlayerSize/2, p.Y + core.PlayerSize/2
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// nearestOpponent 曼哈顿距离最近的其他玩家
func nearestOpponent(game *core.Game, self *core.Player) *core.Player {
	var best *core.Player
	bestDist := int32(-1)
	sx, sy := center(self)
	for _, p := range game.Players {
		if p.ID == self.ID {
			continue
		}
		px, py := center(p)
		d := abs32(px-sx) + abs32(py-sy)
		if bestDist < 0 || d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// directionToInput 朝某方向移动的输入
func directionToInput(dir core.DirectionType) core.Input {
	switch dir {
	case core.DirUp:
		return core.Input{Up: true}
	case core.DirDown:
		return core.Input{Down: true}
	case core.DirLeft:
		return core.Input{Left: true}
	case core.DirRight:
		return core.Input{Right: true}
	}
	return core.Input{}
}

// canMove 朝该方向移动一步后仍在场地内
func canMove(p *core.Player, dir core.DirectionType) bool {
	switch dir {
	case core.DirUp:
		return p.Y-core.PlayerSpeedPerFrame >= 0
	case core.DirDown:
		return p.Y+core.PlayerSpeedPerFrame <= core.ArenaHeight-core.PlayerSize
	case core.DirLeft:
		return p.X-core.PlayerSpeedPerFrame >= 0
	case core.DirRight:
		return p.X+core.PlayerSpeedPerFrame <= core.ArenaWidth-core.PlayerSize
	}
	return false
}

// willHit 子弹在 horizon 帧内是否会进入玩家碰撞盒
func willHit(s core.Shot, p *core.Player, frame, horizon int32) bool {
	x, y := s.X, s.Y
	for t := int32(1); t <= horizon; t++ {
		if frame+t >= s.ExpireAt {
			return false
		}
		x += s.VX
		y += s.VY
		if x+core.ShotRadius >= p.X && x-core.ShotRadius <= p.X+core.PlayerSize &&
			y+core.ShotRadius >= p.Y && y-core.ShotRadius <= p.Y+core.PlayerSize {
			return true
		}
	}
	return false
}
