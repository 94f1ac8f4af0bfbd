package client

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"time"

	"rollduel/internal/config"
	"rollduel/internal/negotiate"
	"rollduel/internal/session"
	"rollduel/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"
)

const (
	ScreenWidth  = core.ArenaWidth / core.FixedOne
	ScreenHeight = core.ArenaHeight / core.FixedOne
)

var hudFont = text.NewGoXFace(basicfont.Face7x13)

type phase int

const (
	phaseNegotiating phase = iota
	phasePlaying
	phaseEnded
)

// Game Ebiten 游戏循环：先协商对端，再每帧驱动一次会话
type Game struct {
	cfg        config.SessionConfig
	negotiator negotiate.Negotiator
	deadline   time.Time

	sim     *core.Game
	sampler *KeyboardSampler
	orch    *session.Orchestrator
	phase   phase
	input   keyTracker

	inert     map[int]bool
	stalls    int
	rollbacks int
	maxDepth  int
	lastErr   error
}

// NewGame 创建游戏，discoveryTimeout 为 0 时一直等待对端
func NewGame(cfg config.SessionConfig, n negotiate.Negotiator, discoveryTimeout time.Duration) *Game {
	g := &Game{
		cfg:        cfg,
		negotiator: n,
		sim:        core.NewGame(cfg.NumPlayers),
		sampler:    NewKeyboardSampler(),
		inert:      make(map[int]bool),
	}
	if discoveryTimeout > 0 {
		g.deadline = time.Now().Add(discoveryTimeout)
	}
	return g
}

// Update 更新游戏状态
func (g *Game) Update() error {
	switch g.phase {
	case phaseNegotiating:
		g.updateNegotiating()
	case phasePlaying:
		g.updatePlaying()
	case phaseEnded:
		if g.input.JustPressed(ebiten.KeyEscape) {
			return ebiten.Termination
		}
	}
	return nil
}

func (g *Game) updateNegotiating() {
	if !g.deadline.IsZero() && time.Now().After(g.deadline) {
		g.end(negotiate.ErrDiscoveryTimeout)
		return
	}

	state, err := g.negotiator.Poll()
	if err != nil {
		g.end(err)
		return
	}
	if state != negotiate.StateReady {
		return
	}

	res, err := g.negotiator.Result()
	if err != nil {
		g.end(err)
		return
	}
	orch, err := session.Start(g.cfg, res.Participants, res.Transport, g.sim, g.sampler)
	if err != nil {
		g.end(err)
		return
	}
	g.orch = orch
	g.sampler.Assign(orch.LocalHandles())
	g.phase = phasePlaying
}

func (g *Game) updatePlaying() {
	ev, err := g.orch.Tick()
	g.observe(ev)
	if err != nil {
		g.end(err)
	}
}

func (g *Game) observe(ev session.Event) {
	switch ev.Kind {
	case session.EventAdvanced:
		if ev.Rollback > 0 {
			g.rollbacks++
			g.maxDepth = max(g.maxDepth, ev.Rollback)
		}
	case session.EventStalled:
		g.stalls++
	case session.EventDisconnected:
		g.inert[ev.Slot] = true
	}
}

func (g *Game) end(err error) {
	if errors.Is(err, session.ErrSessionEnded) {
		log.Printf("会话结束: %v", err)
	} else {
		log.Printf("会话异常结束: %v", err)
	}
	g.lastErr = err
	g.phase = phaseEnded
	_ = g.Close()
}

// Err 结束原因
func (g *Game) Err() error {
	return g.lastErr
}

// Close 释放协商器和会话
func (g *Game) Close() error {
	var errs []error
	if g.negotiator != nil {
		errs = append(errs, g.negotiator.Close())
	}
	if g.orch != nil {
		errs = append(errs, g.orch.Close())
	}
	return errors.Join(errs...)
}

// Draw 绘制游戏
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{34, 40, 49, 255})

	switch g.phase {
	case phaseNegotiating:
		drawText(screen, 20, 20, "Waiting for peers...", color.White)
		drawText(screen, 20, 40, fmt.Sprintf("players %d, tick rate %d Hz", g.cfg.NumPlayers, g.cfg.TickRate), color.White)
		return
	case phaseEnded:
		if g.orch == nil {
			drawText(screen, 20, 20, fmt.Sprintf("FAILED: %v", g.lastErr), color.RGBA{255, 120, 120, 255})
			drawText(screen, 20, 40, "Press ESC to quit", color.White)
			return
		}
	}

	for _, s := range g.sim.Shots {
		drawShot(screen, s)
	}
	for _, p := range g.sim.Players {
		drawPlayer(screen, p, g.inert[p.ID])
	}
	g.drawHUD(screen)
}

func (g *Game) drawHUD(screen *ebiten.Image) {
	drawText(screen, 8, 8, fmt.Sprintf("frame %d  confirmed %d", g.orch.Frame(), g.orch.ConfirmedFrame()), color.White)
	drawText(screen, 8, 24, fmt.Sprintf("rollbacks %d (deepest %d)  stalls %d", g.rollbacks, g.maxDepth, g.stalls), color.White)

	y := 40
	for _, slot := range g.orch.Slots() {
		info := GetCharacterInfo(slot.Index)
		label := fmt.Sprintf("P%d %s  score %d", slot.Index+1, slot.Locality, g.sim.Players[slot.Index].Score)
		if slot.IsLocal() {
			label += "  [" + g.sampler.Scheme(slot.Index).Label() + "]"
		}
		if g.inert[slot.Index] {
			label += "  DISCONNECTED"
		}
		drawText(screen, 8, y, label, info.BodyColor)
		y += 16
	}

	if g.phase == phaseEnded {
		drawText(screen, 8, ScreenHeight-40, fmt.Sprintf("SESSION OVER: %v", g.lastErr), color.RGBA{255, 120, 120, 255})
		drawText(screen, 8, ScreenHeight-24, "Press ESC to quit", color.White)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

func drawText(screen *ebiten.Image, x, y int, msg string, clr color.Color) {
	options := &text.DrawOptions{}
	options.GeoM.Translate(float64(x), float64(y))
	options.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, msg, hudFont, options)
}
