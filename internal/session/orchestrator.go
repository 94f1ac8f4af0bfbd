package session

//go:generate go tool mockgen -destination=./mocks/sampler_mock.go -package=mocks . InputSampler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"rollduel/internal/config"
	"rollduel/internal/rollback"
	"rollduel/internal/transport"
	"rollduel/pkg/core"
)

var (
	ErrBuild        = errors.New("会话构建失败")
	ErrSessionEnded = errors.New("在线玩家不足，会话结束")
	ErrClosed       = errors.New("会话已关闭")
)

// InputSampler 采样本地玩家当前的输入
type InputSampler interface {
	Sample(slot int) core.Input
}

// SamplerFunc 函数形式的 InputSampler
type SamplerFunc func(slot int) core.Input

func (f SamplerFunc) Sample(slot int) core.Input {
	return f(slot)
}

// EventKind 每帧事件类型
type EventKind int

const (
	EventAdvanced     EventKind = iota // 推进一帧
	EventStalled                       // 等待远端输入，本帧不推进
	EventDisconnected                  // 远端玩家断开
)

func (k EventKind) String() string {
	switch k {
	case EventAdvanced:
		return "advanced"
	case EventStalled:
		return "stalled"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event Tick 的结果
type Event struct {
	Kind     EventKind
	Frame    int32
	Slot     int // EventDisconnected 时有效
	Rollback int // 本帧重算的帧数
}

type options struct {
	minActive  int
	engineOpts []rollback.Option
}

// Option 编排器选项
type Option func(*options)

// WithMinActivePlayers 在线玩家少于 n 时结束会话，默认 1
func WithMinActivePlayers(n int) Option {
	return func(o *options) { o.minActive = n }
}

// WithEngineOptions 透传给回滚会话的选项
func WithEngineOptions(opts ...rollback.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// Orchestrator 驱动回滚会话的每帧流程
//
// 每个新帧为每个本地槽位采样一次输入，经延迟队列后提交。
// 提交被拒绝（预测上限或断线）时保留待提交输入，下一帧原样重试，不会重新采样。
type Orchestrator struct {
	mu sync.Mutex

	cfg     config.SessionConfig
	slots   []PlayerSlot
	locals  []int
	engine  *rollback.Session
	sampler InputSampler

	delays    map[int]*DelayLine
	pending   map[int]byte
	inert     map[int]bool
	minActive int

	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Start 构建会话，transport 的所有权转移给编排器
func Start(cfg config.SessionConfig, participants []Participant, tr transport.Transport, sim rollback.Simulation, sampler InputSampler, opts ...Option) (*Orchestrator, error) {
	o := options{minActive: 1}
	for _, opt := range opts {
		opt(&o)
	}

	fail := func(err error) (*Orchestrator, error) {
		if tr != nil {
			_ = tr.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	slots, err := BuildSlots(participants, cfg.NumPlayers)
	if err != nil {
		return fail(err)
	}
	locals, err := LocalHandles(slots)
	if err != nil {
		return fail(err)
	}
	if sampler == nil {
		return fail(errors.New("缺少输入采样器"))
	}

	players := make([]rollback.Player, len(slots))
	for i, s := range slots {
		players[i] = rollback.Player{Local: s.IsLocal(), Peer: s.Handle}
	}
	engine, err := rollback.NewSession(cfg, tr, players, sim, o.engineOpts...)
	if err != nil {
		return fail(err)
	}

	orch := &Orchestrator{
		cfg:       cfg,
		slots:     slots,
		locals:    locals,
		engine:    engine,
		sampler:   sampler,
		delays:    make(map[int]*DelayLine, len(locals)),
		inert:     make(map[int]bool),
		minActive: o.minActive,
	}
	for _, slot := range locals {
		orch.delays[slot] = NewDelayLine(cfg.InputDelay)
	}

	for _, s := range slots {
		log.Printf("会话槽位: %s", s)
	}
	log.Printf("会话开始: %d Hz, 预测窗口 %d, 输入延迟 %d", cfg.TickRate, cfg.MaxPredictionWindow, cfg.InputDelay)
	return orch, nil
}

// Slots 槽位列表
func (o *Orchestrator) Slots() []PlayerSlot {
	return o.slots
}

// LocalHandles 本地槽位号
func (o *Orchestrator) LocalHandles() []int {
	return o.locals
}

// Frame 下一个待模拟的帧号
func (o *Orchestrator) Frame() int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine.Frame()
}

// ConfirmedFrame 所有远端输入都已确认的帧号
func (o *Orchestrator) ConfirmedFrame() int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine.ConfirmedFrame()
}

// Input 某帧实际送入模拟的输入
func (o *Orchestrator) Input(slot int, frame int32) (byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine.Input(slot, frame)
}

// Active 在线玩家数
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.slots) - len(o.inert)
}

// Tick 执行一帧
func (o *Orchestrator) Tick() (Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return Event{}, ErrClosed
	}
	if len(o.slots)-len(o.inert) < o.minActive {
		return Event{}, ErrSessionEnded
	}

	if o.pending == nil {
		o.pending = make(map[int]byte, len(o.locals))
		for _, slot := range o.locals {
			o.pending[slot] = o.delays[slot].Push(o.sampler.Sample(slot).Encode())
		}
	}

	out, err := o.engine.Advance(o.pending)
	if err != nil {
		return Event{}, err
	}

	ev := Event{Frame: out.Frame, Rollback: out.Rollback}
	switch out.Kind {
	case rollback.OutcomeAdvanced:
		ev.Kind = EventAdvanced
		o.pending = nil
	case rollback.OutcomePredictionLimit:
		ev.Kind = EventStalled
	case rollback.OutcomeDisconnected:
		ev.Kind = EventDisconnected
		ev.Slot = out.Slot
		o.inert[out.Slot] = true
		active := len(o.slots) - len(o.inert)
		log.Printf("槽位 %d 断开，剩余在线玩家 %d", out.Slot, active)
		if active < o.minActive {
			return ev, ErrSessionEnded
		}
	}
	return ev, nil
}

// Run 按帧率驱动 Tick，直到 ctx 取消或出错
func (o *Orchestrator) Run(ctx context.Context, handle func(Event)) error {
	ticker := time.NewTicker(o.cfg.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ev, err := o.Tick()
			ended := errors.Is(err, ErrSessionEnded) && ev.Kind == EventDisconnected
			if handle != nil && (err == nil || ended) {
				handle(ev)
			}
			if err != nil {
				return err
			}
		}
	}
}

// Close 结束会话并释放传输，只执行一次
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.closed = true
		o.closeErr = o.engine.Close()
	})
	return o.closeErr
}
