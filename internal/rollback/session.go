package rollback

import (
	"errors"
	"fmt"
	"log"
	"time"

	"rollduel/internal/config"
	"rollduel/internal/transport"
	"rollduel/pkg/core"
	"rollduel/pkg/protocol"
)

// ringSize 输入历史和状态快照的环形缓冲区长度，必须大于最大预测窗口
const ringSize = 128

var (
	ErrInvalidConfig = errors.New("会话配置无效")
	ErrTooFewPlayers = errors.New("玩家数不足")
	ErrDesync        = errors.New("对端输入不同步")
	ErrMissingInput  = errors.New("缺少本地玩家输入")
	ErrClosed        = errors.New("会话已关闭")
)

// Simulation 确定性模拟，回滚时由会话保存、恢复并重算
type Simulation interface {
	Save() any
	Load(state any)
	Step(frame int32, inputs []core.Input)
	Checksum() uint64
}

// Player 会话中的一个槽位，下标即槽位号
type Player struct {
	Local bool
	Peer  transport.PeerHandle // 远端玩家所在的传输句柄
}

// OutcomeKind Advance 的结果类型
type OutcomeKind int

const (
	OutcomeAdvanced        OutcomeKind = iota // 推进了一帧
	OutcomePredictionLimit                    // 超出预测窗口，本帧不推进
	OutcomeDisconnected                       // 远端玩家断开，本帧不推进
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomePredictionLimit:
		return "prediction-limit"
	case OutcomeDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Outcome 一次 Advance 的结果
type Outcome struct {
	Kind     OutcomeKind
	Frame    int32 // 推进或尝试推进的帧号
	Slot     int   // OutcomeDisconnected 时为断开的槽位
	Rollback int   // 本次重算的帧数
}

type playerState struct {
	local bool
	peer  transport.PeerHandle

	inputs    [ringSize]byte // 已确认输入
	used      [ringSize]byte // 实际送入模拟的输入（远端可能是预测值）
	confirmed int32          // 连续确认的最大帧号
	last      byte           // 最近确认的输入，也是预测值

	inert     bool
	inertFrom int32
}

type remoteState struct {
	ackedByPeer int32 // 对端已连续收到的本地输入帧号
	lastRecv    time.Time
	seen        bool
}

type savedState struct {
	frame int32
	state any
}

// Option 会话选项
type Option func(*Session)

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session P2P 回滚会话
type Session struct {
	cfg     config.SessionConfig
	tr      transport.Transport
	sim     Simulation
	players []*playerState
	remotes map[transport.PeerHandle]*remoteState
	locals  []int

	frame       int32 // 下一个待模拟的帧
	states      [ringSize]savedState
	disconnects []int
	now         func() time.Time
	closed      bool
}

// NewSession 构建会话，players 按槽位排列
func NewSession(cfg config.SessionConfig, tr transport.Transport, players []Player, sim Simulation, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.NumPlayers < 2 || len(players) < 2 {
		return nil, fmt.Errorf("%w: 需要至少 2 名玩家，实际 %d", ErrTooFewPlayers, len(players))
	}
	if len(players) != cfg.NumPlayers {
		return nil, fmt.Errorf("%w: 槽位数 %d 与玩家数 %d 不一致", ErrInvalidConfig, len(players), cfg.NumPlayers)
	}
	if cfg.MaxPredictionWindow >= ringSize-1 {
		return nil, fmt.Errorf("%w: 预测窗口 %d 超出缓冲区", ErrInvalidConfig, cfg.MaxPredictionWindow)
	}
	if sim == nil {
		return nil, fmt.Errorf("%w: 缺少模拟", ErrInvalidConfig)
	}

	s := &Session{
		cfg:     cfg,
		tr:      tr,
		sim:     sim,
		remotes: make(map[transport.PeerHandle]*remoteState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for slot, p := range players {
		s.players = append(s.players, &playerState{
			local:     p.Local,
			peer:      p.Peer,
			confirmed: protocol.NoFrame,
		})
		if p.Local {
			s.locals = append(s.locals, slot)
		} else if _, ok := s.remotes[p.Peer]; !ok {
			s.remotes[p.Peer] = &remoteState{ackedByPeer: protocol.NoFrame, lastRecv: s.now()}
		}
	}
	if len(s.locals) == 0 {
		return nil, fmt.Errorf("%w: 没有本地玩家", ErrInvalidConfig)
	}
	if len(s.remotes) > 0 && tr == nil {
		return nil, fmt.Errorf("%w: 缺少传输", ErrInvalidConfig)
	}

	log.Printf("回滚会话已创建: %d 名玩家, 本地槽位 %v, 预测窗口 %d", len(players), s.locals, cfg.MaxPredictionWindow)
	return s, nil
}

// Frame 下一个待模拟的帧号
func (s *Session) Frame() int32 {
	return s.frame
}

// ConfirmedFrame 所有在线远端玩家都已确认的最大帧号
func (s *Session) ConfirmedFrame() int32 {
	confirmed := s.frame - 1
	for _, p := range s.players {
		if p.local || p.inert {
			continue
		}
		confirmed = min(confirmed, p.confirmed)
	}
	return confirmed
}

// Input 返回槽位在某帧实际送入模拟的输入
func (s *Session) Input(slot int, frame int32) (byte, bool) {
	if slot < 0 || slot >= len(s.players) || frame < 0 || frame >= s.frame || frame <= s.frame-ringSize {
		return 0, false
	}
	return s.players[slot].used[frame%ringSize], true
}

// Advance 提交本帧的本地输入（按槽位），推进模拟
//
// 先非阻塞地收取网络数据并在预测错误时回滚重算，然后检查预测窗口。
// 只有 OutcomeAdvanced 表示输入被消费，其余结果下调用方应在下一帧重新提交同样的输入。
func (s *Session) Advance(local map[int]byte) (Outcome, error) {
	if s.closed {
		return Outcome{}, ErrClosed
	}

	firstIncorrect, err := s.poll()
	if err != nil {
		return Outcome{}, err
	}

	depth, err := s.rollback(firstIncorrect)
	if err != nil {
		return Outcome{}, err
	}

	if len(s.disconnects) > 0 {
		slot := s.disconnects[0]
		s.disconnects = s.disconnects[1:]
		s.sendInputs()
		return Outcome{Kind: OutcomeDisconnected, Frame: s.frame, Slot: slot, Rollback: depth}, nil
	}

	if s.predictionExhausted() {
		s.sendInputs()
		return Outcome{Kind: OutcomePredictionLimit, Frame: s.frame, Rollback: depth}, nil
	}

	for _, slot := range s.locals {
		b, ok := local[slot]
		if !ok {
			return Outcome{}, fmt.Errorf("%w: 槽位 %d", ErrMissingInput, slot)
		}
		if _, err := core.DecodeInput(b); err != nil {
			return Outcome{}, fmt.Errorf("槽位 %d: %w", slot, err)
		}
	}
	for _, slot := range s.locals {
		p := s.players[slot]
		p.inputs[s.frame%ringSize] = local[slot]
		p.confirmed = s.frame
		p.last = local[slot]
	}

	frame := s.frame
	s.step(frame)
	s.frame++
	s.sendInputs()

	return Outcome{Kind: OutcomeAdvanced, Frame: frame, Rollback: depth}, nil
}

// predictionExhausted 推进当前帧是否会超出任一远端玩家的预测窗口
func (s *Session) predictionExhausted() bool {
	for _, p := range s.players {
		if p.local || p.inert {
			continue
		}
		if s.frame-(p.confirmed+1) >= int32(s.cfg.MaxPredictionWindow) {
			return true
		}
	}
	return false
}

// rollback 从第一个预测错误的帧开始重算到当前帧
func (s *Session) rollback(from int32) (int, error) {
	if from >= s.frame {
		return 0, nil
	}
	saved := s.states[from%ringSize]
	if saved.frame != from || saved.state == nil {
		return 0, fmt.Errorf("%w: 帧 %d 的快照已被覆盖", ErrDesync, from)
	}

	s.sim.Load(saved.state)
	for f := from; f < s.frame; f++ {
		s.step(f)
	}
	return int(s.frame - from), nil
}

// step 保存快照后模拟一帧
func (s *Session) step(frame int32) {
	s.states[frame%ringSize] = savedState{frame: frame, state: s.sim.Save()}

	inputs := make([]core.Input, len(s.players))
	for slot, p := range s.players {
		b := s.inputFor(p, frame)
		p.used[frame%ringSize] = b
		// 入队前已校验，这里不会失败
		inputs[slot], _ = core.DecodeInput(b)
	}
	s.sim.Step(frame, inputs)
}

// inputFor 已确认用确认值，离线玩家用空输入，否则重复最后一次确认的输入
func (s *Session) inputFor(p *playerState, frame int32) byte {
	switch {
	case p.inert && frame >= p.inertFrom:
		return 0
	case frame <= p.confirmed:
		return p.inputs[frame%ringSize]
	default:
		return p.last
	}
}

// Close 通知对端并释放传输，只执行一次
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tr == nil {
		return nil
	}

	bye := protocol.MarshalPacket(protocol.NewByePacket(int32(s.locals[0])))
	for handle := range s.remotes {
		_ = s.tr.Send(handle, bye)
	}
	log.Printf("回滚会话关闭于帧 %d", s.frame)
	return s.tr.Close()
}
