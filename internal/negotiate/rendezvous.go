package negotiate

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"slices"
	"strconv"
	"time"

	"rollduel/internal/session"
	"rollduel/internal/transport"
	"rollduel/pkg/protocol"

	"golang.org/x/time/rate"
)

// ReconnectInterval 信令服务不可达时的最小重连间隔
const ReconnectInterval = time.Second

// DialFunc 建立信令连接
type DialFunc func(ctx context.Context, url string) (*transport.SignalConn, error)

// Rendezvous 经信令服务房间发现对端
//
// 槽位等于服务端下发的名单顺序，所有对端看到的顺序一致。
// 名单人数达到 numPlayers 时进入就绪。连接断开时按限速重连，
// 携带票据以保留原来的名单位置。
type Rendezvous struct {
	ctx        context.Context
	roomURL    string
	numPlayers int
	dial       DialFunc
	limiter    *rate.Limiter

	sc      *transport.SignalConn
	self    string
	ticket  string
	roster  []string
	backlog []*protocol.Signal

	state    State
	consumed bool
	lastErr  error
}

// RendezvousOption 可选参数
type RendezvousOption func(*Rendezvous)

// WithDialer 替换信令连接的建立方式
func WithDialer(dial DialFunc) RendezvousOption {
	return func(r *Rendezvous) { r.dial = dial }
}

// WithReconnectInterval 修改重连间隔
func WithReconnectInterval(d time.Duration) RendezvousOption {
	return func(r *Rendezvous) { r.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewRendezvous 创建协商器，第一次 Poll 时连接
func NewRendezvous(ctx context.Context, roomURL string, numPlayers int, opts ...RendezvousOption) (*Rendezvous, error) {
	if _, err := url.Parse(roomURL); err != nil {
		return nil, fmt.Errorf("房间地址无效: %w", err)
	}
	if numPlayers < 1 {
		return nil, fmt.Errorf("%w: %d", session.ErrParticipantCountMismatch, numPlayers)
	}

	r := &Rendezvous{
		ctx:        ctx,
		roomURL:    roomURL,
		numPlayers: numPlayers,
		dial:       transport.DialSignal,
		limiter:    rate.NewLimiter(rate.Every(ReconnectInterval), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Self 服务端分配的自身 ID
func (r *Rendezvous) Self() string {
	return r.self
}

// Roster 当前名单
func (r *Rendezvous) Roster() []string {
	return slices.Clone(r.roster)
}

// LastErr 最近一次连接失败的原因
func (r *Rendezvous) LastErr() error {
	return r.lastErr
}

func (r *Rendezvous) connectURL() string {
	u, _ := url.Parse(r.roomURL)
	q := u.Query()
	q.Set("players", strconv.Itoa(r.numPlayers))
	if r.ticket != "" {
		q.Set("ticket", r.ticket)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Poll 处理已收到的信令消息，不阻塞
func (r *Rendezvous) Poll() (State, error) {
	if r.state == StateReady {
		return StateReady, nil
	}

	if r.sc == nil {
		if !r.limiter.Allow() {
			return StateAwaitingPeers, nil
		}
		sc, err := r.dial(r.ctx, r.connectURL())
		if err != nil {
			r.lastErr = fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
			log.Printf("%v，稍后重试", r.lastErr)
			return StateAwaitingPeers, nil
		}
		r.sc = sc
		r.lastErr = nil
	}

	for {
		select {
		case s, ok := <-r.sc.Incoming():
			if !ok {
				log.Printf("信令连接断开: %v", r.sc.Err())
				_ = r.sc.Close()
				r.sc = nil
				r.backlog = nil
				return StateAwaitingPeers, nil
			}
			if err := r.handle(s); err != nil {
				return StateAwaitingPeers, err
			}
			if len(r.roster) >= r.numPlayers {
				return r.ready()
			}
		default:
			return StateAwaitingPeers, nil
		}
	}
}

func (r *Rendezvous) handle(s *protocol.Signal) error {
	switch s.Kind {
	case protocol.SignalWelcome:
		r.self = s.PeerID
		r.ticket = s.Ticket
		r.roster = slices.Clone(s.Roster)
		log.Printf("加入房间: 自身 %s, 名单 %d/%d", r.self, len(r.roster), r.numPlayers)
	case protocol.SignalPeerJoined:
		if !slices.Contains(r.roster, s.PeerID) {
			r.roster = append(r.roster, s.PeerID)
			log.Printf("对端 %s 加入: %d/%d", s.PeerID, len(r.roster), r.numPlayers)
		}
	case protocol.SignalPeerLeft:
		r.roster = slices.DeleteFunc(r.roster, func(id string) bool { return id == s.PeerID })
		log.Printf("对端 %s 离开: %d/%d", s.PeerID, len(r.roster), r.numPlayers)
	case protocol.SignalRelay:
		// 对端可能先于本端就绪并开始发送输入
		r.backlog = append(r.backlog, s)
	case protocol.SignalError:
		return fmt.Errorf("%w: %s", ErrRoomFull, s.Reason)
	}
	return nil
}

func (r *Rendezvous) ready() (State, error) {
	roster := r.roster[:r.numPlayers]
	if !slices.Contains(roster, r.self) {
		return StateAwaitingPeers, fmt.Errorf("%w: 自身不在前 %d 名", ErrRoomFull, r.numPlayers)
	}
	r.roster = roster
	r.state = StateReady
	log.Printf("对端到齐: %v", r.roster)
	return StateReady, nil
}

// Result 取走参与者和中继传输
func (r *Rendezvous) Result() (*Result, error) {
	if r.consumed {
		return nil, ErrResultConsumed
	}
	if r.state != StateReady {
		return nil, ErrNotReady
	}
	r.consumed = true

	participants := make([]session.Participant, len(r.roster))
	peers := make(map[transport.PeerHandle]string)
	for i, id := range r.roster {
		if id == r.self {
			participants[i] = session.Participant{Local: true, Addr: id}
			continue
		}
		participants[i] = session.Participant{Addr: id}
		peers[transport.PeerHandle(i)] = id
	}

	tr := transport.NewRelay(r.sc, peers, r.backlog)
	r.sc = nil
	r.backlog = nil
	return &Result{Participants: participants, Transport: tr}, nil
}

// Close 结果未取走时关闭信令连接
func (r *Rendezvous) Close() error {
	if r.sc == nil {
		return nil
	}
	sc := r.sc
	r.sc = nil
	return sc.Close()
}
