package signaling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"rollduel/pkg/protocol"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	ErrRoomFull   = errors.New("房间已满")
	ErrRoomClosed = errors.New("房间已关闭")
)

// member 房间成员，连接断开后保留到宽限期结束
type member struct {
	id         string
	peer       *peer
	detachedAt time.Time
}

// Room 一个会合房间
//
// 所有状态只在 Run 协程内修改，加入、离开、转发都经过通道串行化，
// 因此所有对端看到的加入顺序相同。
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	id       string
	capacity int
	grace    time.Duration
	tickets  *TicketIssuer

	members []*member
	size    atomic.Int32

	joinCh  chan joinRequest
	leaveCh chan leaveEvent
	relayCh chan relayEvent
}

type joinRequest struct {
	peer     *peer
	resumeID string
	respCh   chan joinResult
}

type joinResult struct {
	id  string
	err error
}

type leaveEvent struct {
	id   string
	peer *peer
}

type relayEvent struct {
	from string
	sig  *protocol.Signal
}

// NewRoom 创建房间，capacity 为凑齐会话需要的人数
func NewRoom(parent context.Context, id string, capacity int, grace time.Duration, tickets *TicketIssuer) *Room {
	ctx, cancel := context.WithCancel(parent)

	return &Room{
		ctx:      ctx,
		cancel:   cancel,
		id:       id,
		capacity: capacity,
		grace:    grace,
		tickets:  tickets,
		joinCh:   make(chan joinRequest),
		leaveCh:  make(chan leaveEvent, 64),
		relayCh:  make(chan relayEvent, 1024),
	}
}

// Run 房间循环
func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(max(r.grace/4, 10*time.Millisecond))
	defer ticker.Stop()

	log.Printf("房间 %s 循环启动: 容量 %d", r.id, r.capacity)

	for {
		select {
		case <-r.ctx.Done():
			for _, m := range r.members {
				if m.peer != nil {
					m.peer.Close(websocket.StatusGoingAway, "shutdown")
				}
			}
			log.Printf("房间 %s 循环停止", r.id)
			return

		case req := <-r.joinCh:
			r.handleJoin(req)

		case ev := <-r.leaveCh:
			r.handleLeave(ev)

		case ev := <-r.relayCh:
			r.handleRelay(ev)

		case <-ticker.C:
			r.expireDetached(time.Now())
		}
	}
}

// Shutdown 关闭房间
func (r *Room) Shutdown() {
	r.cancel()
}

// Size 当前成员数（含宽限期内断开的成员）
func (r *Room) Size() int {
	return int(r.size.Load())
}

// Join 加入房间，resumeID 非空时尝试恢复原来的位置
func (r *Room) Join(p *peer, resumeID string) (string, error) {
	respCh := make(chan joinResult, 1)

	select {
	case <-r.ctx.Done():
		return "", ErrRoomClosed
	case r.joinCh <- joinRequest{peer: p, resumeID: resumeID, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return "", ErrRoomClosed
	case res := <-respCh:
		return res.id, res.err
	}
}

// Leave 连接断开
func (r *Room) Leave(id string, p *peer) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- leaveEvent{id: id, peer: p}:
	}
}

// Relay 转发数据给房间内的目标对端
func (r *Room) Relay(from string, sig *protocol.Signal) {
	select {
	case <-r.ctx.Done():
	case r.relayCh <- relayEvent{from: from, sig: sig}:
	}
}

func (r *Room) find(id string) *member {
	for _, m := range r.members {
		if m.id == id {
			return m
		}
	}
	return nil
}

func (r *Room) roster() []string {
	ids := make([]string, len(r.members))
	for i, m := range r.members {
		ids[i] = m.id
	}
	return ids
}

func (r *Room) handleJoin(req joinRequest) {
	if req.resumeID != "" {
		if m := r.find(req.resumeID); m != nil {
			if m.peer != nil && m.peer != req.peer {
				m.peer.Close(websocket.StatusPolicyViolation, "replaced")
			}
			m.peer = req.peer
			m.detachedAt = time.Time{}
			if err := r.welcome(m); err != nil {
				req.respCh <- joinResult{err: err}
				return
			}
			log.Printf("房间 %s: 对端 %s 重连", r.id, m.id)
			req.respCh <- joinResult{id: m.id}
			return
		}
		log.Printf("房间 %s: 对端 %s 已过宽限期，按新对端加入", r.id, req.resumeID)
	}

	if len(r.members) >= r.capacity {
		req.respCh <- joinResult{err: fmt.Errorf("%w (%d/%d)", ErrRoomFull, len(r.members), r.capacity)}
		return
	}

	m := &member{id: uuid.NewString(), peer: req.peer}
	r.members = append(r.members, m)
	r.size.Store(int32(len(r.members)))

	if err := r.welcome(m); err != nil {
		r.members = r.members[:len(r.members)-1]
		r.size.Store(int32(len(r.members)))
		req.respCh <- joinResult{err: err}
		return
	}

	r.broadcast(protocol.NewPeerJoined(m.id), m.id)
	log.Printf("房间 %s: 对端 %s 加入 (%d/%d)", r.id, m.id, len(r.members), r.capacity)
	req.respCh <- joinResult{id: m.id}
}

func (r *Room) welcome(m *member) error {
	ticket, err := r.tickets.Issue(m.id, r.id)
	if err != nil {
		return fmt.Errorf("签发票据失败: %w", err)
	}
	if err := m.peer.Send(protocol.NewWelcome(m.id, ticket, r.roster())); err != nil {
		return fmt.Errorf("发送欢迎消息失败: %w", err)
	}
	return nil
}

func (r *Room) handleLeave(ev leaveEvent) {
	m := r.find(ev.id)
	// 已被新连接替换的旧连接断开，不影响成员
	if m == nil || m.peer != ev.peer {
		return
	}
	m.peer = nil
	m.detachedAt = time.Now()
	log.Printf("房间 %s: 对端 %s 断开，宽限期 %v", r.id, m.id, r.grace)
}

func (r *Room) expireDetached(now time.Time) {
	var gone []string
	r.members = slices.DeleteFunc(r.members, func(m *member) bool {
		if m.peer == nil && now.Sub(m.detachedAt) >= r.grace {
			gone = append(gone, m.id)
			return true
		}
		return false
	})
	if len(gone) == 0 {
		return
	}
	r.size.Store(int32(len(r.members)))

	for _, id := range gone {
		log.Printf("房间 %s: 对端 %s 离开，当前人数 %d", r.id, id, len(r.members))
		r.broadcast(protocol.NewPeerLeft(id), id)
	}
}

func (r *Room) handleRelay(ev relayEvent) {
	target := r.find(ev.sig.Target)
	if target == nil || target.peer == nil {
		return
	}
	out := &protocol.Signal{Kind: protocol.SignalRelay, PeerID: ev.from, Data: ev.sig.Data}
	if err := target.peer.Send(out); err != nil {
		log.Printf("房间 %s: 转发到 %s 失败: %v", r.id, target.id, err)
	}
}

func (r *Room) broadcast(s *protocol.Signal, except string) {
	for _, m := range r.members {
		if m.id == except || m.peer == nil {
			continue
		}
		if err := m.peer.Send(s); err != nil {
			log.Printf("房间 %s: 发送到 %s 失败: %v", r.id, m.id, err)
		}
	}
}
