package transport

import (
	"fmt"
	"sync"

	"rollduel/pkg/protocol"
)

// Relay 经信令服务转发的传输，浏览器等无法直连 UDP 的部署使用
type Relay struct {
	sc    *SignalConn
	peers map[PeerHandle]string
	byID  map[string]PeerHandle

	mu      sync.Mutex
	backlog []*protocol.Signal
	gone    bool

	closeOnce sync.Once
}

// NewRelay 接管信令连接，backlog 为协商阶段提前收到的消息
func NewRelay(sc *SignalConn, peers map[PeerHandle]string, backlog []*protocol.Signal) *Relay {
	r := &Relay{
		sc:      sc,
		peers:   peers,
		byID:    make(map[string]PeerHandle, len(peers)),
		backlog: backlog,
	}
	for handle, id := range peers {
		r.byID[id] = handle
	}
	return r
}

// Send 发送给指定对端
func (r *Relay) Send(peer PeerHandle, data []byte) error {
	id, ok := r.peers[peer]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, len(data))
	}
	return r.sc.Send(protocol.NewRelay(id, data))
}

// Receive 取走已收到的转发消息
func (r *Relay) Receive() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, s := range r.backlog {
		out = r.appendSignal(out, s)
	}
	r.backlog = nil

	if r.gone {
		return out
	}
	for {
		select {
		case s, ok := <-r.sc.Incoming():
			if !ok {
				// 信令连接断开，所有对端都不可达
				r.gone = true
				for handle := range r.peers {
					out = append(out, Message{Peer: handle, Disconnected: true})
				}
				return out
			}
			out = r.appendSignal(out, s)
		default:
			return out
		}
	}
}

func (r *Relay) appendSignal(out []Message, s *protocol.Signal) []Message {
	handle, ok := r.byID[s.PeerID]
	if !ok {
		return out
	}
	switch s.Kind {
	case protocol.SignalRelay:
		return append(out, Message{Peer: handle, Data: s.Data})
	case protocol.SignalPeerLeft:
		return append(out, Message{Peer: handle, Disconnected: true})
	}
	return out
}

// Close 关闭信令连接
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.sc.Close()
	})
	return err
}
