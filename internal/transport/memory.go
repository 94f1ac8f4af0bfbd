package transport

import (
	"fmt"
	"sync"
)

// MemoryNetwork 进程内网络，端点按槽位编号
//
// 每条有向链路可以暂停（消息排队）和恢复（按序送达），
// 用于在测试中构造晚到的输入和断线。
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints map[PeerHandle]*Memory
	held      map[[2]PeerHandle][]Message
}

// NewMemoryNetwork 创建 n 个端点
func NewMemoryNetwork(n int) *MemoryNetwork {
	net := &MemoryNetwork{
		endpoints: make(map[PeerHandle]*Memory, n),
		held:      make(map[[2]PeerHandle][]Message),
	}
	for i := 0; i < n; i++ {
		net.endpoints[PeerHandle(i)] = &Memory{net: net, self: PeerHandle(i)}
	}
	return net
}

// Endpoint 返回槽位对应的端点
func (n *MemoryNetwork) Endpoint(slot int) *Memory {
	return n.endpoints[PeerHandle(slot)]
}

// Hold 暂停 from -> to 的链路
func (n *MemoryNetwork) Hold(from, to int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := [2]PeerHandle{PeerHandle(from), PeerHandle(to)}
	if _, ok := n.held[key]; !ok {
		n.held[key] = []Message{}
	}
}

// Release 恢复链路并送达排队的消息
func (n *MemoryNetwork) Release(from, to int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := [2]PeerHandle{PeerHandle(from), PeerHandle(to)}
	queued, ok := n.held[key]
	if !ok {
		return
	}
	delete(n.held, key)
	dst := n.endpoints[PeerHandle(to)]
	dst.queue = append(dst.queue, queued...)
}

func (n *MemoryNetwork) deliver(from, to PeerHandle, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	dst, ok := n.endpoints[to]
	if !ok || to == from {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, to)
	}
	src := n.endpoints[from]
	if src.closed {
		return ErrClosed
	}
	if dst.closed {
		// 对端已离开，数据丢失
		return nil
	}

	msg := Message{Peer: from, Data: append([]byte(nil), data...)}
	key := [2]PeerHandle{from, to}
	if queued, held := n.held[key]; held {
		n.held[key] = append(queued, msg)
		return nil
	}
	dst.queue = append(dst.queue, msg)
	return nil
}

// Memory 进程内传输端点
type Memory struct {
	net    *MemoryNetwork
	self   PeerHandle
	queue  []Message
	closed bool
}

// Send 投递到目标端点
func (m *Memory) Send(peer PeerHandle, data []byte) error {
	return m.net.deliver(m.self, peer, data)
}

// Receive 取走已送达的消息
func (m *Memory) Receive() []Message {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

// Close 关闭端点，其余端点收到断开通知
func (m *Memory) Close() error {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for handle, ep := range m.net.endpoints {
		if handle == m.self || ep.closed {
			continue
		}
		ep.queue = append(ep.queue, Message{Peer: m.self, Disconnected: true})
	}
	return nil
}

// Closed 端点是否已关闭
func (m *Memory) Closed() bool {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	return m.closed
}
