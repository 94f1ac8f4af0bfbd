package transport

import (
	"errors"
	"log"
	"sync"
	"time"
)

const (
	MaxPacketSize = 4096 // 最大消息大小
	inboxSize     = 1024 // 接收队列缓冲区
	outboxSize    = 256  // 每条连接的发送队列

	flushTimeout = 100 * time.Millisecond // 关闭时等待队列写完的最长时间
)

var (
	ErrClosed           = errors.New("传输已关闭")
	ErrUnknownPeer      = errors.New("未知对端")
	ErrPeerNotConnected = errors.New("对端尚未连接")
	ErrPacketTooLarge   = errors.New("消息过大")
	ErrSendQueueFull    = errors.New("发送队列满")
)

// PeerHandle 传输层内远端对端的句柄，协商器使用槽位号作为句柄
type PeerHandle int

// Message 收到的一条消息
type Message struct {
	Peer         PeerHandle
	Data         []byte
	Disconnected bool // 传输层已确认该对端断开，Data 为空
}

// Transport 对端间收发原始数据包
//
// Send 和 Receive 都不阻塞：Send 只把数据放入有界发送队列，由写协程写出，
// 队列满时返回 ErrSendQueueFull；后台读协程把数据放入有界队列，每帧开始时一次性取走。
// Close 可重复调用，只有第一次生效。
type Transport interface {
	Send(peer PeerHandle, data []byte) error
	Receive() []Message
	Close() error
}

// inbox 有界接收队列，满时丢弃（回滚协议会重发未确认的输入）
type inbox struct {
	ch chan Message
}

func newInbox() *inbox {
	return &inbox{ch: make(chan Message, inboxSize)}
}

func (b *inbox) push(m Message) {
	select {
	case b.ch <- m:
	default:
		log.Printf("对端 %d: 接收队列满，丢弃消息", m.Peer)
	}
}

func (b *inbox) drain() []Message {
	var out []Message
	for {
		select {
		case m := <-b.ch:
			out = append(out, m)
		default:
			return out
		}
	}
}

// outbox 有界发送队列，写操作由独立协程串行执行，满时丢弃
type outbox struct {
	ch        chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newOutbox() *outbox {
	return &outbox{
		ch:      make(chan []byte, outboxSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// push 异步发送
func (o *outbox) push(data []byte) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}

	select {
	case o.ch <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// run 发送循环，直到关闭或写失败；关闭引起的写失败不算错误
//
// 关闭后尽量写出队列中剩余的消息（例如 Bye）再返回。
func (o *outbox) run(write func([]byte) error) error {
	defer close(o.stopped)

	for {
		select {
		case <-o.done:
			o.flush(write)
			return nil
		case data := <-o.ch:
			if err := write(data); err != nil {
				if o.closed() {
					return nil
				}
				return err
			}
		}
	}
}

func (o *outbox) flush(write func([]byte) error) {
	for {
		select {
		case data := <-o.ch:
			if write(data) != nil {
				return
			}
		default:
			return
		}
	}
}

// wait 等待发送循环退出，超时返回 false
func (o *outbox) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-o.stopped:
		return true
	case <-timer.C:
		return false
	}
}

func (o *outbox) closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

func (o *outbox) close() {
	o.closeOnce.Do(func() { close(o.done) })
}
