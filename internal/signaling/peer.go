package signaling

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"rollduel/pkg/protocol"

	"github.com/coder/websocket"
)

const (
	sendQueueSize = 256
	writeTimeout  = time.Second
)

var (
	ErrSendQueueFull = errors.New("发送队列满")
	ErrPeerClosed    = errors.New("连接已关闭")
)

// peer 一个 websocket 连接，写操作由独立协程串行执行
type peer struct {
	conn *websocket.Conn

	sendCh  chan []byte
	closeCh chan struct{}
	closed  bool
	closeMu sync.Mutex
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn:    conn,
		sendCh:  make(chan []byte, sendQueueSize),
		closeCh: make(chan struct{}),
	}
}

// Send 异步发送，队列满时返回 ErrSendQueueFull
func (p *peer) Send(s *protocol.Signal) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}

	select {
	case p.sendCh <- protocol.MarshalSignal(s):
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writeLoop 发送循环
func (p *peer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closeCh:
			return
		case data := <-p.sendCh:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := p.conn.Write(wctx, websocket.MessageBinary, data)
			cancel()
			if err != nil {
				log.Printf("信令发送失败: %v", err)
				p.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// Close 关闭连接，只执行一次
func (p *peer) Close(code websocket.StatusCode, reason string) {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.closeCh)
	p.closeMu.Unlock()

	_ = p.conn.Close(code, reason)
}
