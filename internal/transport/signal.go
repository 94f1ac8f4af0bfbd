package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rollduel/pkg/protocol"

	"github.com/coder/websocket"
)

const (
	signalReadLimit = 4 * MaxPacketSize
	signalQueueSize = 1024
)

// SignalConn 到信令服务的 websocket 连接
//
// 读协程把解码后的消息放入 Incoming，读失败后关闭该通道。
// Send 只入队，由写协程写出；写失败时连接整体失效，Incoming 随之关闭。
// 协商阶段由协商器消费，会话开始后整体移交给 Relay。
type SignalConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	incoming chan *protocol.Signal
	out      *outbox

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// DialSignal 连接到房间地址
func DialSignal(ctx context.Context, url string) (*SignalConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("连接信令服务 %s 失败: %w", url, err)
	}
	return NewSignalConn(ctx, conn), nil
}

// NewSignalConn 包装已建立的连接并启动读协程
func NewSignalConn(parent context.Context, conn *websocket.Conn) *SignalConn {
	ctx, cancel := context.WithCancel(parent)
	conn.SetReadLimit(signalReadLimit)

	c := &SignalConn{
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan *protocol.Signal, signalQueueSize),
		out:      newOutbox(),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Incoming 收到的信令消息
func (c *SignalConn) Incoming() <-chan *protocol.Signal {
	return c.incoming
}

// Err 读协程退出的原因
func (c *SignalConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// fail 记录第一个导致连接失效的错误
func (c *SignalConn) fail(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Send 异步发送信令消息，队列满时返回 ErrSendQueueFull
func (c *SignalConn) Send(s *protocol.Signal) error {
	return c.out.push(protocol.MarshalSignal(s))
}

// Close 正常关闭连接
func (c *SignalConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.out.close()
		if !c.out.wait(flushTimeout) {
			// 写协程卡住，先中断写入
			c.cancel()
		}
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	return err
}

// writeLoop 发送循环，写失败后取消连接，读协程随之退出
func (c *SignalConn) writeLoop() {
	err := c.out.run(func(data []byte) error {
		return c.conn.Write(c.ctx, websocket.MessageBinary, data)
	})
	if err != nil && c.ctx.Err() == nil {
		log.Printf("信令发送失败: %v", err)
		c.fail(err)
		c.cancel()
	}
}

func (c *SignalConn) readLoop() {
	defer close(c.incoming)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.fail(err)
			return
		}
		s, err := protocol.UnmarshalSignal(data)
		if err != nil {
			log.Printf("信令消息解析失败: %v", err)
			continue
		}
		select {
		case c.incoming <- s:
		case <-c.ctx.Done():
			return
		}
	}
}
