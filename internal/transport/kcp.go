package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"rollduel/pkg/protocol"

	kcp "github.com/xtaci/kcp-go/v5"
)

const (
	helloTimeout = 5 * time.Second // 等待握手包
	writeTimeout = 1 * time.Second // 写入超时
)

// KCP 基于 kcp-go 的可靠有序传输
//
// 每对对端之间一条 KCP 会话：槽位小的一方主动连接，槽位大的一方接受，
// 连接建立后发起方先发送 Hello 包表明自己的槽位。
// 消息使用 4 字节大端长度前缀分帧。
type KCP struct {
	self     PeerHandle
	listener *kcp.Listener
	expected map[PeerHandle]bool

	mu       sync.Mutex
	sessions map[PeerHandle]*kcpConn
	closed   bool

	inbox     *inbox
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ListenKCP 监听本地端口，并主动连接槽位大于 self 的对端
func ListenKCP(port int, self PeerHandle, peers map[PeerHandle]string) (*KCP, error) {
	listener, err := kcp.ListenWithOptions(fmt.Sprintf(":%d", port), nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("监听 KCP 端口 %d 失败: %w", port, err)
	}

	t := &KCP{
		self:     self,
		listener: listener,
		expected: make(map[PeerHandle]bool, len(peers)),
		sessions: make(map[PeerHandle]*kcpConn),
		inbox:    newInbox(),
	}
	for handle := range peers {
		t.expected[handle] = true
	}

	t.wg.Add(1)
	go t.acceptLoop()

	for handle, addr := range peers {
		if handle < self {
			continue
		}
		if err := t.dial(handle, addr); err != nil {
			t.Close()
			return nil, err
		}
	}

	log.Printf("KCP 传输监听中: %s", listener.Addr())
	return t, nil
}

func (t *KCP) dial(peer PeerHandle, addr string) error {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("连接对端 %d (%s) 失败: %w", peer, addr, err)
	}
	tune(sess)

	if err := writeFrame(sess, protocol.MarshalPacket(protocol.NewHelloPacket(int32(t.self)))); err != nil {
		sess.Close()
		return fmt.Errorf("发送握手包失败: %w", err)
	}

	t.register(peer, sess)
	return nil
}

// tune 低延迟参数，禁用 Nagle 式合并
func tune(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 10, 2, 1)
}

func (t *KCP) acceptLoop() {
	defer t.wg.Done()

	for {
		sess, err := t.listener.AcceptKCP()
		if err != nil {
			if t.isClosed() {
				return
			}
			log.Printf("接受 KCP 连接失败: %v", err)
			continue
		}
		tune(sess)

		t.wg.Add(1)
		go t.handshake(sess)
	}
}

// handshake 读取 Hello 包确定对端槽位
func (t *KCP) handshake(sess *kcp.UDPSession) {
	defer t.wg.Done()

	_ = sess.SetReadDeadline(time.Now().Add(helloTimeout))
	data, err := readFrame(sess)
	if err != nil {
		log.Printf("来自 %s 的握手失败: %v", sess.RemoteAddr(), err)
		sess.Close()
		return
	}
	_ = sess.SetReadDeadline(time.Time{})

	pkt, err := protocol.UnmarshalPacket(data)
	if err != nil || pkt.Kind != protocol.KindHello {
		log.Printf("来自 %s 的握手包无效: %v", sess.RemoteAddr(), err)
		sess.Close()
		return
	}

	peer := PeerHandle(pkt.Slot)
	if !t.expected[peer] {
		log.Printf("来自 %s 的槽位 %d 不在名单中", sess.RemoteAddr(), peer)
		sess.Close()
		return
	}

	t.register(peer, sess)
}

// kcpConn 一条 KCP 会话及其发送队列
type kcpConn struct {
	sess *kcp.UDPSession
	out  *outbox
}

func (c *kcpConn) close() {
	c.out.close()
	c.out.wait(flushTimeout)
	c.sess.Close()
}

func (t *KCP) register(peer PeerHandle, sess *kcp.UDPSession) {
	conn := &kcpConn{sess: sess, out: newOutbox()}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sess.Close()
		return
	}
	old := t.sessions[peer]
	t.sessions[peer] = conn
	t.mu.Unlock()

	if old != nil {
		old.close()
	}

	log.Printf("对端 %d: KCP 会话建立 %s", peer, sess.RemoteAddr())

	t.wg.Add(2)
	go t.receiveLoop(peer, conn)
	go t.writeLoop(peer, conn)
}

// receiveLoop 接收循环
func (t *KCP) receiveLoop(peer PeerHandle, conn *kcpConn) {
	defer t.wg.Done()

	for {
		data, err := readFrame(conn.sess)
		if err != nil {
			if t.isClosed() {
				return
			}
			if !errors.Is(err, io.EOF) {
				log.Printf("对端 %d: 读取失败: %v", peer, err)
			}
			t.drop(peer, conn)
			return
		}
		if len(data) == 0 {
			continue
		}
		t.inbox.push(Message{Peer: peer, Data: data})
	}
}

// writeLoop 发送循环，写超时视为会话失效
func (t *KCP) writeLoop(peer PeerHandle, conn *kcpConn) {
	defer t.wg.Done()

	err := conn.out.run(func(data []byte) error {
		_ = conn.sess.SetWriteDeadline(time.Now().Add(writeTimeout))
		return writeFrame(conn.sess, data)
	})
	if err != nil && !t.isClosed() {
		log.Printf("对端 %d: 写入失败: %v", peer, err)
		t.drop(peer, conn)
	}
}

// drop 会话失效时移除，并通知上层
func (t *KCP) drop(peer PeerHandle, conn *kcpConn) {
	t.mu.Lock()
	current := t.sessions[peer] == conn
	if current {
		delete(t.sessions, peer)
	}
	t.mu.Unlock()

	conn.close()
	if current {
		t.inbox.push(Message{Peer: peer, Disconnected: true})
	}
}

// Send 放入对端的发送队列，不等待写入完成
func (t *KCP) Send(peer PeerHandle, data []byte) error {
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, len(data))
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	conn, ok := t.sessions[peer]
	t.mu.Unlock()
	if !ok {
		if !t.expected[peer] {
			return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
		}
		return fmt.Errorf("%w: %d", ErrPeerNotConnected, peer)
	}

	return conn.out.push(data)
}

// Receive 取走已收到的消息
func (t *KCP) Receive() []Message {
	return t.inbox.drain()
}

// Close 关闭所有会话
func (t *KCP) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		sessions := t.sessions
		t.sessions = make(map[PeerHandle]*kcpConn)
		t.mu.Unlock()

		err = t.listener.Close()
		for _, conn := range sessions {
			conn.close()
		}
		t.wg.Wait()
		log.Printf("KCP 传输已关闭")
	})
	return err
}

func (t *KCP) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// writeFrame 写入长度前缀（4 字节）和数据体
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取一帧
func readFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
