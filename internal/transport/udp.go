package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
	"time"
)

// 连续读失败时的重试间隔
const readRetryDelay = 50 * time.Millisecond

// datagramConn *net.UDPConn 中 UDP 用到的部分
type datagramConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// UDP 基于单个 UDP socket 的传输，每个数据包一个数据报
type UDP struct {
	conn   datagramConn
	peers  map[PeerHandle]*net.UDPAddr
	byAddr map[netip.AddrPort]PeerHandle
	inbox  *inbox

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// ListenUDP 在本地端口监听，peers 在会话期间不变
func ListenUDP(port int, peers map[PeerHandle]*net.UDPAddr) (*UDP, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("监听 UDP 端口 %d 失败: %w", port, err)
	}
	t := newUDP(conn, peers)
	log.Printf("UDP 传输监听中: %s", conn.LocalAddr())
	return t, nil
}

func newUDP(conn datagramConn, peers map[PeerHandle]*net.UDPAddr) *UDP {
	t := &UDP{
		conn:   conn,
		peers:  peers,
		byAddr: make(map[netip.AddrPort]PeerHandle, len(peers)),
		inbox:  newInbox(),
	}
	for handle, addr := range peers {
		t.byAddr[normalize(addr.AddrPort())] = handle
	}

	t.wg.Add(1)
	go t.readLoop()
	return t
}

// LocalAddr 本地监听地址
func (t *UDP) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send 发送数据报
func (t *UDP) Send(peer PeerHandle, data []byte) error {
	addr, ok := t.peers[peer]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, len(data))
	}
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Receive 取走已收到的数据报
func (t *UDP) Receive() []Message {
	return t.inbox.drain()
}

// Close 关闭 socket 并等待读协程退出
func (t *UDP) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
		t.wg.Wait()
		log.Printf("UDP 传输已关闭")
	})
	return t.closeErr
}

func (t *UDP) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, MaxPacketSize)
	failures := 0
	for {
		n, addr, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				log.Printf("UDP 读取失败 (连续 %d 次): %v", failures, err)
			}
			time.Sleep(readRetryDelay)
			continue
		}
		failures = 0

		peer, ok := t.byAddr[normalize(addr)]
		if !ok {
			// 不在名单里的地址直接丢弃
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		t.inbox.push(Message{Peer: peer, Data: data})
	}
}

func normalize(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
