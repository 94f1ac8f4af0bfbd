package signaling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rollduel/pkg/protocol"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const readLimit = 16 * 1024

// Server 会合信令服务
//
// 房间由 URL 路径指定，?players= 指定凑齐的人数（默认 2），
// ?ticket= 携带重连票据。加入后服务端按加入顺序下发名单，并在房间内转发数据。
type Server struct {
	ctx     context.Context
	manager *RoomManager
	tickets *TicketIssuer
}

// NewServer 创建信令服务，grace 为断线成员保留位置的时长
func NewServer(ctx context.Context, secret string, grace time.Duration) *Server {
	tickets := NewTicketIssuer(secret)
	return &Server{
		ctx:     ctx,
		manager: NewRoomManager(ctx, tickets, grace),
		tickets: tickets,
	}
}

// Manager 房间管理器
func (s *Server) Manager() *RoomManager {
	return s.manager
}

// Shutdown 关闭所有房间
func (s *Server) Shutdown() {
	s.manager.Shutdown()
}

// ListenAndServe 在 addr 上提供服务，ctx 取消后优雅退出
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在已有监听器上提供服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	log.Printf("信令服务监听中: %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func parseRoomRequest(r *http.Request) (string, int, error) {
	roomID := strings.Trim(r.URL.Path, "/")
	if roomID == "" {
		roomID = DefaultRoomID
	}

	capacity := DefaultCapacity
	if v := r.URL.Query().Get("players"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxCapacity {
			return "", 0, fmt.Errorf("players 参数无效: %q", v)
		}
		capacity = n
	}
	return roomID, capacity, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID, capacity, err := parseRoomRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resumeID string
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		peerID, ticketRoom, err := s.tickets.Verify(ticket)
		if err != nil || ticketRoom != roomID {
			http.Error(w, "invalid ticket", http.StatusUnauthorized)
			return
		}
		resumeID = peerID
	}

	room, err := s.manager.Room(roomID, capacity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("websocket 握手失败: %v", err)
		return
	}
	conn.SetReadLimit(readLimit)

	s.handle(room, conn, resumeID)
}

func (s *Server) handle(room *Room, conn *websocket.Conn, resumeID string) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	p := newPeer(conn)
	id, err := room.Join(p, resumeID)
	if err != nil {
		if errors.Is(err, ErrRoomFull) {
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			_ = conn.Write(wctx, websocket.MessageBinary, protocol.MarshalSignal(protocol.NewSignalError(err.Error())))
			wcancel()
			_ = conn.Close(websocket.StatusPolicyViolation, "room full")
			return
		}
		log.Printf("加入房间失败: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return
	}

	go p.writeLoop(ctx)
	defer func() {
		room.Leave(id, p)
		p.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		sig, err := protocol.UnmarshalSignal(data)
		if err != nil {
			log.Printf("对端 %s 消息解析失败: %v", id, err)
			continue
		}
		if sig.Kind == protocol.SignalRelay {
			room.Relay(id, sig)
		}
	}
}
