package negotiate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollduel/internal/session"
	"rollduel/internal/transport"
)

var (
	ErrResultConsumed       = errors.New("协商结果已被取走")
	ErrNotReady             = errors.New("对端尚未到齐")
	ErrDiscoveryTimeout     = errors.New("等待对端超时")
	ErrTransportUnavailable = errors.New("信令服务不可达")
	ErrRoomFull             = errors.New("房间已满")
)

// State 协商状态
type State int

const (
	StateAwaitingPeers State = iota
	StateReady                // 终态
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "awaiting-peers"
}

// Result 协商产物：按槽位排列的参与者和已建立的传输
type Result struct {
	Participants []session.Participant
	Transport    transport.Transport
}

// Negotiator 对端发现
//
// Poll 不阻塞，StateReady 之后不再变化。Result 只能取一次，
// 取走后传输归调用方所有，协商器不再持有。
type Negotiator interface {
	Poll() (State, error)
	Result() (*Result, error)
	Close() error
}

// Wait 按 interval 轮询直到就绪
//
// ctx 超时返回 ErrDiscoveryTimeout；不设超时则一直等待。
func Wait(ctx context.Context, n Negotiator, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := n.Poll()
		if err != nil {
			return err
		}
		if state == StateReady {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %v", ErrDiscoveryTimeout, ctx.Err())
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
