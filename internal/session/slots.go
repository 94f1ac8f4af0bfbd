package session

import (
	"errors"
	"fmt"

	"rollduel/internal/transport"
)

var (
	ErrParticipantCountMismatch = errors.New("参与者数量与配置不一致")
	ErrNoLocalParticipant       = errors.New("没有本地参与者")
)

// Locality 槽位归属
type Locality int

const (
	LocalityLocal Locality = iota
	LocalityRemote
)

func (l Locality) String() string {
	if l == LocalityLocal {
		return "local"
	}
	return "remote"
}

// Participant 协商得到的一个参与者，顺序即槽位
type Participant struct {
	Local bool
	Addr  string // 远端地址或信令服务分配的 peer id
}

// PlayerSlot 会话期间不可变的玩家槽位
type PlayerSlot struct {
	Index    int
	Locality Locality
	Addr     string
	Handle   transport.PeerHandle
}

// IsLocal 是否本机玩家
func (s PlayerSlot) IsLocal() bool {
	return s.Locality == LocalityLocal
}

func (s PlayerSlot) String() string {
	if s.IsLocal() {
		return fmt.Sprintf("slot %d (local)", s.Index)
	}
	return fmt.Sprintf("slot %d (remote %s)", s.Index, s.Addr)
}

// BuildSlots 按顺序为参与者分配槽位，传输句柄与槽位号相同
func BuildSlots(participants []Participant, numPlayers int) ([]PlayerSlot, error) {
	if len(participants) != numPlayers {
		return nil, fmt.Errorf("%w: 有 %d 个，需要 %d 个", ErrParticipantCountMismatch, len(participants), numPlayers)
	}

	slots := make([]PlayerSlot, len(participants))
	for i, p := range participants {
		slots[i] = PlayerSlot{
			Index:    i,
			Locality: LocalityRemote,
			Addr:     p.Addr,
			Handle:   transport.PeerHandle(i),
		}
		if p.Local {
			slots[i].Locality = LocalityLocal
		}
	}
	return slots, nil
}

// LocalHandles 本地槽位号，升序
func LocalHandles(slots []PlayerSlot) ([]int, error) {
	var handles []int
	for _, s := range slots {
		if s.IsLocal() {
			handles = append(handles, s.Index)
		}
	}
	if len(handles) == 0 {
		return nil, ErrNoLocalParticipant
	}
	return handles, nil
}
