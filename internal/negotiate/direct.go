package negotiate

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"rollduel/internal/session"
	"rollduel/internal/transport"
)

// LocalDescriptor 标记本地槽位的描述符
const LocalDescriptor = "localhost"

var ErrAddressParse = errors.New("对端地址无法解析")

// AddressError 第 Index 个描述符解析失败
type AddressError struct {
	Index      int
	Descriptor string
	Err        error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("对端 %d 地址 %q 无法解析: %v", e.Index, e.Descriptor, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

func (e *AddressError) Is(target error) bool {
	return target == ErrAddressParse
}

// Proto 直连传输协议
type Proto string

const (
	ProtoUDP Proto = "udp"
	ProtoKCP Proto = "kcp"
)

// ParseDescriptors 解析描述符列表，位置即槽位
func ParseDescriptors(descriptors []string) ([]session.Participant, map[transport.PeerHandle]*net.UDPAddr, error) {
	participants := make([]session.Participant, 0, len(descriptors))
	peers := make(map[transport.PeerHandle]*net.UDPAddr)

	for i, d := range descriptors {
		d = strings.TrimSpace(d)
		if d == LocalDescriptor {
			participants = append(participants, session.Participant{Local: true})
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", d)
		if err != nil {
			return nil, nil, &AddressError{Index: i, Descriptor: d, Err: err}
		}
		if addr.Port == 0 {
			return nil, nil, &AddressError{Index: i, Descriptor: d, Err: errors.New("缺少端口")}
		}
		participants = append(participants, session.Participant{Addr: addr.String()})
		peers[transport.PeerHandle(i)] = addr
	}
	return participants, peers, nil
}

// Direct 直连协商：顺序由调用方给出，绑定端口后立即就绪
type Direct struct {
	participants []session.Participant
	tr           transport.Transport
	consumed     bool
}

// NewDirect 解析描述符并绑定本地端口
func NewDirect(port int, descriptors []string, numPlayers int, proto Proto) (*Direct, error) {
	participants, peers, err := ParseDescriptors(descriptors)
	if err != nil {
		return nil, err
	}
	if len(participants) != numPlayers {
		return nil, fmt.Errorf("%w: 有 %d 个，需要 %d 个", session.ErrParticipantCountMismatch, len(participants), numPlayers)
	}

	self := -1
	for i, p := range participants {
		if p.Local {
			self = i
			break
		}
	}
	if self < 0 {
		return nil, session.ErrNoLocalParticipant
	}

	var tr transport.Transport
	switch proto {
	case ProtoUDP, "":
		tr, err = transport.ListenUDP(port, peers)
	case ProtoKCP:
		addrs := make(map[transport.PeerHandle]string, len(peers))
		for handle, addr := range peers {
			addrs[handle] = addr.String()
		}
		tr, err = transport.ListenKCP(port, transport.PeerHandle(self), addrs)
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("直连协商完成: %s 端口 %d, %d 名玩家", proto, port, numPlayers)
	return &Direct{participants: participants, tr: tr}, nil
}

// Poll 直连模式总是就绪
func (d *Direct) Poll() (State, error) {
	return StateReady, nil
}

// Result 取走参与者和传输
func (d *Direct) Result() (*Result, error) {
	if d.consumed {
		return nil, ErrResultConsumed
	}
	d.consumed = true
	res := &Result{Participants: d.participants, Transport: d.tr}
	d.tr = nil
	return res, nil
}

// Close 结果未取走时释放传输
func (d *Direct) Close() error {
	if d.tr == nil {
		return nil
	}
	tr := d.tr
	d.tr = nil
	return tr.Close()
}
