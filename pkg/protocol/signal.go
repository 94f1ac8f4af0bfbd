package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// SignalKind 信令消息类型
type SignalKind uint32

const (
	SignalUnknown    SignalKind = iota
	SignalWelcome               // 服务端 -> 新加入的对端：自身 ID、票据、当前名单
	SignalPeerJoined            // 服务端 -> 房间内所有对端：新对端加入
	SignalPeerLeft              // 服务端 -> 房间内所有对端：对端离开
	SignalRelay                 // 双向：转发给 Target 的数据
	SignalError                 // 服务端 -> 对端：拒绝原因
)

// Signal 信令服务消息
//
// 字段编号:
//
//	1 kind    varint
//	2 peer_id string  Welcome: 自身 ID；PeerJoined/PeerLeft: 对应对端；Relay: 发送方
//	3 ticket  string  Welcome 携带的重连票据
//	4 roster  string  (repeated) 按加入顺序排列的对端 ID
//	5 target  string  Relay 目标
//	6 data    bytes   Relay 负载
//	7 reason  string  Error 原因
type Signal struct {
	Kind   SignalKind
	PeerID string
	Ticket string
	Roster []string
	Target string
	Data   []byte
	Reason string
}

// NewWelcome 构造欢迎消息
func NewWelcome(peerID, ticket string, roster []string) *Signal {
	return &Signal{Kind: SignalWelcome, PeerID: peerID, Ticket: ticket, Roster: roster}
}

// NewPeerJoined 构造对端加入消息
func NewPeerJoined(peerID string) *Signal {
	return &Signal{Kind: SignalPeerJoined, PeerID: peerID}
}

// NewPeerLeft 构造对端离开消息
func NewPeerLeft(peerID string) *Signal {
	return &Signal{Kind: SignalPeerLeft, PeerID: peerID}
}

// NewRelay 构造转发消息
func NewRelay(target string, data []byte) *Signal {
	return &Signal{Kind: SignalRelay, Target: target, Data: data}
}

// NewSignalError 构造错误消息
func NewSignalError(reason string) *Signal {
	return &Signal{Kind: SignalError, Reason: reason}
}

// MarshalSignal 编码信令消息
func MarshalSignal(s *Signal) []byte {
	b := make([]byte, 0, 64+len(s.Data))
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Kind))
	b = appendString(b, 2, s.PeerID)
	b = appendString(b, 3, s.Ticket)
	for _, id := range s.Roster {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	b = appendString(b, 5, s.Target)
	if len(s.Data) > 0 {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Data)
	}
	b = appendString(b, 7, s.Reason)
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// UnmarshalSignal 解码信令消息
func UnmarshalSignal(data []byte) (*Signal, error) {
	s := &Signal{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			s.Kind = SignalKind(v)
			n = m
		case num >= 2 && num <= 7 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			switch num {
			case 2:
				s.PeerID = string(v)
			case 3:
				s.Ticket = string(v)
			case 4:
				s.Roster = append(s.Roster, string(v))
			case 5:
				s.Target = string(v)
			case 6:
				s.Data = append([]byte(nil), v...)
			case 7:
				s.Reason = string(v)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	if s.Kind == SignalUnknown {
		return nil, fmt.Errorf("%w: 缺少消息类型", ErrMalformed)
	}
	return s, nil
}
