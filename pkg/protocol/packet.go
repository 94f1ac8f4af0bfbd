package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Version 对端输入协议版本，不一致的两端不能组成会话
const Version = 1

// NoFrame 表示尚未确认任何帧
const NoFrame int32 = -1

var (
	ErrVersionMismatch = errors.New("协议版本不一致")
	ErrMalformed       = errors.New("数据包格式错误")
)

// PacketKind 对端数据包类型
type PacketKind uint32

const (
	KindUnknown PacketKind = iota
	KindInput              // 输入帧 + 确认号
	KindHello              // KCP 连接建立后发起方表明槽位
	KindBye                // 主动断开
	KindKeepalive          // 无新输入时保活
)

func (k PacketKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindHello:
		return "hello"
	case KindBye:
		return "bye"
	case KindKeepalive:
		return "keepalive"
	}
	return "unknown"
}

// Packet 对端之间交换的数据包
//
// 字段编号:
//
//	1 version     varint
//	2 kind        varint
//	3 slot        varint   发送方本地玩家槽位
//	4 start_frame varint   Inputs[0] 对应的帧号
//	5 inputs      bytes    每帧一个输入字节
//	6 ack_frame   zigzag   已连续收到的对方最大帧号，NoFrame 表示没有
type Packet struct {
	Version    uint32
	Kind       PacketKind
	Slot       int32
	StartFrame int32
	Inputs     []byte
	AckFrame   int32
}

// NewInputPacket 构造输入数据包
func NewInputPacket(slot, startFrame int32, inputs []byte, ackFrame int32) *Packet {
	return &Packet{
		Version:    Version,
		Kind:       KindInput,
		Slot:       slot,
		StartFrame: startFrame,
		Inputs:     inputs,
		AckFrame:   ackFrame,
	}
}

// NewHelloPacket 构造握手数据包
func NewHelloPacket(slot int32) *Packet {
	return &Packet{Version: Version, Kind: KindHello, Slot: slot, AckFrame: NoFrame}
}

// NewByePacket 构造断开数据包
func NewByePacket(slot int32) *Packet {
	return &Packet{Version: Version, Kind: KindBye, Slot: slot, AckFrame: NoFrame}
}

// NewKeepalivePacket 构造保活数据包
func NewKeepalivePacket(slot, ackFrame int32) *Packet {
	return &Packet{Version: Version, Kind: KindKeepalive, Slot: slot, AckFrame: ackFrame}
}

// EndFrame 返回包内最后一帧的下一帧
func (p *Packet) EndFrame() int32 {
	return p.StartFrame + int32(len(p.Inputs))
}

// MarshalPacket 将 Packet 编码为字节切片
func MarshalPacket(p *Packet) []byte {
	b := make([]byte, 0, 16+len(p.Inputs))
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Version))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Kind))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(p.Slot)))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(p.StartFrame)))
	if len(p.Inputs) > 0 {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Inputs)
	}
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(p.AckFrame)))
	return b
}

// UnmarshalPacket 将字节切片解码为 Packet
func UnmarshalPacket(data []byte) (*Packet, error) {
	p := &Packet{AckFrame: NoFrame}
	hasVersion := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 5 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			p.Inputs = append([]byte(nil), v...)
			n = m
		case num >= 1 && num <= 6 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			switch num {
			case 1:
				p.Version = uint32(v)
				hasVersion = true
			case 2:
				p.Kind = PacketKind(v)
			case 3:
				p.Slot = int32(uint32(v))
			case 4:
				p.StartFrame = int32(uint32(v))
			case 6:
				p.AckFrame = int32(protowire.DecodeZigZag(v))
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

	if !hasVersion {
		return nil, fmt.Errorf("%w: 缺少版本号", ErrMalformed)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("%w: 收到 v%d，本端 v%d", ErrVersionMismatch, p.Version, Version)
	}
	return p, nil
}
