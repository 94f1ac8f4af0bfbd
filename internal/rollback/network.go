package rollback

import (
	"errors"
	"fmt"
	"log"

	"rollduel/internal/transport"
	"rollduel/pkg/core"
	"rollduel/pkg/protocol"
)

// poll 收取所有已到达的消息，返回第一个预测错误的帧（没有则为当前帧）
func (s *Session) poll() (int32, error) {
	firstIncorrect := s.frame
	if s.tr == nil {
		return firstIncorrect, nil
	}

	now := s.now()
	for _, msg := range s.tr.Receive() {
		remote, ok := s.remotes[msg.Peer]
		if !ok || s.peerInert(msg.Peer) {
			continue
		}
		if msg.Disconnected {
			log.Printf("对端 %d 传输断开", msg.Peer)
			s.disconnectPeer(msg.Peer, &firstIncorrect)
			continue
		}

		pkt, err := protocol.UnmarshalPacket(msg.Data)
		if err != nil {
			if errors.Is(err, protocol.ErrVersionMismatch) {
				return 0, fmt.Errorf("%w: 对端 %d: %v", ErrDesync, msg.Peer, err)
			}
			log.Printf("丢弃对端 %d 的数据包: %v", msg.Peer, err)
			continue
		}

		remote.lastRecv = now
		remote.seen = true
		if pkt.AckFrame > remote.ackedByPeer {
			remote.ackedByPeer = min(pkt.AckFrame, s.frame-1)
		}

		switch pkt.Kind {
		case protocol.KindBye:
			log.Printf("对端 %d 主动离开", msg.Peer)
			s.disconnectPeer(msg.Peer, &firstIncorrect)
		case protocol.KindInput:
			if err := s.receiveInputs(msg.Peer, pkt, &firstIncorrect); err != nil {
				return 0, err
			}
		}
	}

	// 只对已经通信过的对端计算超时，对端尚未启动时停在预测上限等待
	for handle, remote := range s.remotes {
		if !remote.seen || s.peerInert(handle) {
			continue
		}
		if silent := now.Sub(remote.lastRecv); silent > s.cfg.DisconnectTimeout {
			log.Printf("对端 %d 已 %v 无消息，视为断开", handle, silent)
			s.disconnectPeer(handle, &firstIncorrect)
		}
	}
	return firstIncorrect, nil
}

// receiveInputs 记录对端输入，与已用的预测值不一致时更新回滚起点
func (s *Session) receiveInputs(handle transport.PeerHandle, pkt *protocol.Packet, firstIncorrect *int32) error {
	slot := int(pkt.Slot)
	if slot < 0 || slot >= len(s.players) {
		log.Printf("对端 %d 发送了无效槽位 %d", handle, slot)
		return nil
	}
	p := s.players[slot]
	if p.local || p.peer != handle || p.inert {
		return nil
	}

	limit := s.frame + ringSize - int32(s.cfg.MaxPredictionWindow) - 1
	for i, b := range pkt.Inputs {
		f := pkt.StartFrame + int32(i)
		if f <= p.confirmed {
			continue
		}
		// 中间有帧丢失，等对端重发
		if f != p.confirmed+1 || f >= limit {
			break
		}
		if _, err := core.DecodeInput(b); err != nil {
			return fmt.Errorf("%w: 槽位 %d 帧 %d: %v", ErrDesync, slot, f, err)
		}

		p.inputs[f%ringSize] = b
		p.confirmed = f
		p.last = b
		if f < s.frame && p.used[f%ringSize] != b {
			*firstIncorrect = min(*firstIncorrect, f)
		}
	}
	return nil
}

// disconnectPeer 对端的所有槽位转为离线，之后的帧一律使用空输入
func (s *Session) disconnectPeer(handle transport.PeerHandle, firstIncorrect *int32) {
	for slot, p := range s.players {
		if p.local || p.inert || p.peer != handle {
			continue
		}
		p.inert = true
		p.inertFrom = p.confirmed + 1
		for f := max(p.inertFrom, s.frame-ringSize+1); f < s.frame; f++ {
			if p.used[f%ringSize] != 0 {
				*firstIncorrect = min(*firstIncorrect, f)
				break
			}
		}
		s.disconnects = append(s.disconnects, slot)
		log.Printf("槽位 %d 离线，从帧 %d 起使用空输入", slot, p.inertFrom)
	}
}

func (s *Session) peerInert(handle transport.PeerHandle) bool {
	for _, p := range s.players {
		if !p.local && p.peer == handle && !p.inert {
			return false
		}
	}
	return true
}

// ackFor 该对端所有槽位都已连续收到的帧号
func (s *Session) ackFor(handle transport.PeerHandle) int32 {
	ack := int32(-1)
	first := true
	for _, p := range s.players {
		if p.local || p.peer != handle {
			continue
		}
		if first || p.confirmed < ack {
			ack = p.confirmed
			first = false
		}
	}
	return ack
}

// sendInputs 向每个对端发送其尚未确认的全部本地输入
//
// 每帧重发未确认部分，丢包由下一帧的数据包补上。
func (s *Session) sendInputs() {
	if s.tr == nil {
		return
	}
	for handle, remote := range s.remotes {
		if s.peerInert(handle) {
			continue
		}
		ack := s.ackFor(handle)
		for _, slot := range s.locals {
			p := s.players[slot]
			start := max(remote.ackedByPeer+1, s.frame-ringSize+1, 0)
			end := p.confirmed + 1

			var pkt *protocol.Packet
			if start < end {
				inputs := make([]byte, 0, end-start)
				for f := start; f < end; f++ {
					inputs = append(inputs, p.inputs[f%ringSize])
				}
				pkt = protocol.NewInputPacket(int32(slot), start, inputs, ack)
			} else {
				pkt = protocol.NewKeepalivePacket(int32(slot), ack)
			}

			err := s.tr.Send(handle, protocol.MarshalPacket(pkt))
			switch {
			case err == nil, errors.Is(err, transport.ErrPeerNotConnected):
			case errors.Is(err, transport.ErrSendQueueFull):
				// 丢弃，下一帧连同未确认部分一起重发
			default:
				log.Printf("发送到对端 %d 失败: %v", handle, err)
			}
		}
	}
}
