package signaling

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	DefaultRoomID   = "default"
	DefaultCapacity = 2
	MaxCapacity     = 16
	MaxRooms        = 1000

	// DefaultGrace 断开的成员保留位置的时长
	DefaultGrace = 5 * time.Second

	cleanupInterval = 30 * time.Second
)

// RoomManager 按房间 ID 管理房间
type RoomManager struct {
	ctx     context.Context
	grace   time.Duration
	tickets *TicketIssuer

	rooms     map[string]*Room
	roomMutex sync.RWMutex
	wg        sync.WaitGroup
	shutdown  chan struct{}
	once      sync.Once
}

// NewRoomManager 创建房间管理器
func NewRoomManager(ctx context.Context, tickets *TicketIssuer, grace time.Duration) *RoomManager {
	m := &RoomManager{
		ctx:      ctx,
		grace:    grace,
		tickets:  tickets,
		rooms:    make(map[string]*Room),
		shutdown: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// cleanupLoop 定期清理空房间
func (m *RoomManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.cleanupEmptyRooms()
		}
	}
}

func (m *RoomManager) cleanupEmptyRooms() {
	m.roomMutex.Lock()
	defer m.roomMutex.Unlock()

	for roomID, room := range m.rooms {
		if room.Size() == 0 {
			log.Printf("清理空房间: %s", roomID)
			room.Shutdown()
			delete(m.rooms, roomID)
		}
	}
}

// Room 获取或创建房间，容量只在创建时生效
func (m *RoomManager) Room(roomID string, capacity int) (*Room, error) {
	m.roomMutex.Lock()
	defer m.roomMutex.Unlock()

	if room, exists := m.rooms[roomID]; exists {
		if room.capacity != capacity {
			log.Printf("房间 %s 容量为 %d，忽略请求的 %d", roomID, room.capacity, capacity)
		}
		return room, nil
	}
	if len(m.rooms) >= MaxRooms {
		return nil, fmt.Errorf("房间数已达上限 %d", MaxRooms)
	}

	log.Printf("创建新房间: %s", roomID)
	room := NewRoom(m.ctx, roomID, capacity, m.grace, m.tickets)
	m.rooms[roomID] = room

	m.wg.Add(1)
	go room.Run(&m.wg)

	return room, nil
}

// Stats 每个房间的人数
func (m *RoomManager) Stats() map[string]int {
	m.roomMutex.RLock()
	defer m.roomMutex.RUnlock()

	stats := make(map[string]int, len(m.rooms))
	for roomID, room := range m.rooms {
		stats[roomID] = room.Size()
	}
	return stats
}

// Shutdown 关闭所有房间并等待房间循环退出
func (m *RoomManager) Shutdown() {
	m.once.Do(func() {
		close(m.shutdown)

		m.roomMutex.Lock()
		log.Printf("关闭 %d 个房间...", len(m.rooms))
		for _, room := range m.rooms {
			room.Shutdown()
		}
		m.roomMutex.Unlock()

		m.wg.Wait()
		log.Println("所有房间已关闭")
	})
}
