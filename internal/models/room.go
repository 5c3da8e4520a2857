package models

import (
	"time"
)

// RoomStatus 房间状态
type RoomStatus string

const (
	// RoomWaiting 等待中
	RoomWaiting RoomStatus = "waiting"
	// RoomReady 人数已满
	RoomReady RoomStatus = "ready"
	// RoomPlaying 游戏中
	RoomPlaying RoomStatus = "playing"
	// RoomPaused 已暂停
	RoomPaused RoomStatus = "paused"
	// RoomEnded 已结束
	RoomEnded RoomStatus = "ended"
)

// MaxRoomPlayers 每个房间的参战人数上限
const MaxRoomPlayers = 2

// RoomPlayer 房间内的玩家
type RoomPlayer struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Ready     bool      `json:"isReady"`
	Connected bool      `json:"isConnected"`
	LastSeen  time.Time `json:"lastSeen"`
}

// RoomInfo 房间详情
type RoomInfo struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId"`
	ScenarioID int          `json:"scenarioId"`
	Mode       GameMode     `json:"gameMode"`
	Status     RoomStatus   `json:"state"`
	Players    []RoomPlayer `json:"players"`
	Spectators []string     `json:"spectators"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// RoomSummary 房间列表条目
type RoomSummary struct {
	ID             string     `json:"id"`
	PlayerCount    int        `json:"playerCount"`
	SpectatorCount int        `json:"spectatorCount"`
	Status         RoomStatus `json:"state"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// RoomStats 房间运行统计
type RoomStats struct {
	TotalRooms      int                `json:"totalRooms"`
	RoomsByStatus   map[RoomStatus]int `json:"roomsByStatus"`
	TotalPlayers    int                `json:"totalPlayers"`
	TotalSpectators int                `json:"totalSpectators"`
}
