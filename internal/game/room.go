package game

import (
	"sort"
	"sync"
	"time"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// member 房间成员，connID 为空表示当前断线
type member struct {
	models.RoomPlayer
	connID string
}

// Room 游戏房间，绑定一场对局
type Room struct {
	ID         string
	SessionID  string
	ScenarioID int
	Mode       models.GameMode
	Status     models.RoomStatus
	CreatedAt  time.Time
	EndedAt    time.Time

	mu sync.Mutex

	// players 参战玩家，按 userID 索引
	players map[string]*member
	// spectators 观战者，按 connID 索引
	spectators map[string]*member

	timers     timerQueue
	reconnects map[string]*timer

	lastActivity time.Time
	released     bool
	closed       bool
}

// newRoom 创建房间
func newRoom(id string, session *models.MatchSession, now time.Time) *Room {
	return &Room{
		ID:           id,
		SessionID:    session.ID,
		ScenarioID:   session.ScenarioID,
		Mode:         session.Mode,
		Status:       models.RoomWaiting,
		CreatedAt:    now,
		players:      make(map[string]*member),
		spectators:   make(map[string]*member),
		reconnects:   make(map[string]*timer),
		lastActivity: now,
	}
}

// touch 记录房间活动时间
func (r *Room) touch(now time.Time) {
	r.lastActivity = now
}

// addPlayer 加入参战玩家
func (r *Room) addPlayer(userID, username string, role models.Role, connID string, now time.Time) *member {
	p := &member{
		RoomPlayer: models.RoomPlayer{
			UserID:    userID,
			Username:  username,
			Role:      role,
			Connected: true,
			LastSeen:  now,
		},
		connID: connID,
	}
	r.players[userID] = p
	return p
}

// playerByConn 按连接查找玩家
func (r *Room) playerByConn(connID string) *member {
	for _, p := range r.players {
		if p.connID == connID {
			return p
		}
	}
	return nil
}

// playerByRole 按角色查找玩家
func (r *Room) playerByRole(role models.Role) *member {
	for _, p := range r.players {
		if p.Role == role {
			return p
		}
	}
	return nil
}

// assignRole 为新玩家分配角色：请求的角色空闲则使用，被占用则换为对立角色，未请求时优先防守方
func (r *Room) assignRole(requested models.Role) (models.Role, bool) {
	if requested.IsCombatant() {
		if r.playerByRole(requested) == nil {
			return requested, true
		}
		if r.playerByRole(requested.Opponent()) == nil {
			return requested.Opponent(), true
		}
		return "", false
	}

	for _, role := range []models.Role{models.RoleDefender, models.RoleAttacker} {
		if r.playerByRole(role) == nil {
			return role, true
		}
	}
	return "", false
}

// allReady 两名玩家均在线且已准备
func (r *Room) allReady() bool {
	if len(r.players) != models.MaxRoomPlayers {
		return false
	}
	for _, p := range r.players {
		if !p.Ready || !p.Connected {
			return false
		}
	}
	return true
}

// isEmpty 没有玩家也没有观战者
func (r *Room) isEmpty() bool {
	return len(r.players) == 0 && len(r.spectators) == 0
}

// connIDs 房间内所有在线连接，except 除外
func (r *Room) connIDs(except string) []string {
	ids := make([]string, 0, len(r.players)+len(r.spectators))
	for _, p := range r.sortedPlayers() {
		if p.connID != "" && p.connID != except {
			ids = append(ids, p.connID)
		}
	}
	spectators := make([]string, 0, len(r.spectators))
	for id := range r.spectators {
		if id != except {
			spectators = append(spectators, id)
		}
	}
	sort.Strings(spectators)
	return append(ids, spectators...)
}

// sortedPlayers 攻击方在前
func (r *Room) sortedPlayers() []*member {
	out := make([]*member, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role == models.RoleAttacker
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// info 房间详情快照
func (r *Room) info() models.RoomInfo {
	info := models.RoomInfo{
		ID:         r.ID,
		SessionID:  r.SessionID,
		ScenarioID: r.ScenarioID,
		Mode:       r.Mode,
		Status:     r.Status,
		Players:    make([]models.RoomPlayer, 0, len(r.players)),
		Spectators: make([]string, 0, len(r.spectators)),
		CreatedAt:  r.CreatedAt,
	}
	for _, p := range r.sortedPlayers() {
		info.Players = append(info.Players, p.RoomPlayer)
	}
	for _, s := range r.spectators {
		info.Spectators = append(info.Spectators, s.UserID)
	}
	sort.Strings(info.Spectators)
	return info
}

// summary 房间列表条目
func (r *Room) summary() models.RoomSummary {
	return models.RoomSummary{
		ID:             r.ID,
		PlayerCount:    len(r.players),
		SpectatorCount: len(r.spectators),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
}

// cancelReconnects 取消所有重连计时
func (r *Room) cancelReconnects() {
	for userID, t := range r.reconnects {
		r.timers.cancel(t)
		delete(r.reconnects, userID)
	}
}
