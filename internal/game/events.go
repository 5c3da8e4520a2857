// events.go

package game

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

// Message 消息结构
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// 客户端事件
const (
	EventCreateRoom = "create_room"
	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventReady      = "ready"
	EventStart      = "start"
	EventAction     = "action"
	EventChat       = "chat"
	EventTyping     = "typing"
	EventEmoji      = "emoji"
	EventReconnect  = "reconnect"
	EventRoomInfo   = "room_info"
	EventTrend      = "trend"
)

// 服务端事件
const (
	EventRoomCreated        = "room_created"
	EventRoomJoined         = "room_joined"
	EventRoomRejoined       = "room_rejoined"
	EventRoomLeft           = "room_left"
	EventRoomClosed         = "room_closed"
	EventRoomList           = "room_list"
	EventRoomListUpdate     = "room_list_update"
	EventPlayerJoined       = "player_joined"
	EventPlayerLeft         = "player_left"
	EventSpectatorJoined    = "spectator_joined"
	EventPlayerReady        = "player_ready"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
	EventGameStarted        = "game_started"
	EventGamePaused         = "game_paused"
	EventActionResult       = "action_result"
	EventTurnChange         = "turn_change"
	EventGameEnded          = "game_ended"
	EventNotification       = "notification"
	EventStateSync          = "state_sync"
	EventChatMessage        = "chat_message"
	EventTypingIndicator    = "typing_indicator"
	EventEmojiReaction      = "emoji_reaction"
	EventTrendUpdate        = "trend_update"
	EventError              = "error"
)

// CreateRoomRequest 创建房间
type CreateRoomRequest struct {
	ScenarioID int             `json:"scenarioId"`
	Mode       models.GameMode `json:"gameMode"`
}

// JoinRoomRequest 加入房间
type JoinRoomRequest struct {
	RoomID      string      `json:"roomId"`
	Role        models.Role `json:"role,omitempty"`
	AsSpectator bool        `json:"asSpectator"`
}

// RoomRequest 只携带房间号的请求
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// ReadyRequest 准备状态切换
type ReadyRequest struct {
	RoomID  string `json:"roomId"`
	IsReady bool   `json:"isReady"`
}

// ActionSubmit 提交行动
type ActionSubmit struct {
	RoomID     string              `json:"roomId"`
	ActionType models.ActionType   `json:"actionType"`
	Target     string              `json:"target,omitempty"`
	Parameters models.ActionParams `json:"parameters"`
}

// ChatRequest 聊天消息
type ChatRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// TypingRequest 输入状态
type TypingRequest struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// EmojiRequest 表情回应
type EmojiRequest struct {
	RoomID string `json:"roomId"`
	Emoji  string `json:"emoji"`
}

// RoomJoined 加入或重新加入房间的回执
type RoomJoined struct {
	Room models.RoomInfo `json:"room"`
	Role models.Role     `json:"role"`
}

// PlayerEvent 成员变动通知
type PlayerEvent struct {
	UserID    string      `json:"userId"`
	Username  string      `json:"username,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	WasPlayer bool        `json:"wasPlayer,omitempty"`
	IsReady   bool        `json:"isReady,omitempty"`
	// ReconnectBy 断线玩家的重连截止时间，仅对局中有效
	ReconnectBy *time.Time `json:"reconnectBy,omitempty"`
}

// GameStarted 对局开始或恢复
type GameStarted struct {
	Session   *models.MatchSession `json:"session"`
	Network   *models.NetworkState `json:"network"`
	TurnOrder []models.Role        `json:"turnOrder"`
	Resumed   bool                 `json:"resumed,omitempty"`
}

// GamePaused 对局暂停
type GamePaused struct {
	Reason string `json:"reason"`
	UserID string `json:"userId,omitempty"`
}

// ActionBroadcast 行动结算广播
type ActionBroadcast struct {
	Action     models.Move          `json:"action"`
	Result     models.ActionResult  `json:"result"`
	Scores     models.Scores        `json:"scores"`
	ChainFired []models.ChainEffect `json:"chainEffects,omitempty"`
}

// TurnChange 回合切换
type TurnChange struct {
	CurrentTurn  models.Role `json:"currentTurn"`
	CurrentRound int         `json:"currentRound"`
}

// StateSync 完整状态同步
type StateSync struct {
	Room    models.RoomInfo      `json:"room"`
	Session *models.MatchSession `json:"session,omitempty"`
	Network *models.NetworkState `json:"network,omitempty"`
}

// ChatMessage 聊天广播
type ChatMessage struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingIndicator 输入状态广播
type TypingIndicator struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// EmojiReaction 表情广播
type EmojiReaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// RoomList 房间列表
type RoomList struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

// RoomClosed 房间关闭通知
type RoomClosed struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// TrendUpdate 分数趋势
type TrendUpdate struct {
	SessionID string        `json:"sessionId"`
	Trend     scoring.Trend `json:"trend"`
}

// ErrorEvent 错误通知
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
