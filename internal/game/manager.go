package game

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/config"
	"github.com/jacl-coder/CyberChess-Server/internal/engine"
	"github.com/jacl-coder/CyberChess-Server/internal/gateway"
	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

// Notifier 向连接投递事件，实现必须是非阻塞的
type Notifier interface {
	SendTo(connID, event string, payload interface{})
	Broadcast(event string, payload interface{})
}

// Recorder 接收已结束对局的完整记录
type Recorder interface {
	RecordMatch(ctx context.Context, rec *models.MatchRecord) error
}

// RoomCache 房间列表的外部缓存
type RoomCache interface {
	StoreRooms(ctx context.Context, rooms []models.RoomSummary) error
}

// Limiter 聊天类消息的频率限制
type Limiter interface {
	Allow(key string, now time.Time) bool
}

// 默认参数
const (
	DefaultReconnectGrace = 5 * time.Minute
	DefaultIdleTimeout    = 2 * time.Hour
	DefaultReviewWindow   = time.Minute

	maxChatLength   = 500
	collabTimeout   = 5 * time.Second
	reasonIdle      = "idle"
	reasonEmpty     = "empty"
	reasonReviewEnd = "review_window"
)

// Settings 房间管理参数
type Settings struct {
	ReconnectGrace time.Duration
	IdleTimeout    time.Duration
	ReviewWindow   time.Duration
	ChatPerMinute  int
	MaxRooms       int
}

// SettingsFrom 从配置读取房间管理参数
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		ReconnectGrace: cfg.Game.ReconnectGrace,
		IdleTimeout:    cfg.Game.IdleTimeout,
		ReviewWindow:   cfg.Game.ReviewWindow,
		ChatPerMinute:  cfg.Game.ChatPerMinute,
		MaxRooms:       cfg.Server.MaxRooms,
	}
}

func (s Settings) withDefaults() Settings {
	if s.ReconnectGrace <= 0 {
		s.ReconnectGrace = DefaultReconnectGrace
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ReviewWindow <= 0 {
		s.ReviewWindow = DefaultReviewWindow
	}
	return s
}

// client 已建立的连接
type client struct {
	id       string
	userID   string
	username string
	roomID   string
}

// Manager 房间管理器，把连接映射到房间与对局
type Manager struct {
	engine   *engine.Engine
	notifier Notifier
	recorder Recorder
	cache    RoomCache
	limiter  Limiter
	settings Settings
	now      func() time.Time
	log      *zap.Logger

	rooms      map[string]*Room
	roomsMutex sync.RWMutex

	clients      map[string]*client
	clientsMutex sync.RWMutex

	// 进行中的对局记录写入
	recording sync.WaitGroup
}

// Option 管理器可选项
type Option func(*Manager)

// WithRecorder 设置对局结束后的记录方
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithRoomCache 设置房间列表缓存
func WithRoomCache(c RoomCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithLimiter 设置聊天频率限制器
func WithLimiter(l Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager 创建房间管理器
func NewManager(eng *engine.Engine, notifier Notifier, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		engine:   eng,
		notifier: notifier,
		settings: settings.withDefaults(),
		now:      time.Now,
		log:      zap.NewNop(),
		rooms:    make(map[string]*Room),
		clients:  make(map[string]*client),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.limiter == nil {
		m.limiter = gateway.NewRateLimiter(m.settings.ChatPerMinute, time.Minute)
	}
	return m
}

// Connect 登记新连接
func (m *Manager) Connect(connID, userID, username string) {
	m.clientsMutex.Lock()
	m.clients[connID] = &client{id: connID, userID: userID, username: username}
	m.clientsMutex.Unlock()

	m.log.Debug("连接建立", zap.String("connId", connID), zap.String("userId", userID))
}

func (m *Manager) client(connID string) (client, error) {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	c, ok := m.clients[connID]
	if !ok {
		return client{}, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	return *c, nil
}

func (m *Manager) setClientRoom(connID, roomID string) {
	m.clientsMutex.Lock()
	if c, ok := m.clients[connID]; ok {
		c.roomID = roomID
	}
	m.clientsMutex.Unlock()
}

// clearClientRoom 仅当连接仍指向该房间时清除
func (m *Manager) clearClientRoom(connID, roomID string) {
	m.clientsMutex.Lock()
	if c, ok := m.clients[connID]; ok && c.roomID == roomID {
		c.roomID = ""
	}
	m.clientsMutex.Unlock()
}

// lockRoom 查找房间并加锁，调用方负责解锁
func (m *Manager) lockRoom(roomID string) (*Room, error) {
	m.roomsMutex.RLock()
	r, ok := m.rooms[roomID]
	m.roomsMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r, nil
}

// memberRoom 锁定连接当前所在的房间
func (m *Manager) memberRoom(c client, roomID string) (*Room, error) {
	if c.roomID == "" || (roomID != "" && roomID != c.roomID) {
		return nil, ErrNotInRoom
	}
	return m.lockRoom(c.roomID)
}

func (m *Manager) snapshot() []*Room {
	m.roomsMutex.RLock()
	defer m.roomsMutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// CreateRoom 创建房间，创建者作为攻击方加入
func (m *Manager) CreateRoom(connID string, req CreateRoomRequest) (models.RoomInfo, error) {
	c, err := m.client(connID)
	if err != nil {
		return models.RoomInfo{}, err
	}
	if c.roomID != "" {
		_ = m.LeaveRoom(connID, c.roomID)
	}

	session, err := m.engine.CreateSession(req.ScenarioID, c.userID, "", req.Mode)
	if err != nil {
		return models.RoomInfo{}, err
	}

	now := m.now()
	r := newRoom(uuid.New().String(), session, now)
	r.addPlayer(c.userID, c.username, models.RoleAttacker, connID, now)

	// 数量检查与登记在同一把锁内完成
	r.mu.Lock()
	m.roomsMutex.Lock()
	if count := len(m.rooms); m.settings.MaxRooms > 0 && count >= m.settings.MaxRooms {
		m.roomsMutex.Unlock()
		r.mu.Unlock()
		if _, err := m.engine.Release(session.ID); err != nil {
			m.log.Warn("释放对局失败", zap.String("sessionId", session.ID), zap.Error(err))
		}
		return models.RoomInfo{}, fmt.Errorf("%w: %d", ErrRoomLimit, count)
	}
	m.rooms[r.ID] = r
	m.roomsMutex.Unlock()
	m.setClientRoom(connID, r.ID)

	info := r.info()
	m.notifier.SendTo(connID, EventRoomCreated, RoomJoined{Room: info, Role: models.RoleAttacker})
	r.mu.Unlock()

	m.log.Info("创建房间",
		zap.String("roomId", r.ID),
		zap.String("sessionId", r.SessionID),
		zap.String("userId", c.userID))
	m.broadcastRoomList()
	return info, nil
}

// JoinRoom 加入房间；已在房间中的用户重新绑定到新连接
func (m *Manager) JoinRoom(connID string, req JoinRoomRequest) (models.RoomInfo, error) {
	c, err := m.client(connID)
	if err != nil {
		return models.RoomInfo{}, err
	}
	if c.roomID != "" && c.roomID != req.RoomID {
		_ = m.LeaveRoom(connID, c.roomID)
	}

	r, err := m.lockRoom(req.RoomID)
	if err != nil {
		return models.RoomInfo{}, err
	}
	fired := m.fireDue(r, m.now())
	if r.closed {
		r.mu.Unlock()
		m.broadcastRoomList()
		return models.RoomInfo{}, fmt.Errorf("%w: %s", ErrRoomNotFound, req.RoomID)
	}
	info, changed, err := m.join(r, c, req)
	r.mu.Unlock()

	if fired || (err == nil && changed) {
		m.broadcastRoomList()
	}
	return info, err
}

func (m *Manager) join(r *Room, c client, req JoinRoomRequest) (models.RoomInfo, bool, error) {
	now := m.now()

	if p, ok := r.players[c.userID]; ok {
		m.rebind(r, p, c.id, now)
		return r.info(), false, nil
	}

	if req.AsSpectator || req.Role == models.RoleSpectator {
		s := &member{
			RoomPlayer: models.RoomPlayer{
				UserID:    c.userID,
				Username:  c.username,
				Role:      models.RoleSpectator,
				Connected: true,
				LastSeen:  now,
			},
			connID: c.id,
		}
		r.spectators[c.id] = s
		r.touch(now)
		m.setClientRoom(c.id, r.ID)

		info := r.info()
		m.notifier.SendTo(c.id, EventRoomJoined, RoomJoined{Room: info, Role: models.RoleSpectator})
		if r.Status == models.RoomPlaying || r.Status == models.RoomPaused {
			m.syncState(r, c.id)
		}
		m.broadcastExcept(r, c.id, EventSpectatorJoined, PlayerEvent{
			UserID:   c.userID,
			Username: c.username,
			Role:     models.RoleSpectator,
		})
		return info, true, nil
	}

	role, err := m.admit(r, c.userID, req.Role)
	if err != nil {
		return models.RoomInfo{}, false, err
	}
	if err := m.engine.AssignPlayer(r.SessionID, role, c.userID); err != nil {
		return models.RoomInfo{}, false, err
	}

	r.addPlayer(c.userID, c.username, role, c.id, now)
	if r.Status == models.RoomWaiting && len(r.players) == models.MaxRoomPlayers {
		r.Status = models.RoomReady
	}
	r.touch(now)
	m.setClientRoom(c.id, r.ID)

	m.log.Info("玩家加入房间",
		zap.String("roomId", r.ID),
		zap.String("userId", c.userID),
		zap.String("role", string(role)))

	info := r.info()
	m.notifier.SendTo(c.id, EventRoomJoined, RoomJoined{Room: info, Role: role})
	if r.Status == models.RoomPaused {
		m.syncState(r, c.id)
	}
	m.broadcastExcept(r, c.id, EventPlayerJoined, PlayerEvent{
		UserID:   c.userID,
		Username: c.username,
		Role:     role,
	})
	return info, true, nil
}

// admit 检查新玩家能否入座并返回其角色
func (m *Manager) admit(r *Room, userID string, requested models.Role) (models.Role, error) {
	switch r.Status {
	case models.RoomWaiting, models.RoomReady:
		if len(r.players) >= models.MaxRoomPlayers {
			return "", fmt.Errorf("%w: %s", ErrRoomFull, r.ID)
		}
		role, ok := r.assignRole(requested)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrRoomFull, r.ID)
		}
		return role, nil
	case models.RoomPaused:
		// 暂停的对局只接受原先离开的玩家回到原角色
		session, err := m.engine.Session(r.SessionID)
		if err != nil {
			return "", err
		}
		for _, role := range []models.Role{models.RoleAttacker, models.RoleDefender} {
			if r.playerByRole(role) == nil && session.PlayerID(role) == userID {
				return role, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRoomInProgress, r.ID)
}

// rebind 把已有玩家绑定到新连接，并下发完整状态
func (m *Manager) rebind(r *Room, p *member, connID string, now time.Time) {
	if t, ok := r.reconnects[p.UserID]; ok {
		r.timers.cancel(t)
		delete(r.reconnects, p.UserID)
	}
	if p.connID != "" && p.connID != connID {
		m.clearClientRoom(p.connID, r.ID)
	}

	wasConnected := p.Connected
	p.connID = connID
	p.Connected = true
	p.LastSeen = now
	r.touch(now)
	m.setClientRoom(connID, r.ID)

	m.log.Info("玩家重新连接", zap.String("roomId", r.ID), zap.String("userId", p.UserID))

	m.notifier.SendTo(connID, EventRoomRejoined, RoomJoined{Room: r.info(), Role: p.Role})
	m.syncState(r, connID)
	// 对局已结束时只恢复复盘视图
	if !wasConnected && r.Status != models.RoomEnded {
		m.broadcastExcept(r, connID, EventPlayerReconnected, PlayerEvent{
			UserID:   p.UserID,
			Username: p.Username,
			Role:     p.Role,
		})
	}
}

// syncState 向连接下发房间、会话和网络的完整状态
func (m *Manager) syncState(r *Room, connID string) {
	state := StateSync{Room: r.info()}
	if !r.released {
		if s, err := m.engine.Session(r.SessionID); err == nil {
			state.Session = s
		}
		if n, err := m.engine.Network(r.SessionID); err == nil {
			state.Network = n
		}
	}
	m.notifier.SendTo(connID, EventStateSync, state)
}

// LeaveRoom 离开房间；对局中离开会暂停对局，房间空了即移除
func (m *Manager) LeaveRoom(connID, roomID string) error {
	c, err := m.client(connID)
	if err != nil {
		return err
	}
	r, err := m.memberRoom(c, roomID)
	if err != nil {
		return err
	}
	m.leave(r, c)
	r.mu.Unlock()

	m.broadcastRoomList()
	return nil
}

func (m *Manager) leave(r *Room, c client) {
	now := m.now()
	m.clearClientRoom(c.id, r.ID)
	m.notifier.SendTo(c.id, EventRoomLeft, RoomRequest{RoomID: r.ID})

	if s, ok := r.spectators[c.id]; ok {
		delete(r.spectators, c.id)
		m.broadcast(r, EventPlayerLeft, PlayerEvent{UserID: s.UserID, Username: s.Username, Role: models.RoleSpectator})
	} else if p := r.playerByConn(c.id); p != nil {
		delete(r.players, p.UserID)
		if t, ok := r.reconnects[p.UserID]; ok {
			r.timers.cancel(t)
			delete(r.reconnects, p.UserID)
		}
		m.broadcast(r, EventPlayerLeft, PlayerEvent{
			UserID:    p.UserID,
			Username:  p.Username,
			Role:      p.Role,
			WasPlayer: true,
		})
		m.log.Info("玩家离开房间", zap.String("roomId", r.ID), zap.String("userId", p.UserID))

		switch r.Status {
		case models.RoomPlaying:
			if _, err := m.engine.Pause(r.SessionID); err != nil {
				m.log.Error("暂停对局失败", zap.String("roomId", r.ID), zap.Error(err))
				break
			}
			r.Status = models.RoomPaused
			m.broadcast(r, EventGamePaused, GamePaused{Reason: "player_left", UserID: p.UserID})
			m.log.Info("对局暂停", zap.String("roomId", r.ID))
		case models.RoomWaiting, models.RoomReady:
			r.Status = models.RoomWaiting
			if err := m.engine.AssignPlayer(r.SessionID, p.Role, ""); err != nil {
				m.log.Warn("解除角色绑定失败", zap.String("roomId", r.ID), zap.Error(err))
			}
		}
	}

	r.touch(now)
	if r.isEmpty() {
		m.teardown(r, reasonEmpty)
	}
}

// SetReady 切换准备状态
func (m *Manager) SetReady(connID string, req ReadyRequest) error {
	c, err := m.client(connID)
	if err != nil {
		return err
	}
	r, err := m.memberRoom(c, req.RoomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	p := r.playerByConn(connID)
	if p == nil {
		return fmt.Errorf("%w: spectators cannot ready", ErrNotInRoom)
	}
	if r.Status == models.RoomPlaying || r.Status == models.RoomEnded {
		return fmt.Errorf("%w: %s", ErrRoomInProgress, r.ID)
	}

	p.Ready = req.IsReady
	r.touch(m.now())
	m.broadcast(r, EventPlayerReady, PlayerEvent{UserID: p.UserID, Role: p.Role, IsReady: p.Ready})
	return nil
}

// StartGame 两名玩家都准备后开始对局，也用于恢复暂停的对局
func (m *Manager) StartGame(connID, roomID string) error {
	c, err := m.client(connID)
	if err != nil {
		return err
	}
	r, err := m.memberRoom(c, roomID)
	if err != nil {
		return err
	}
	if err := m.start(r, connID); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	m.broadcastRoomList()
	return nil
}

func (m *Manager) start(r *Room, connID string) error {
	if r.playerByConn(connID) == nil {
		return fmt.Errorf("%w: spectators cannot start", ErrNotInRoom)
	}
	switch r.Status {
	case models.RoomPlaying:
		return fmt.Errorf("%w: %s", ErrRoomInProgress, r.ID)
	case models.RoomEnded:
		return fmt.Errorf("%w: room %s has ended", engine.ErrInvalidState, r.ID)
	}
	if !r.allReady() {
		return ErrNotReady
	}

	resumed := r.Status == models.RoomPaused
	session, err := m.engine.Start(r.SessionID)
	if err != nil {
		return err
	}
	network, err := m.engine.Network(r.SessionID)
	if err != nil {
		return err
	}

	r.Status = models.RoomPlaying
	r.touch(m.now())

	m.log.Info("对局开始", zap.String("roomId", r.ID), zap.Bool("resumed", resumed))
	m.broadcast(r, EventGameStarted, GameStarted{
		Session:   session,
		Network:   network,
		TurnOrder: []models.Role{models.RoleAttacker, models.RoleDefender},
		Resumed:   resumed,
	})
	return nil
}

// SubmitAction 提交行动并广播结算结果
func (m *Manager) SubmitAction(connID string, req ActionSubmit) (*engine.TurnOutcome, error) {
	c, err := m.client(connID)
	if err != nil {
		return nil, err
	}
	r, err := m.memberRoom(c, req.RoomID)
	if err != nil {
		return nil, err
	}
	fired := m.fireDue(r, m.now())
	if r.closed {
		r.mu.Unlock()
		m.broadcastRoomList()
		return nil, ErrNotInRoom
	}

	out, err := m.submit(r, connID, req)
	r.mu.Unlock()
	if fired || (err == nil && out.End != nil) {
		m.broadcastRoomList()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) submit(r *Room, connID string, req ActionSubmit) (*engine.TurnOutcome, error) {
	p := r.playerByConn(connID)
	if p == nil {
		return nil, fmt.Errorf("%w: spectators cannot act", engine.ErrInvalidTurn)
	}
	if r.Status != models.RoomPlaying {
		return nil, fmt.Errorf("%w: room is %s", engine.ErrInvalidTurn, r.Status)
	}

	now := m.now()
	out, err := m.engine.ProcessTurn(r.SessionID, models.ActionRequest{
		PlayerID:    p.UserID,
		Role:        p.Role,
		Type:        req.ActionType,
		Target:      req.Target,
		Params:      req.Parameters,
		SubmittedAt: now,
	})
	if err != nil {
		return nil, err
	}
	r.touch(now)

	m.broadcast(r, EventActionResult, ActionBroadcast{
		Action:     out.Move,
		Result:     out.Result,
		Scores:     out.Session.Scores,
		ChainFired: out.ChainFired,
	})
	for _, n := range out.Result.Notifications {
		m.sendToRole(r, n.Target, EventNotification, n)
	}

	if out.End != nil {
		m.finish(r, out.End)
		return out, nil
	}
	m.broadcast(r, EventTurnChange, TurnChange{
		CurrentTurn:  out.Session.CurrentTurn,
		CurrentRound: out.Session.CurrentRound,
	})
	return out, nil
}

// finish 结束房间：广播结果、交出对局记录并安排复盘窗口后移除
func (m *Manager) finish(r *Room, end *models.GameEnd) {
	now := m.now()
	r.Status = models.RoomEnded
	r.EndedAt = now
	r.cancelReconnects()

	m.broadcast(r, EventGameEnded, end)
	m.log.Info("房间对局结束",
		zap.String("roomId", r.ID),
		zap.String("winner", string(end.Winner)),
		zap.String("reason", end.Reason))

	rec, err := m.engine.Release(r.SessionID)
	r.released = true
	if err != nil {
		m.log.Error("释放对局失败", zap.String("roomId", r.ID), zap.Error(err))
	} else if m.recorder != nil {
		m.record(r.ID, rec)
	}

	r.timers.schedule(now.Add(m.settings.ReviewWindow), timerRemove, "")
}

// record 在房间锁和定时循环之外写入对局记录
func (m *Manager) record(roomID string, rec *models.MatchRecord) {
	m.recording.Add(1)
	go func() {
		defer m.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), collabTimeout)
		defer cancel()
		if err := m.recorder.RecordMatch(ctx, rec); err != nil {
			m.log.Error("保存对局记录失败",
				zap.String("roomId", roomID),
				zap.String("sessionId", rec.Session.ID),
				zap.Error(err))
		}
	}()
}

// Wait 等待已交出的对局记录写入完成
func (m *Manager) Wait() {
	m.recording.Wait()
}

// teardown 关闭房间并从管理器中移除，房间必须已加锁
func (m *Manager) teardown(r *Room, reason string) {
	r.closed = true
	r.timers.clear()
	r.reconnects = make(map[string]*timer)

	if !r.released {
		r.released = true
		if _, err := m.engine.Release(r.SessionID); err != nil {
			m.log.Warn("释放对局失败", zap.String("roomId", r.ID), zap.Error(err))
		}
	}
	for _, p := range r.players {
		if p.connID != "" {
			m.clearClientRoom(p.connID, r.ID)
		}
	}
	for id := range r.spectators {
		m.clearClientRoom(id, r.ID)
	}

	m.roomsMutex.Lock()
	delete(m.rooms, r.ID)
	m.roomsMutex.Unlock()

	m.log.Info("房间已移除", zap.String("roomId", r.ID), zap.String("reason", reason))
}

// Chat 房间聊天
func (m *Manager) Chat(connID string, req ChatRequest) error {
	text := strings.TrimSpace(req.Message)
	if text == "" || utf8.RuneCountInString(text) > maxChatLength {
		return fmt.Errorf("%w: chat message length", ErrInvalidPayload)
	}

	c, r, err := m.limitedRoom(connID, req.RoomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	now := m.now()
	r.touch(now)
	m.broadcast(r, EventChatMessage, ChatMessage{
		UserID:    c.userID,
		Username:  c.username,
		Message:   text,
		Timestamp: now,
	})
	return nil
}

// Typing 输入状态，只通知其他人
func (m *Manager) Typing(connID string, req TypingRequest) error {
	c, r, err := m.limitedRoom(connID, req.RoomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	m.broadcastExcept(r, connID, EventTypingIndicator, TypingIndicator{UserID: c.userID, IsTyping: req.IsTyping})
	return nil
}

// Emoji 表情回应
func (m *Manager) Emoji(connID string, req EmojiRequest) error {
	if req.Emoji == "" {
		return fmt.Errorf("%w: empty emoji", ErrInvalidPayload)
	}
	c, r, err := m.limitedRoom(connID, req.RoomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	r.touch(m.now())
	m.broadcast(r, EventEmojiReaction, EmojiReaction{UserID: c.userID, Emoji: req.Emoji})
	return nil
}

// limitedRoom 频率检查后锁定所在房间
func (m *Manager) limitedRoom(connID, roomID string) (client, *Room, error) {
	c, err := m.client(connID)
	if err != nil {
		return client{}, nil, err
	}
	if !m.limiter.Allow(c.userID, m.now()) {
		return client{}, nil, ErrRateLimited
	}
	r, err := m.memberRoom(c, roomID)
	if err != nil {
		return client{}, nil, err
	}
	return c, r, nil
}

// Disconnect 连接断开；对局中的玩家进入重连等待
func (m *Manager) Disconnect(connID string) {
	m.clientsMutex.Lock()
	c, ok := m.clients[connID]
	delete(m.clients, connID)
	m.clientsMutex.Unlock()
	if !ok || c.roomID == "" {
		return
	}

	r, err := m.lockRoom(c.roomID)
	if err != nil {
		return
	}
	defer r.mu.Unlock()

	now := m.now()
	if s, ok := r.spectators[connID]; ok {
		delete(r.spectators, connID)
		m.broadcast(r, EventPlayerLeft, PlayerEvent{UserID: s.UserID, Username: s.Username, Role: models.RoleSpectator})
		return
	}

	p := r.playerByConn(connID)
	if p == nil {
		return
	}
	p.Connected = false
	p.connID = ""
	p.LastSeen = now

	ev := PlayerEvent{UserID: p.UserID, Username: p.Username, Role: p.Role}
	if r.Status == models.RoomPlaying {
		if t, ok := r.reconnects[p.UserID]; ok {
			r.timers.cancel(t)
		}
		deadline := now.Add(m.settings.ReconnectGrace)
		r.reconnects[p.UserID] = r.timers.schedule(deadline, timerReconnect, p.UserID)
		ev.ReconnectBy = &deadline
	}

	m.log.Info("玩家断线", zap.String("roomId", r.ID), zap.String("userId", p.UserID), zap.String("status", string(r.Status)))
	m.broadcast(r, EventPlayerDisconnected, ev)
}

// Reconnect 重连到原房间，恢复原角色
func (m *Manager) Reconnect(connID string, req RoomRequest) error {
	c, err := m.client(connID)
	if err != nil {
		return err
	}
	r, err := m.lockRoom(req.RoomID)
	if err != nil {
		return err
	}

	// 重连期限已过但尚未被 Tick 处理时先判负
	now := m.now()
	fired := m.fireDue(r, now)
	switch p, ok := r.players[c.userID]; {
	case r.closed:
		err = fmt.Errorf("%w: %s", ErrRoomNotFound, req.RoomID)
	case !ok || r.Status == models.RoomEnded:
		err = fmt.Errorf("%w: user %s in room %s", ErrInvalidReconnect, c.userID, r.ID)
	default:
		m.rebind(r, p, connID, now)
	}
	r.mu.Unlock()

	if fired {
		m.broadcastRoomList()
	}
	return err
}

// Tick 触发到期的延迟事件
func (m *Manager) Tick(now time.Time) {
	changed := false
	for _, r := range m.snapshot() {
		r.mu.Lock()
		if m.fireDue(r, now) {
			changed = true
		}
		r.mu.Unlock()
	}
	if changed {
		m.broadcastRoomList()
	}
}

// fireDue 触发房间内到期的事件，房间必须已加锁；返回房间列表是否变化
func (m *Manager) fireDue(r *Room, now time.Time) bool {
	changed := false
	for _, t := range r.timers.due(now) {
		if r.closed {
			break
		}
		switch t.kind {
		case timerReconnect:
			if m.expireReconnect(r, t.userID) {
				changed = true
			}
		case timerRemove:
			m.broadcast(r, EventRoomClosed, RoomClosed{RoomID: r.ID, Reason: reasonReviewEnd})
			m.teardown(r, reasonReviewEnd)
			changed = true
		}
	}
	return changed
}

// expireReconnect 重连期限到期：对局仍在进行则判对手获胜
func (m *Manager) expireReconnect(r *Room, userID string) bool {
	delete(r.reconnects, userID)
	p, ok := r.players[userID]
	if !ok || p.Connected || r.Status != models.RoomPlaying {
		return false
	}

	end, err := m.engine.Forfeit(r.SessionID, p.Role.Opponent(), models.EndOpponentTimeout)
	if err != nil {
		m.log.Error("判负失败", zap.String("roomId", r.ID), zap.Error(err))
		return false
	}
	m.log.Info("重连超时", zap.String("roomId", r.ID), zap.String("userId", userID))
	m.finish(r, end)
	return true
}

// Reap 清理空房间和长时间无活动的房间
func (m *Manager) Reap(now time.Time) {
	changed := false
	for _, r := range m.snapshot() {
		r.mu.Lock()
		switch {
		case r.closed:
		case r.isEmpty():
			m.teardown(r, reasonEmpty)
			changed = true
		case now.Sub(r.lastActivity) >= m.settings.IdleTimeout:
			m.broadcast(r, EventRoomClosed, RoomClosed{RoomID: r.ID, Reason: reasonIdle})
			m.teardown(r, reasonIdle)
			changed = true
		}
		r.mu.Unlock()
	}
	if changed {
		m.broadcastRoomList()
	}
}

// RoomInfo 查询单个房间，roomId 为空时返回房间列表
func (m *Manager) RoomInfo(connID string, req RoomRequest) error {
	if req.RoomID == "" {
		m.notifier.SendTo(connID, EventRoomList, RoomList{Rooms: m.Rooms()})
		return nil
	}
	info, err := m.Room(req.RoomID)
	if err != nil {
		return err
	}
	m.notifier.SendTo(connID, EventRoomInfo, info)
	return nil
}

// Trend 查询所在房间的分数走势
func (m *Manager) Trend(connID string, req RoomRequest) (scoring.Trend, error) {
	c, err := m.client(connID)
	if err != nil {
		return scoring.Trend{}, err
	}
	r, err := m.memberRoom(c, req.RoomID)
	if err != nil {
		return scoring.Trend{}, err
	}
	sessionID := r.SessionID
	r.mu.Unlock()

	tr, err := m.engine.Trend(sessionID)
	if err != nil {
		return scoring.Trend{}, err
	}
	m.notifier.SendTo(connID, EventTrendUpdate, TrendUpdate{SessionID: sessionID, Trend: tr})
	return tr, nil
}

// Room 房间详情
func (m *Manager) Room(roomID string) (models.RoomInfo, error) {
	r, err := m.lockRoom(roomID)
	if err != nil {
		return models.RoomInfo{}, err
	}
	defer r.mu.Unlock()
	return r.info(), nil
}

// Rooms 房间列表，按创建时间排序
func (m *Manager) Rooms() []models.RoomSummary {
	rooms := make([]models.RoomSummary, 0)
	for _, r := range m.snapshot() {
		r.mu.Lock()
		if !r.closed {
			rooms = append(rooms, r.summary())
		}
		r.mu.Unlock()
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

// Statistics 当前房间统计
func (m *Manager) Statistics() models.RoomStats {
	st := models.RoomStats{RoomsByStatus: make(map[models.RoomStatus]int)}
	for _, r := range m.snapshot() {
		r.mu.Lock()
		if !r.closed {
			st.TotalRooms++
			st.RoomsByStatus[r.Status]++
			st.TotalPlayers += len(r.players)
			st.TotalSpectators += len(r.spectators)
		}
		r.mu.Unlock()
	}
	return st
}

// Dispatch 解析并处理一条客户端消息，错误以 error 事件回给该连接
func (m *Manager) Dispatch(connID string, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		m.sendError(connID, fmt.Errorf("%w: %v", ErrInvalidPayload, err))
		return
	}
	if err := m.handle(connID, msg); err != nil {
		m.sendError(connID, err)
	}
}

func (m *Manager) handle(connID string, msg Message) error {
	switch msg.Type {
	case EventCreateRoom:
		var req CreateRoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		_, err := m.CreateRoom(connID, req)
		return err
	case EventJoinRoom:
		var req JoinRoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		_, err := m.JoinRoom(connID, req)
		return err
	case EventLeaveRoom:
		var req RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.LeaveRoom(connID, req.RoomID)
	case EventReady:
		var req ReadyRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.SetReady(connID, req)
	case EventStart:
		var req RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.StartGame(connID, req.RoomID)
	case EventAction:
		var req ActionSubmit
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		_, err := m.SubmitAction(connID, req)
		return err
	case EventChat:
		var req ChatRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.Chat(connID, req)
	case EventTyping:
		var req TypingRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.Typing(connID, req)
	case EventEmoji:
		var req EmojiRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.Emoji(connID, req)
	case EventReconnect:
		var req RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.Reconnect(connID, req)
	case EventRoomInfo:
		var req RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return m.RoomInfo(connID, req)
	case EventTrend:
		var req RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		_, err := m.Trend(connID, req)
		return err
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidPayload, msg.Type)
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// sendError 向连接发送错误事件
func (m *Manager) sendError(connID string, err error) {
	code := ErrorCode(err)
	message := err.Error()
	if code == CodeInternal {
		m.log.Error("处理消息失败", zap.String("connId", connID), zap.Error(err))
		message = "服务器内部错误"
	} else {
		m.log.Debug("请求被拒绝", zap.String("connId", connID), zap.String("code", code), zap.Error(err))
	}
	m.notifier.SendTo(connID, EventError, ErrorEvent{Code: code, Message: message})
}

// broadcast 向房间内所有在线成员发送
func (m *Manager) broadcast(r *Room, event string, payload interface{}) {
	m.broadcastExcept(r, "", event, payload)
}

func (m *Manager) broadcastExcept(r *Room, except, event string, payload interface{}) {
	for _, id := range r.connIDs(except) {
		m.notifier.SendTo(id, event, payload)
	}
}

// sendToRole 只发给某一方，未指定时发给全房间
func (m *Manager) sendToRole(r *Room, role models.Role, event string, payload interface{}) {
	if role == "" {
		m.broadcast(r, event, payload)
		return
	}
	if p := r.playerByRole(role); p != nil && p.connID != "" {
		m.notifier.SendTo(p.connID, event, payload)
	}
}

// broadcastRoomList 向所有连接推送房间列表并刷新缓存，调用时不能持有房间锁
func (m *Manager) broadcastRoomList() {
	rooms := m.Rooms()
	m.notifier.Broadcast(EventRoomListUpdate, RoomList{Rooms: rooms})

	if m.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), collabTimeout)
		defer cancel()
		if err := m.cache.StoreRooms(ctx, rooms); err != nil {
			m.log.Warn("缓存房间列表失败", zap.Error(err))
		}
	}
}
