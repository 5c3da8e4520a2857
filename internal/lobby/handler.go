package lobby

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/engine"
	"github.com/jacl-coder/CyberChess-Server/internal/game"
	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/replay"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

const (
	defaultMatchLimit = 20
	maxMatchLimit     = 100
	queryTimeout      = 3 * time.Second
)

// RoomSource 房间查询
type RoomSource interface {
	Rooms() []models.RoomSummary
	Room(roomID string) (models.RoomInfo, error)
	Statistics() models.RoomStats
}

// SessionSource 对局分数查询
type SessionSource interface {
	Trend(sessionID string) (scoring.Trend, error)
	Statistics(sessionID string) (scoring.Statistics, error)
}

// RoomCache 跨实例共享的房间列表
type RoomCache interface {
	CachedRooms(ctx context.Context) ([]models.RoomSummary, error)
}

// MatchHistory 已结束对局列表
type MatchHistory interface {
	RecentMatches(ctx context.Context, limit int) ([]replay.MatchSummary, error)
}

// MatchLoader 读取单场对局回放
type MatchLoader interface {
	LoadMatch(ctx context.Context, sessionID string) (*models.MatchRecord, error)
}

// Handler 大厅HTTP处理器
type Handler struct {
	rooms     RoomSource
	sessions  SessionSource
	scenarios *scenario.Catalog
	cache     RoomCache
	history   MatchHistory
	loader    MatchLoader
	log       *zap.Logger
}

// Option 处理器可选项
type Option func(*Handler)

// WithRoomCache 启用缓存房间列表
func WithRoomCache(c RoomCache) Option {
	return func(h *Handler) { h.cache = c }
}

// WithMatchHistory 启用对局列表
func WithMatchHistory(m MatchHistory) Option {
	return func(h *Handler) { h.history = m }
}

// WithMatchLoader 启用对局回放读取
func WithMatchLoader(l MatchLoader) Option {
	return func(h *Handler) { h.loader = l }
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// NewHandler 创建大厅处理器
func NewHandler(rooms RoomSource, sessions SessionSource, scenarios *scenario.Catalog, opts ...Option) *Handler {
	h := &Handler{
		rooms:     rooms,
		sessions:  sessions,
		scenarios: scenarios,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterHandlers 注册HTTP处理器
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	// 健康检查端点
	mux.HandleFunc("GET /health", h.handleHealth)

	// 房间
	mux.HandleFunc("GET /rooms", h.handleRooms)
	mux.HandleFunc("GET /rooms/cached", h.handleCachedRooms)
	mux.HandleFunc("GET /rooms/{id}", h.handleRoom)
	mux.HandleFunc("GET /stats", h.handleStats)

	// 场景与对局
	mux.HandleFunc("GET /scenarios", h.handleScenarios)
	mux.HandleFunc("GET /sessions/{id}/trend", h.handleTrend)
	mux.HandleFunc("GET /sessions/{id}/statistics", h.handleSessionStatistics)
	mux.HandleFunc("GET /matches", h.handleMatches)
	mux.HandleFunc("GET /matches/{id}", h.handleMatch)
}

// response 统一响应格式
type response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// handleHealth 处理健康检查请求
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.rooms == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleRooms 房间列表
func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	h.ok(w, h.rooms.Rooms())
}

// handleCachedRooms 读取Redis中缓存的房间列表
func (h *Handler) handleCachedRooms(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.fail(w, http.StatusServiceUnavailable, "CACHE_DISABLED", "房间列表缓存未启用")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	rooms, err := h.cache.CachedRooms(ctx)
	if err != nil {
		h.log.Warn("读取房间列表缓存失败", zap.Error(err))
		h.fail(w, http.StatusBadGateway, game.CodeInternal, "读取房间列表缓存失败")
		return
	}
	h.ok(w, rooms)
}

// handleRoom 房间详情
func (h *Handler) handleRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.rooms.Room(r.PathValue("id"))
	if err != nil {
		h.fail(w, http.StatusNotFound, game.ErrorCode(err), "房间不存在")
		return
	}
	h.ok(w, info)
}

// handleStats 房间运行统计
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.ok(w, h.rooms.Statistics())
}

// handleScenarios 可用场景列表
func (h *Handler) handleScenarios(w http.ResponseWriter, r *http.Request) {
	h.ok(w, h.scenarios.List())
}

// handleTrend 对局分数走势预测
func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	tr, err := h.sessions.Trend(r.PathValue("id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	h.ok(w, tr)
}

// handleSessionStatistics 对局分数统计
func (h *Handler) handleSessionStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Statistics(r.PathValue("id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	h.ok(w, st)
}

// handleMatches 最近结束的对局
func (h *Handler) handleMatches(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.fail(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "对局记录未启用")
		return
	}

	limit := defaultMatchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.fail(w, http.StatusBadRequest, game.CodeInvalidPayload, "无效的limit参数")
			return
		}
		limit = n
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	matches, err := h.history.RecentMatches(ctx, limit)
	if err != nil {
		h.log.Warn("查询对局列表失败", zap.Error(err))
		h.fail(w, http.StatusBadGateway, game.CodeInternal, "查询对局列表失败")
		return
	}
	h.ok(w, matches)
}

// handleMatch 单场对局回放
func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		h.fail(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "对局记录未启用")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	rec, err := h.loader.LoadMatch(ctx, r.PathValue("id"))
	if errors.Is(err, replay.ErrMatchNotFound) {
		h.fail(w, http.StatusNotFound, "MATCH_NOT_FOUND", "对局不存在")
		return
	}
	if err != nil {
		h.log.Warn("读取对局回放失败", zap.Error(err))
		h.fail(w, http.StatusBadGateway, game.CodeInternal, "读取对局回放失败")
		return
	}
	h.ok(w, rec)
}

func (h *Handler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrSessionNotFound) {
		h.fail(w, http.StatusNotFound, game.CodeRoomNotFound, "对局不存在")
		return
	}
	h.log.Error("查询对局失败", zap.Error(err))
	h.fail(w, http.StatusInternalServerError, game.CodeInternal, "服务器内部错误")
}

func (h *Handler) ok(w http.ResponseWriter, data interface{}) {
	h.write(w, http.StatusOK, response{Success: true, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, status int, code, message string) {
	h.write(w, status, response{Success: false, Code: code, Message: message})
}

func (h *Handler) write(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("编码响应失败", zap.Error(err))
	}
}
