package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/config"
	"github.com/jacl-coder/CyberChess-Server/internal/gateway"
)

const shutdownTimeout = 5 * time.Second

// GameServer 游戏服务器：websocket 接入与房间定时任务
type GameServer struct {
	config     *config.Config
	hub        *Hub
	manager    *Manager
	auth       *gateway.Authenticator
	httpServer *http.Server
	log        *zap.Logger
}

// NewGameServer 创建游戏服务器，auth 为空时接受匿名连接
func NewGameServer(cfg *config.Config, hub *Hub, manager *Manager, auth *gateway.Authenticator, log *zap.Logger) *GameServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &GameServer{
		config:  cfg,
		hub:     hub,
		manager: manager,
		auth:    auth,
		log:     log,
	}
}

// Handler 创建HTTP处理器
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket 连接端点
	mux.HandleFunc("/ws", s.handleWSConnection)

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// Run 启动监听与房间定时任务，直到 ctx 结束
func (s *GameServer) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.GamePort),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("游戏服务器启动", zap.Int("port", s.config.Server.GamePort))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	tick := time.NewTicker(positive(s.config.Game.TickInterval, time.Second))
	defer tick.Stop()
	reap := time.NewTicker(positive(s.config.Game.ReapInterval, time.Minute))
	defer reap.Stop()

	for {
		select {
		case now := <-tick.C:
			s.manager.Tick(now)
		case now := <-reap.C:
			s.manager.Reap(now)
		case err := <-errCh:
			return fmt.Errorf("游戏服务器错误: %w", err)
		case <-ctx.Done():
			return s.stop()
		}
	}
}

// stop 关闭所有连接与HTTP服务器
func (s *GameServer) stop() error {
	s.hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP服务器关闭错误: %w", err)
	}
	s.manager.Wait()

	s.log.Info("游戏服务器已停止")
	return nil
}

func positive(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
