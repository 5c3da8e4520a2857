package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/gateway"
)

const shutdownTimeout = 5 * time.Second

// Server 大厅HTTP服务
type Server struct {
	addr       string
	handler    *Handler
	limiter    *gateway.RateLimiter
	cache      *gateway.ResponseCache
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer 创建大厅服务，limiter 为空时不限流，cache 为空时不缓存
func NewServer(port int, handler *Handler, limiter *gateway.RateLimiter, cache *gateway.ResponseCache, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:    fmt.Sprintf(":%d", port),
		handler: handler,
		limiter: limiter,
		cache:   cache,
		log:     log,
	}
}

// Routes 组装路由与中间件
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	s.handler.RegisterHandlers(mux)

	var h http.Handler = mux
	if s.cache != nil {
		h = s.cache.Middleware(h)
	}
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = gateway.LoggingMiddleware(s.log)(h)
	return gateway.CORSMiddleware(h)
}

// Run 启动服务，直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("大厅服务启动", zap.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("大厅服务错误: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("大厅服务关闭错误: %w", err)
	}
	s.log.Info("大厅服务已停止")
	return nil
}
