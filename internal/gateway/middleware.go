package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// RateLimiter 滑动窗口频率限制器，按键（用户或IP）计数
type RateLimiter struct {
	clients map[string]*ClientInfo
	mutex   sync.Mutex

	// 配置
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

// ClientInfo 客户端请求记录
type ClientInfo struct {
	Requests []time.Time
	LastSeen time.Time
}

// NewRateLimiter 创建频率限制器，limit<=0 表示不限制
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients:         make(map[string]*ClientInfo),
		Limit:           limit,
		Window:          window,
		CleanupInterval: 5 * time.Minute,
	}
}

// Allow 检查 key 在 now 时刻是否允许再发起一次请求，允许时记录该次请求
func (rl *RateLimiter) Allow(key string, now time.Time) bool {
	if rl.Limit <= 0 {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[key]
	if !exists {
		client = &ClientInfo{}
		rl.clients[key] = client
	}
	client.LastSeen = now

	// 清理窗口外的记录
	cutoff := now.Add(-rl.Window)
	valid := client.Requests[:0]
	for _, at := range client.Requests {
		if at.After(cutoff) {
			valid = append(valid, at)
		}
	}
	client.Requests = valid

	if len(client.Requests) >= rl.Limit {
		return false
	}
	client.Requests = append(client.Requests, now)
	return true
}

// Sweep 删除长时间没有请求的客户端记录
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := now.Add(-2 * rl.Window)
	removed := 0
	for key, client := range rl.clients {
		if client.LastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Run 周期性清理，直到 ctx 结束
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(rl.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.Sweep(now)
		case <-ctx.Done():
			return nil
		}
	}
}

// Middleware HTTP 频率限制中间件，按客户端IP计数
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r), time.Now()) {
			rl.sendRateLimitError(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP 获取客户端IP
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// sendRateLimitError 发送频率限制错误响应
func (rl *RateLimiter) sendRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": fmt.Sprintf("请求过于频繁，每%s最多允许 %d 次请求", rl.Window, rl.Limit),
		"code":    "RATE_LIMITED",
	})
}

// CORSMiddleware 跨域中间件
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware 请求日志中间件
func LoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(recorder, r)

			log.Debug("HTTP请求",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// responseRecorder 响应记录器
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader 记录状态码
func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}
