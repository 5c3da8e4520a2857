package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CacheEntry 缓存的响应
type CacheEntry struct {
	Data        []byte
	ContentType string
	ETag        string
	ExpiresAt   time.Time
}

// ResponseCache 按路径前缀缓存 GET 响应，用于内容不再变化的接口
type ResponseCache struct {
	entries map[string]*CacheEntry
	mutex   sync.RWMutex

	// 路径前缀 -> 缓存时间
	ttl        map[string]time.Duration
	MaxEntries int
	now        func() time.Time
}

// NewResponseCache 创建响应缓存
func NewResponseCache(ttl map[string]time.Duration) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]*CacheEntry),
		ttl:        ttl,
		MaxEntries: 1000,
		now:        time.Now,
	}
}

// Middleware 缓存中间件，支持 If-None-Match
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ttl, ok := c.ttlFor(r.URL.Path)
		if r.Method != http.MethodGet || !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if entry := c.Get(key); entry != nil {
			if r.Header.Get("If-None-Match") == entry.ETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", entry.ContentType)
			w.Header().Set("ETag", entry.ETag)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(entry.Data)
			return
		}

		rec := &cacheRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		rec.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(rec, r)

		// 只缓存成功响应
		if rec.statusCode == http.StatusOK && rec.body.Len() > 0 {
			c.Set(key, &CacheEntry{
				Data:        rec.body.Bytes(),
				ContentType: rec.Header().Get("Content-Type"),
				ETag:        etag(rec.body.Bytes()),
				ExpiresAt:   c.now().Add(ttl),
			})
		}
	})
}

func (c *ResponseCache) ttlFor(path string) (time.Duration, bool) {
	best := ""
	for prefix := range c.ttl {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0, false
	}
	return c.ttl[best], true
}

// Get 获取未过期的缓存条目
func (c *ResponseCache) Get(key string) *CacheEntry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return nil
	}
	return entry
}

// Set 写入缓存条目，超过上限时先淘汰过期条目，再淘汰最早过期的条目
func (c *ResponseCache) Set(key string, entry *CacheEntry) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.entries) >= c.MaxEntries {
		c.evictExpired(c.now())
	}
	if len(c.entries) >= c.MaxEntries {
		c.evictOldest()
	}
	c.entries[key] = entry
}

// Len 缓存条目数
func (c *ResponseCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Run 定期清理过期条目，直到 ctx 结束
func (c *ResponseCache) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.evictExpired(c.now())
			c.mutex.Unlock()
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *ResponseCache) evictExpired(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *ResponseCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.ExpiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.ExpiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func etag(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf(`"%x"`, sum[:8])
}

// cacheRecorder 捕获响应体
type cacheRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *cacheRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *cacheRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
