package db

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/jacl-coder/CyberChess-Server/config"
	"github.com/jacl-coder/CyberChess-Server/pkg/logger"
)

// OpenRedis 创建Redis客户端并确认可用
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	logger.Info("成功连接到Redis服务器", "addr", cfg.GetRedisAddr())
	return client, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Warn("关闭Redis连接时发生错误", "error", err)
		return
	}
	logger.Info("Redis连接已关闭")
}
