package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/jacl-coder/CyberChess-Server/config"
	"github.com/jacl-coder/CyberChess-Server/pkg/logger"
)

// 连接池参数
const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

// OpenPostgres 连接PostgreSQL并确认可用
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxLifetime(connMaxLifetime)

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("数据库Ping失败: %w", err)
	}

	logger.Info("成功连接到PostgreSQL数据库", "host", cfg.Host, "dbname", cfg.DBName)
	return conn, nil
}

// ClosePostgres 关闭数据库连接
func ClosePostgres(conn *sql.DB) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		logger.Warn("关闭数据库连接时发生错误", "error", err)
		return
	}
	logger.Info("数据库连接已关闭")
}
