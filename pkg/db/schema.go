// schema.go

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateAllTablesSQL 回放存储的表结构
const CreateAllTablesSQL = `
-- 对局表，archive 为 protobuf 编码的完整记录
CREATE TABLE IF NOT EXISTS matches (
    id VARCHAR(64) PRIMARY KEY,
    scenario_id INT NOT NULL,
    game_mode VARCHAR(20) NOT NULL,
    attacker_id VARCHAR(64) NOT NULL DEFAULT '',
    defender_id VARCHAR(64) NOT NULL DEFAULT '',
    winner VARCHAR(20) NOT NULL DEFAULT '',
    end_reason VARCHAR(40) NOT NULL DEFAULT '',
    rounds INT NOT NULL DEFAULT 0,
    final_trust DOUBLE PRECISION NOT NULL,
    final_risk DOUBLE PRECISION NOT NULL,
    final_incident DOUBLE PRECISION NOT NULL,
    final_loss DOUBLE PRECISION NOT NULL,
    final_overall DOUBLE PRECISION NOT NULL,
    archetypes TEXT[] NOT NULL DEFAULT '{}',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,
    archive BYTEA NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

-- 行动记录表
CREATE TABLE IF NOT EXISTS match_moves (
    id VARCHAR(64) PRIMARY KEY,
    match_id VARCHAR(64) REFERENCES matches(id) ON DELETE CASCADE,
    sequence INT NOT NULL,
    round INT NOT NULL,
    role VARCHAR(20) NOT NULL,
    action_type VARCHAR(20) NOT NULL,
    action_name VARCHAR(50) NOT NULL DEFAULT '',
    target VARCHAR(100) NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL,
    cost INT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    impact JSONB NOT NULL DEFAULT '{}',
    executed_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches(ended_at);
CREATE INDEX IF NOT EXISTS idx_matches_attacker_id ON matches(attacker_id);
CREATE INDEX IF NOT EXISTS idx_matches_defender_id ON matches(defender_id);
CREATE INDEX IF NOT EXISTS idx_match_moves_match_id ON match_moves(match_id, sequence);
`

// Migrate 创建回放存储所需的表
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, CreateAllTablesSQL); err != nil {
		return fmt.Errorf("初始化数据库表失败: %w", err)
	}
	return nil
}
