// postgres.go

package replay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

const insertMatchSQL = `
INSERT INTO matches (
    id, scenario_id, game_mode, attacker_id, defender_id, winner, end_reason, rounds,
    final_trust, final_risk, final_incident, final_loss, final_overall,
    archetypes, started_at, ended_at, archive
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO NOTHING`

const insertMoveSQL = `
INSERT INTO match_moves (
    id, match_id, sequence, round, role, action_type, action_name, target,
    success, cost, description, impact, executed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`

// Store 基于PostgreSQL的回放存储
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// NewStore 创建回放存储
func NewStore(db *sql.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// RecordMatch 在一个事务中写入对局、行动记录与存档
func (s *Store) RecordMatch(ctx context.Context, rec *models.MatchRecord) error {
	archive, err := EncodeArchive(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess := rec.Session
	if _, err := tx.ExecContext(ctx, insertMatchSQL,
		sess.ID, sess.ScenarioID, string(sess.Mode), sess.AttackerID, sess.DefenderID,
		string(sess.Winner), sess.EndReason, sess.CurrentRound,
		sess.Scores.Trust, sess.Scores.Risk, sess.Scores.Incident, sess.Scores.Loss, sess.Scores.Overall,
		pq.Array(archetypes(rec.Moves)), sess.StartedAt, nullTime(sess.EndedAt), archive,
	); err != nil {
		return fmt.Errorf("写入对局失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertMoveSQL)
	if err != nil {
		return fmt.Errorf("准备行动写入失败: %w", err)
	}
	defer stmt.Close()

	for _, mv := range rec.Moves {
		impact, err := encodeImpact(mv.Impact)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			mv.ID, sess.ID, mv.Sequence, mv.Round, string(mv.Role), string(mv.ActionType), mv.ActionName,
			mv.Target, mv.Success, mv.Cost, mv.Description, impact, mv.ExecutedAt,
		); err != nil {
			return fmt.Errorf("写入行动记录失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	s.log.Info("对局记录已保存", zap.String("sessionId", sess.ID), zap.Int("moves", len(rec.Moves)))
	return nil
}

// LoadMatch 读取存档并还原完整记录
func (s *Store) LoadMatch(ctx context.Context, sessionID string) (*models.MatchRecord, error) {
	var archive []byte
	err := s.db.QueryRowContext(ctx, `SELECT archive FROM matches WHERE id = $1`, sessionID).Scan(&archive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询对局失败: %w", err)
	}
	return DecodeArchive(archive)
}

// RecentMatches 按结束时间倒序列出对局概要
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, scenario_id, game_mode, attacker_id, defender_id, winner, end_reason, rounds,
       final_trust, final_risk, final_incident, final_loss, final_overall,
       started_at, ended_at,
       (SELECT COUNT(*) FROM match_moves mm WHERE mm.match_id = m.id)
FROM matches m
ORDER BY ended_at DESC NULLS LAST
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询对局列表失败: %w", err)
	}
	defer rows.Close()

	out := make([]MatchSummary, 0)
	for rows.Next() {
		var (
			ms      MatchSummary
			mode    string
			winner  string
			endedAt sql.NullTime
		)
		if err := rows.Scan(
			&ms.SessionID, &ms.ScenarioID, &mode, &ms.AttackerID, &ms.DefenderID, &winner, &ms.EndReason, &ms.Rounds,
			&ms.FinalScores.Trust, &ms.FinalScores.Risk, &ms.FinalScores.Incident, &ms.FinalScores.Loss,
			&ms.FinalScores.Overall, &ms.StartedAt, &endedAt, &ms.Moves,
		); err != nil {
			return nil, fmt.Errorf("读取对局列表失败: %w", err)
		}
		ms.Mode = models.GameMode(mode)
		ms.Winner = models.Role(winner)
		if endedAt.Valid {
			ms.EndedAt = endedAt.Time
		}
		out = append(out, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取对局列表失败: %w", err)
	}
	return out, nil
}

// encodeImpact 行动分数影响，写入 jsonb 列
func encodeImpact(d models.Delta) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("序列化分数影响失败: %w", err)
	}
	return string(data), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
