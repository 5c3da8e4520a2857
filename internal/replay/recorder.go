// recorder.go

package replay

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

var (
	// ErrMatchNotFound 对局记录不存在
	ErrMatchNotFound = errors.New("match not found")
	// ErrArchiveVersion 存档版本不支持
	ErrArchiveVersion = errors.New("unsupported archive version")
	// ErrEmptyArchive 存档中没有对局记录
	ErrEmptyArchive = errors.New("empty archive")
)

// Recorder 接收已结束对局的记录
type Recorder interface {
	RecordMatch(ctx context.Context, rec *models.MatchRecord) error
}

// MatchSummary 对局概要，用于列表与事件通知
type MatchSummary struct {
	SessionID   string          `json:"sessionId"`
	ScenarioID  int             `json:"scenarioId"`
	Mode        models.GameMode `json:"gameMode"`
	AttackerID  string          `json:"attackerId,omitempty"`
	DefenderID  string          `json:"defenderId,omitempty"`
	Winner      models.Role     `json:"winner,omitempty"`
	EndReason   string          `json:"endReason,omitempty"`
	Rounds      int             `json:"rounds"`
	Moves       int             `json:"moves"`
	FinalScores models.Scores   `json:"finalScores"`
	StartedAt   time.Time       `json:"startedAt"`
	EndedAt     time.Time       `json:"endedAt"`
}

// Summarize 从完整记录中提取概要
func Summarize(rec *models.MatchRecord) MatchSummary {
	s := rec.Session
	return MatchSummary{
		SessionID:   s.ID,
		ScenarioID:  s.ScenarioID,
		Mode:        s.Mode,
		AttackerID:  s.AttackerID,
		DefenderID:  s.DefenderID,
		Winner:      s.Winner,
		EndReason:   s.EndReason,
		Rounds:      s.CurrentRound,
		Moves:       len(rec.Moves),
		FinalScores: s.Scores,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
}

// archetypes 对局中出现过的行动原型，按首次出现顺序
func archetypes(moves []models.Move) []string {
	seen := make(map[models.ActionType]bool)
	out := make([]string, 0)
	for _, mv := range moves {
		if !seen[mv.ActionType] {
			seen[mv.ActionType] = true
			out = append(out, string(mv.ActionType))
		}
	}
	return out
}

// Multi 把同一份记录并发交给多个接收方
type Multi struct {
	recorders []Recorder
}

// NewMulti 创建组合接收方，忽略 nil
func NewMulti(recorders ...Recorder) *Multi {
	m := &Multi{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Len 接收方数量
func (m *Multi) Len() int {
	return len(m.recorders)
}

// RecordMatch 等待全部接收方完成，单个接收方失败不影响其他接收方，返回所有错误
func (m *Multi) RecordMatch(ctx context.Context, rec *models.MatchRecord) error {
	var g errgroup.Group
	errs := make([]error, len(m.recorders))
	for i, r := range m.recorders {
		i, r := i, r
		g.Go(func() error {
			errs[i] = r.RecordMatch(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// LogRecorder 只记录日志，未配置存储时使用
type LogRecorder struct {
	log *zap.Logger
}

// NewLogRecorder 创建日志接收方
func NewLogRecorder(log *zap.Logger) *LogRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogRecorder{log: log}
}

// RecordMatch 写一条对局结束日志
func (l *LogRecorder) RecordMatch(_ context.Context, rec *models.MatchRecord) error {
	s := Summarize(rec)
	l.log.Info("对局已结束",
		zap.String("sessionId", s.SessionID),
		zap.String("winner", string(s.Winner)),
		zap.String("reason", s.EndReason),
		zap.Int("rounds", s.Rounds),
		zap.Int("moves", s.Moves),
		zap.Float64("overall", s.FinalScores.Overall),
	)
	return nil
}
