// history.go

package scoring

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// DefaultHistoryLimit 每个会话保留的分数快照上限
const DefaultHistoryLimit = 100

// Statistics 会话分数统计
type Statistics struct {
	Samples    int           `json:"samples"`
	Min        models.Scores `json:"min"`
	Max        models.Scores `json:"max"`
	Average    models.Scores `json:"average"`
	Volatility float64       `json:"volatility"`
}

// Service 评分服务，持有各会话的分数历史
type Service struct {
	limit int
	log   *zap.Logger

	history      map[string][]models.Scores
	historyMutex sync.RWMutex
}

// NewService 创建评分服务
func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		limit:   DefaultHistoryLimit,
		log:     log,
		history: make(map[string][]models.Scores),
	}
}

// Record 追加一条分数快照，超出上限时丢弃最早的记录
func (s *Service) Record(sessionID string, scores models.Scores) {
	s.historyMutex.Lock()
	defer s.historyMutex.Unlock()

	h := append(s.history[sessionID], scores)
	if len(h) > s.limit {
		h = append([]models.Scores(nil), h[len(h)-s.limit:]...)
	}
	s.history[sessionID] = h
}

// History 返回会话分数历史的副本
func (s *Service) History(sessionID string) []models.Scores {
	s.historyMutex.RLock()
	defer s.historyMutex.RUnlock()

	return append([]models.Scores(nil), s.history[sessionID]...)
}

// Clear 清除会话历史
func (s *Service) Clear(sessionID string) {
	s.historyMutex.Lock()
	delete(s.history, sessionID)
	s.historyMutex.Unlock()

	s.log.Debug("清除分数历史", zap.String("sessionId", sessionID))
}

// Trend 基于已记录历史预测走势
func (s *Service) Trend(sessionID string, current models.Scores, recent []models.ActionType) Trend {
	return PredictTrend(s.History(sessionID), current, recent)
}

// Statistics 计算会话分数统计，没有历史时返回 false
func (s *Service) Statistics(sessionID string) (Statistics, bool) {
	h := s.History(sessionID)
	if len(h) == 0 {
		return Statistics{}, false
	}

	min, max := h[0], h[0]
	var sum models.Scores
	for _, sc := range h {
		min = pick(min, sc, math.Min)
		max = pick(max, sc, math.Max)
		sum.Trust += sc.Trust
		sum.Risk += sc.Risk
		sum.Incident += sc.Incident
		sum.Loss += sc.Loss
		sum.Overall += sc.Overall
	}

	n := float64(len(h))
	avg := models.Scores{
		Trust:    sum.Trust / n,
		Risk:     sum.Risk / n,
		Incident: sum.Incident / n,
		Loss:     sum.Loss / n,
		Overall:  sum.Overall / n,
	}

	return Statistics{
		Samples:    len(h),
		Min:        min,
		Max:        max,
		Average:    avg,
		Volatility: volatility(h, avg.Overall),
	}, true
}

// volatility 综合分的总体标准差
func volatility(h []models.Scores, mean float64) float64 {
	var variance float64
	for _, sc := range h {
		diff := sc.Overall - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(h)))
}

func pick(a, b models.Scores, f func(float64, float64) float64) models.Scores {
	return models.Scores{
		Trust:    f(a.Trust, b.Trust),
		Risk:     f(a.Risk, b.Risk),
		Incident: f(a.Incident, b.Incident),
		Loss:     f(a.Loss, b.Loss),
		Overall:  f(a.Overall, b.Overall),
	}
}
