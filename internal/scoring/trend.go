// trend.go

package scoring

import (
	"math"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// TrendDirection 趋势方向
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

const (
	// trendWindow 参与平均的最近快照数
	trendWindow = 5
	// stableBand 综合分变化小于该值视为平稳
	stableBand = 5.0
	// 置信度满额所需的样本数
	confidenceHistory = 10
	confidenceActions = 5
)

// Trend 分数走势预测
type Trend struct {
	Direction  TrendDirection `json:"trend"`
	Confidence float64        `json:"confidence"`
	Projection models.Scores  `json:"projection"`
}

var attackSeverity = map[models.ActionType]float64{
	models.AttackPrank:   1,
	models.AttackExploit: 3,
	models.AttackTheft:   4,
	models.AttackDestroy: 5,
	models.AttackRansom:  5,
	models.AttackPhish:   3,
	models.AttackChaos:   4,
}

var defenseEffectiveness = map[models.ActionType]float64{
	models.DefensePatch:     4,
	models.DefenseFirewall:  3,
	models.DefenseMonitor:   2,
	models.DefenseVaccine:   4,
	models.DefenseAmbush:    3,
	models.DefenseDecoy:     2,
	models.DefenseGuerrilla: 3,
	models.DefenseTaichi:    5,
}

// PredictTrend 根据分数历史与最近行动预测走势
func PredictTrend(history []models.Scores, current models.Scores, recent []models.ActionType) Trend {
	current = Normalize(current)
	changes := averageChange(history)
	tf := trendFactor(recent)

	projection := models.Scores{
		Trust:    clamp(current.Trust + changes.Trust*3 + tf*10),
		Risk:     clamp(current.Risk + changes.Risk*3 + tf*8),
		Incident: clamp(current.Incident + changes.Incident*3 - math.Abs(tf)*5),
		Loss:     clamp(current.Loss + changes.Loss*3 - tf*7),
	}
	projection.Overall = Overall(projection)

	direction := TrendStable
	if diff := projection.Overall - current.Overall; math.Abs(diff) >= stableBand {
		if diff > 0 {
			direction = TrendImproving
		} else {
			direction = TrendDeclining
		}
	}

	return Trend{
		Direction:  direction,
		Confidence: confidence(len(history), len(recent)),
		Projection: projection,
	}
}

// averageChange 最近若干快照之间的平均变化
func averageChange(history []models.Scores) models.Delta {
	if len(history) < 2 {
		return models.Delta{}
	}
	if len(history) > trendWindow {
		history = history[len(history)-trendWindow:]
	}

	var sum models.Delta
	for i := 1; i < len(history); i++ {
		sum = sum.Add(history[i].Sub(history[i-1]))
	}
	return sum.Scale(1 / float64(len(history)-1))
}

// trendFactor 防守强度与攻击烈度之差
func trendFactor(recent []models.ActionType) float64 {
	var (
		attacks, defenses       int
		severity, effectiveness float64
	)
	for _, t := range recent {
		switch t.Family() {
		case models.RoleAttacker:
			attacks++
			severity += weightOr(attackSeverity, t)
		case models.RoleDefender:
			defenses++
			effectiveness += weightOr(defenseEffectiveness, t)
		}
	}

	var intensity, strength float64
	if attacks > 0 {
		intensity = severity / float64(attacks)
	}
	if defenses > 0 {
		strength = effectiveness / float64(defenses)
	}
	return (strength - intensity) / 5
}

func weightOr(table map[models.ActionType]float64, t models.ActionType) float64 {
	if w, ok := table[t]; ok {
		return w
	}
	return 2
}

func confidence(historyLen, actionCount int) float64 {
	h := math.Min(1, float64(historyLen)/confidenceHistory)
	a := math.Min(1, float64(actionCount)/confidenceActions)
	return (h*0.6 + a*0.4) * 100
}
