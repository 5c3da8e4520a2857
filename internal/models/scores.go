// scores.go

package models

// 综合分权重
const (
	WeightTrust    = 0.30
	WeightRisk     = 0.25
	WeightIncident = 0.25
	WeightLoss     = 0.20

	// ScoreMin 分数下限
	ScoreMin = 0.0
	// ScoreMax 分数上限
	ScoreMax = 100.0
)

// Scores RITE 四项分数及综合分，均在 [0, 100]
type Scores struct {
	Trust    float64 `json:"trust" yaml:"trust"`
	Risk     float64 `json:"risk" yaml:"risk"`
	Incident float64 `json:"incident" yaml:"incident"`
	Loss     float64 `json:"loss" yaml:"loss"`
	Overall  float64 `json:"overall" yaml:"-"`
}

// Delta 分数变化量，零值分量表示不受影响
type Delta struct {
	Trust    float64 `json:"trust,omitempty"`
	Risk     float64 `json:"risk,omitempty"`
	Incident float64 `json:"incident,omitempty"`
	Loss     float64 `json:"loss,omitempty"`
}

// Add 分量相加
func (d Delta) Add(o Delta) Delta {
	return Delta{
		Trust:    d.Trust + o.Trust,
		Risk:     d.Risk + o.Risk,
		Incident: d.Incident + o.Incident,
		Loss:     d.Loss + o.Loss,
	}
}

// Scale 按系数缩放每个分量
func (d Delta) Scale(f float64) Delta {
	return Delta{
		Trust:    d.Trust * f,
		Risk:     d.Risk * f,
		Incident: d.Incident * f,
		Loss:     d.Loss * f,
	}
}

// IsZero 是否没有任何影响
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Sub 计算两次分数之间的变化
func (s Scores) Sub(prev Scores) Delta {
	return Delta{
		Trust:    s.Trust - prev.Trust,
		Risk:     s.Risk - prev.Risk,
		Incident: s.Incident - prev.Incident,
		Loss:     s.Loss - prev.Loss,
	}
}
