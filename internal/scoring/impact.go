// impact.go

package scoring

import (
	"math"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

const (
	// FailedIncident 失败行动带来的固定事件分波动
	FailedIncident = 2.0

	// 回合因子：每经过一回合增加 1/RoundFactorSpan，上限 MaxRoundFactor
	RoundFactorSpan = 30.0
	MaxRoundFactor  = 2.0

	// 极值区间，处于区间内的分数继续向极值移动时影响减半
	extremeLow  = 20.0
	extremeHigh = 80.0
)

// baseImpacts 成功行动的基础影响
var baseImpacts = map[models.ActionType]models.Delta{
	models.AttackPrank:   {Trust: -5, Incident: 5},
	models.AttackExploit: {Trust: -10, Risk: -20, Incident: 15},
	models.AttackTheft:   {Trust: -15, Incident: 15, Loss: -20},
	models.AttackDestroy: {Risk: -25, Incident: 30, Loss: -30},
	models.AttackRansom:  {Trust: -20, Incident: 25, Loss: -35},
	models.AttackPhish:   {Trust: -20, Risk: -10, Incident: 10},
	models.AttackChaos:   {Trust: -10, Risk: -20, Incident: 20},

	models.DefensePatch:     {Risk: 15, Incident: -10},
	models.DefenseFirewall:  {Trust: 5, Risk: 10},
	models.DefenseMonitor:   {Risk: 5, Incident: 5},
	models.DefenseVaccine:   {Trust: 10, Incident: -15},
	models.DefenseAmbush:    {Trust: 5, Risk: 8},
	models.DefenseDecoy:     {Trust: 3, Risk: 5},
	models.DefenseGuerrilla: {Risk: 12, Incident: -8},
	models.DefenseTaichi:    {Trust: 10, Risk: 15, Incident: -15},
}

// BaseImpact 返回原型的基础影响，未知原型返回零值
func BaseImpact(t models.ActionType) models.Delta {
	return baseImpacts[t]
}

// ImpactOf 计算行动的原始影响：失败只带来少量事件分，成功查基础影响表
func ImpactOf(t models.ActionType, success bool) models.Delta {
	if !success {
		return models.Delta{Incident: FailedIncident}
	}
	return BaseImpact(t)
}

// ContextualAdjustment 根据网络态势计算额外影响
//
// 半数以上系统被攻陷时攻击方成功会加重损失与信任惩罚；
// 防守方启用超过三项防御时防守成功会额外提升风险与信任分。
func ContextualAdjustment(role models.Role, net *models.NetworkState) models.Delta {
	var d models.Delta
	if net == nil {
		return d
	}

	switch role {
	case models.RoleAttacker:
		if net.CompromisedRatio() > 0.5 {
			d.Loss -= 10
			d.Trust -= 5
		}
	case models.RoleDefender:
		if len(net.ActiveDefenses) > 3 {
			d.Risk += 5
			d.Trust += 3
		}
	}
	return d
}

// RoundFactor 回合因子，第一回合为 1.0，之后线性增长到 2.0
func RoundFactor(round int) float64 {
	elapsed := round - 1
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Min(MaxRoundFactor, 1+float64(elapsed)/RoundFactorSpan)
}

// ApplyDynamicFactors 应用回合因子与极值保护
func ApplyDynamicFactors(d models.Delta, current models.Scores, round int) models.Delta {
	rf := RoundFactor(round)
	return models.Delta{
		Trust:    dampen(d.Trust, current.Trust, rf),
		Risk:     dampen(d.Risk, current.Risk, rf),
		Incident: dampen(d.Incident, current.Incident, rf),
		Loss:     dampen(d.Loss, current.Loss, rf),
	}
}

func dampen(v, current, rf float64) float64 {
	scaled := v * rf
	if (current < extremeLow && v < 0) || (current > extremeHigh && v > 0) {
		scaled *= 0.5
	}
	return scaled
}

// UpdateScores 叠加变化量并截断到 [0, 100]，同时重算综合分
func UpdateScores(current models.Scores, d models.Delta) models.Scores {
	next := models.Scores{
		Trust:    clamp(current.Trust + d.Trust),
		Risk:     clamp(current.Risk + d.Risk),
		Incident: clamp(current.Incident + d.Incident),
		Loss:     clamp(current.Loss + d.Loss),
	}
	next.Overall = Overall(next)
	return next
}

// Overall 计算加权综合分
func Overall(s models.Scores) float64 {
	return clamp(s.Trust*models.WeightTrust +
		s.Risk*models.WeightRisk +
		s.Incident*models.WeightIncident +
		s.Loss*models.WeightLoss)
}

// Normalize 截断各项分数并补齐综合分
func Normalize(s models.Scores) models.Scores {
	return UpdateScores(s, models.Delta{})
}

func clamp(v float64) float64 {
	return math.Max(models.ScoreMin, math.Min(models.ScoreMax, v))
}
