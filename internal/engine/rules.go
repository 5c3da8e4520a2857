// rules.go

package engine

import (
	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
)

// EnhancedSurcharge 强化行动额外消耗
const EnhancedSurcharge = 1

var actionCosts = map[models.ActionType]int{
	models.AttackPrank:   1,
	models.AttackExploit: 2,
	models.AttackTheft:   3,
	models.AttackDestroy: 4,
	models.AttackRansom:  4,
	models.AttackPhish:   2,
	models.AttackChaos:   3,

	models.DefensePatch:     1,
	models.DefenseFirewall:  2,
	models.DefenseMonitor:   2,
	models.DefenseVaccine:   3,
	models.DefenseAmbush:    3,
	models.DefenseDecoy:     2,
	models.DefenseGuerrilla: 3,
	models.DefenseTaichi:    4,
}

// Cost 计算行动的行动点消耗
func Cost(t models.ActionType, params models.ActionParams) int {
	cost, ok := actionCosts[t]
	if !ok {
		cost = 1
	}
	if params.Enhanced {
		cost += EnhancedSurcharge
	}
	return cost
}

// checkWin 按顺序检查结束条件：回合上限、系统沦陷、完全防御
func checkWin(s *models.MatchSession, sc *scenario.Scenario, roundLimit bool) *models.GameEnd {
	var winner models.Role
	var reason string

	switch {
	case roundLimit:
		winner, reason = models.RoleAttacker, models.EndRoundLimit
		if s.Scores.Overall > 50 {
			winner = models.RoleDefender
		}
	case s.Scores.Loss <= sc.LoseThreshold || s.Scores.Trust <= sc.LoseThreshold:
		winner, reason = models.RoleAttacker, models.EndFullyCompromise
	case s.Scores.Risk >= sc.WinThreshold && s.Scores.Trust >= sc.WinThreshold:
		winner, reason = models.RoleDefender, models.EndFullyDefended
	default:
		return nil
	}

	return &models.GameEnd{Winner: winner, Reason: reason, FinalScores: s.Scores}
}
