// session.go

package models

import (
	"time"
)

// Tool 玩家持有的工具，对应一个行动原型
type Tool struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Archetype ActionType `json:"archetype" yaml:"archetype"`
	// Cooldown 使用后的冷却回合数
	Cooldown int `json:"cooldown" yaml:"cooldown"`
}

// Resources 一方的资源池
type Resources struct {
	ActionPoints    int                `json:"actionPoints"`
	MaxActionPoints int                `json:"maxActionPoints"`
	Tools           []Tool             `json:"tools"`
	Cooldowns       map[ActionType]int `json:"cooldowns"`
}

// ToolFor 返回该原型对应的工具
func (r *Resources) ToolFor(t ActionType) (Tool, bool) {
	for _, tool := range r.Tools {
		if tool.Archetype == t {
			return tool, true
		}
	}
	return Tool{}, false
}

// CoolingDown 原型是否处于冷却中
func (r *Resources) CoolingDown(t ActionType) bool {
	return r.Cooldowns[t] > 0
}

// MatchSession 一场对局
type MatchSession struct {
	ID         string   `json:"id"`
	ScenarioID int      `json:"scenarioId"`
	Mode       GameMode `json:"gameMode"`

	Phase        Phase `json:"currentPhase"`
	CurrentRound int   `json:"currentRound"`
	MaxRounds    int   `json:"maxRounds"`
	CurrentTurn  Role  `json:"currentTurn"`

	AttackerID string `json:"attackerId,omitempty"`
	DefenderID string `json:"defenderId,omitempty"`

	AttackerResources Resources `json:"attackerResources"`
	DefenderResources Resources `json:"defenderResources"`

	Scores Scores `json:"scores"`

	Status    SessionStatus `json:"status"`
	Winner    Role          `json:"winner,omitempty"`
	EndReason string        `json:"endReason,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt,omitempty"`
}

// ResourcesFor 返回某一方的资源池
func (s *MatchSession) ResourcesFor(role Role) *Resources {
	switch role {
	case RoleAttacker:
		return &s.AttackerResources
	case RoleDefender:
		return &s.DefenderResources
	}
	return nil
}

// PlayerID 返回某一方绑定的用户
func (s *MatchSession) PlayerID(role Role) string {
	switch role {
	case RoleAttacker:
		return s.AttackerID
	case RoleDefender:
		return s.DefenderID
	}
	return ""
}

// Clone 拷贝会话，资源中的切片与映射也会复制
func (s *MatchSession) Clone() *MatchSession {
	c := *s
	c.AttackerResources = s.AttackerResources.clone()
	c.DefenderResources = s.DefenderResources.clone()
	return &c
}

func (r Resources) clone() Resources {
	c := r
	c.Tools = append([]Tool(nil), r.Tools...)
	c.Cooldowns = make(map[ActionType]int, len(r.Cooldowns))
	for k, v := range r.Cooldowns {
		c.Cooldowns[k] = v
	}
	return c
}

// Move 一步已结算的行动记录
type Move struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"sessionId"`
	Sequence    int          `json:"sequence"`
	Round       int          `json:"roundNumber"`
	Role        Role         `json:"playerRole"`
	ActionType  ActionType   `json:"actionType"`
	ActionName  string       `json:"actionName"`
	Target      string       `json:"target,omitempty"`
	Params      ActionParams `json:"parameters"`
	Cost        int          `json:"actionCost"`
	Success     bool         `json:"success"`
	Description string       `json:"resultDescription"`
	Impact      Delta        `json:"impactScores"`
	ExecutedAt  time.Time    `json:"executedAt"`
}

// GameEnd 对局结束信息
type GameEnd struct {
	Winner      Role   `json:"winner"`
	Reason      string `json:"reason"`
	FinalScores Scores `json:"finalScores"`
}

// 结束原因
const (
	EndRoundLimit      = "round_limit"
	EndFullyCompromise = "system_compromised"
	EndFullyDefended   = "fully_defended"
	EndOpponentTimeout = "opponent_timeout"
)

// MatchRecord 已结束对局的完整记录，交给回放生成方
type MatchRecord struct {
	Session      MatchSession  `json:"session"`
	Moves        []Move        `json:"moves"`
	FinalNetwork *NetworkState `json:"finalNetwork"`
}
