// role.go

package models

// Role 对局中的身份
type Role string

const (
	// RoleAttacker 攻击方
	RoleAttacker Role = "attacker"
	// RoleDefender 防守方
	RoleDefender Role = "defender"
	// RoleSpectator 观战者
	RoleSpectator Role = "spectator"
)

// Opponent 返回对手角色
func (r Role) Opponent() Role {
	switch r {
	case RoleAttacker:
		return RoleDefender
	case RoleDefender:
		return RoleAttacker
	default:
		return ""
	}
}

// IsCombatant 是否为参战角色
func (r Role) IsCombatant() bool {
	return r == RoleAttacker || r == RoleDefender
}

// GameMode 游戏模式
type GameMode string

const (
	// ModePVP 玩家对战
	ModePVP GameMode = "pvp"
	// ModePVE 人机对战
	ModePVE GameMode = "pve"
	// ModeReplay 回放
	ModeReplay GameMode = "replay"
)

// Valid 检查模式是否合法
func (m GameMode) Valid() bool {
	switch m {
	case ModePVP, ModePVE, ModeReplay:
		return true
	}
	return false
}

// Phase 对局阶段
type Phase string

const (
	// PhaseSetup 初始化
	PhaseSetup Phase = "setup"
	// PhaseCombat 对抗
	PhaseCombat Phase = "combat"
	// PhaseResolution 结算
	PhaseResolution Phase = "resolution"
)

// SessionStatus 会话生命周期状态
type SessionStatus string

const (
	// SessionPreparing 准备中
	SessionPreparing SessionStatus = "preparing"
	// SessionActive 进行中
	SessionActive SessionStatus = "active"
	// SessionPaused 已暂停
	SessionPaused SessionStatus = "paused"
	// SessionCompleted 已结束
	SessionCompleted SessionStatus = "completed"
)
