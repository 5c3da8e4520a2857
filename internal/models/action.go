// action.go

package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// ActionType 行动原型（七种攻击、八种防御）
type ActionType string

// 攻击原型
const (
	// AttackPrank 恶作剧
	AttackPrank ActionType = "prank"
	// AttackExploit 漏洞利用
	AttackExploit ActionType = "exploit"
	// AttackTheft 数据窃取
	AttackTheft ActionType = "theft"
	// AttackDestroy 破坏
	AttackDestroy ActionType = "destroy"
	// AttackRansom 勒索
	AttackRansom ActionType = "ransom"
	// AttackPhish 钓鱼
	AttackPhish ActionType = "phish"
	// AttackChaos 供应链攻击
	AttackChaos ActionType = "chaos"
)

// 防御原型
const (
	// DefensePatch 打补丁
	DefensePatch ActionType = "patch"
	// DefenseFirewall 防火墙
	DefenseFirewall ActionType = "firewall"
	// DefenseMonitor 监控
	DefenseMonitor ActionType = "monitor"
	// DefenseVaccine 杀毒
	DefenseVaccine ActionType = "vaccine"
	// DefenseAmbush 埋伏
	DefenseAmbush ActionType = "ambush"
	// DefenseDecoy 诱饵
	DefenseDecoy ActionType = "decoy"
	// DefenseGuerrilla 游击
	DefenseGuerrilla ActionType = "guerrilla"
	// DefenseTaichi 太极
	DefenseTaichi ActionType = "taichi"
)

// AttackTypes 全部攻击原型
var AttackTypes = []ActionType{
	AttackPrank, AttackExploit, AttackTheft, AttackDestroy, AttackRansom, AttackPhish, AttackChaos,
}

// DefenseTypes 全部防御原型
var DefenseTypes = []ActionType{
	DefensePatch, DefenseFirewall, DefenseMonitor, DefenseVaccine,
	DefenseAmbush, DefenseDecoy, DefenseGuerrilla, DefenseTaichi,
}

// IsAttack 是否为攻击原型
func (t ActionType) IsAttack() bool {
	switch t {
	case AttackPrank, AttackExploit, AttackTheft, AttackDestroy, AttackRansom, AttackPhish, AttackChaos:
		return true
	}
	return false
}

// IsDefense 是否为防御原型
func (t ActionType) IsDefense() bool {
	switch t {
	case DefensePatch, DefenseFirewall, DefenseMonitor, DefenseVaccine,
		DefenseAmbush, DefenseDecoy, DefenseGuerrilla, DefenseTaichi:
		return true
	}
	return false
}

// Family 返回可以使用该原型的角色，未知原型返回空
func (t ActionType) Family() Role {
	switch {
	case t.IsAttack():
		return RoleAttacker
	case t.IsDefense():
		return RoleDefender
	}
	return ""
}

// ActionParams 行动参数
type ActionParams struct {
	Enhanced        bool   `json:"enhanced,omitempty"`
	VulnerabilityID string `json:"vulnerabilityId,omitempty"`
	VulnType        string `json:"vulnType,omitempty"`
	DataType        string `json:"dataType,omitempty"`
}

// ActionRequest 一次提交的行动
type ActionRequest struct {
	PlayerID    string       `json:"playerId,omitempty"`
	Role        Role         `json:"role"`
	Type        ActionType   `json:"actionType"`
	Target      string       `json:"target,omitempty"`
	Params      ActionParams `json:"parameters"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

// ChainEffect 延迟若干回合生效的分数变化
type ChainEffect struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Delay       int    `json:"delay"`
	Impact      Delta  `json:"impact"`
}

// NotificationLevel 通知级别
type NotificationLevel string

const (
	NotifyInfo    NotificationLevel = "info"
	NotifyWarning NotificationLevel = "warning"
	NotifySuccess NotificationLevel = "success"
)

// Notification 面向特定角色的提示
type Notification struct {
	Level   NotificationLevel `json:"type"`
	Message string            `json:"message"`
	Target  Role              `json:"target,omitempty"`
}

// ActionResult 行动结算结果
type ActionResult struct {
	Success     bool   `json:"success"`
	ActionName  string `json:"actionName"`
	Description string `json:"description"`
	// Fizzled 没有可作用的对象，不计分
	Fizzled       bool           `json:"fizzled,omitempty"`
	Impact        Delta          `json:"impactScores"`
	Changes       []StateChange  `json:"-"`
	ChainEffects  []ChainEffect  `json:"chainEffects,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
}

type stateChangeEnvelope struct {
	Kind   ChangeKind  `json:"kind"`
	Change StateChange `json:"change"`
}

// MarshalJSON 序列化时为每个状态变更附带类型标签
func (r ActionResult) MarshalJSON() ([]byte, error) {
	type plain ActionResult
	changes := make([]stateChangeEnvelope, 0, len(r.Changes))
	for _, c := range r.Changes {
		changes = append(changes, stateChangeEnvelope{Kind: c.Kind(), Change: c})
	}
	return json.Marshal(struct {
		plain
		StateChanges []stateChangeEnvelope `json:"stateChanges"`
	}{plain: plain(r), StateChanges: changes})
}
