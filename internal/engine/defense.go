// defense.go

package engine

import (
	"fmt"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

const (
	firewallBonus = 20

	monitorChance         = 0.7
	monitorEnhancedChance = 0.9
	monitorMaxVulns       = 3
	monitorMaxSystems     = 2

	guerrillaNodes   = 3
	guerrillaMinimum = 10
	guerrillaSpread  = 20

	// protectedSystem 杀毒无法直接清理的系统
	protectedSystem = "critical_system"
)

// batch 普通行动处理一个对象，强化后处理三个
func batch(p models.ActionParams) int {
	if p.Enhanced {
		return 3
	}
	return 1
}

func resolvePatch(in turnInput) models.ActionResult {
	var fixed []string
	for _, v := range in.net.Vulnerabilities {
		if len(fixed) == batch(in.params) {
			break
		}
		if v.Patched || (in.params.VulnType != "" && v.Type != in.params.VulnType) {
			continue
		}
		fixed = append(fixed, v.ID)
	}

	label := "系统"
	var changes []models.StateChange
	for _, id := range fixed {
		changes = append(changes, models.VulnerabilityFlag{VulnerabilityID: id, Patched: boolPtr(true)})
	}
	if in.target != "" {
		if node := in.net.Node(in.target); node != nil {
			label = nodeName(node)
			changes = append(changes, models.NodePatch{NodeID: node.ID, Status: statusPtr(models.NodePatched)})
		}
	}

	r := succeed(models.DefensePatch, "系统补丁更新", fmt.Sprintf("为%s打补丁，修复%d个漏洞", label, len(fixed)))
	r.Changes = changes
	return r
}

func resolveFirewall(in turnInput) models.ActionResult {
	defense, label := "firewall_network", "网络"
	var changes []models.StateChange
	if node := in.net.Target(in.target); node != nil {
		defense, label = "firewall_"+node.ID, nodeName(node)
		changes = append(changes, models.NodePatch{NodeID: node.ID, Defense: intPtr(node.Defense + firewallBonus)})
	}
	changes = append(changes, models.DefenseAdd{Defenses: []string{defense}})

	r := succeed(models.DefenseFirewall, "防火墙配置", fmt.Sprintf("为%s配置防火墙规则", label))
	r.Changes = changes
	return r
}

func resolveMonitor(in turnInput) models.ActionResult {
	chance := monitorChance
	if in.params.Enhanced {
		chance = monitorEnhancedChance
	}

	var changes []models.StateChange
	revealed := 0
	for _, v := range in.net.Vulnerabilities {
		if revealed == monitorMaxVulns {
			break
		}
		if v.Discovered || in.roll.Float64() >= chance {
			continue
		}
		changes = append(changes, models.VulnerabilityFlag{VulnerabilityID: v.ID, Discovered: boolPtr(true)})
		revealed++
	}

	var detected []string
	for _, id := range in.net.Compromised {
		if len(detected) == monitorMaxSystems {
			break
		}
		if in.roll.Float64() < chance {
			detected = append(detected, id)
		}
	}
	changes = append(changes, models.DefenseAdd{Defenses: []string{"monitoring_active"}})

	r := succeed(models.DefenseMonitor, "安全监控",
		fmt.Sprintf("部署监控系统，发现%d个隐藏漏洞，检测到%d个被入侵系统", revealed, len(detected)))
	if len(detected) > 0 {
		r.Impact.Incident = 15
		r.Notifications = []models.Notification{{
			Level:   models.NotifyWarning,
			Message: fmt.Sprintf("检测到%d个系统被入侵", len(detected)),
			Target:  models.RoleDefender,
		}}
	}
	r.Changes = changes
	return r
}

func resolveVaccine(in turnInput) models.ActionResult {
	var cleaned []string
	for _, id := range in.net.Compromised {
		if len(cleaned) == batch(in.params) {
			break
		}
		if id != protectedSystem {
			cleaned = append(cleaned, id)
		}
	}

	var changes []models.StateChange
	if len(cleaned) > 0 {
		changes = append(changes, models.CompromiseRemove{SystemIDs: cleaned})
		for _, id := range cleaned {
			if node := in.net.Node(id); node != nil && node.Status == models.NodeCompromised {
				changes = append(changes, models.NodePatch{NodeID: id, Status: statusPtr(models.NodeRunning)})
			}
		}
	}
	changes = append(changes, models.DefenseAdd{Defenses: []string{"antivirus_active"}})

	r := succeed(models.DefenseVaccine, "病毒清除", fmt.Sprintf("部署杀毒软件，清除%d个系统的恶意软件", len(cleaned)))
	r.Changes = changes
	return r
}

func resolveAmbush(in turnInput) models.ActionResult {
	r := succeed(models.DefenseAmbush, "设置陷阱", "在关键系统部署蜜罐与陷阱")
	r.Changes = []models.StateChange{
		models.DefenseAdd{Defenses: []string{"honeypot_active", "trap_set"}},
	}
	r.ChainEffects = []models.ChainEffect{{
		Type:        "ambush_trigger",
		Description: "陷阱被触发，暴露攻击行为",
		Delay:       1,
		Impact:      models.Delta{Incident: 20},
	}}
	return r
}

func resolveDecoy(in turnInput) models.ActionResult {
	r := succeed(models.DefenseDecoy, "部署诱饵", "创建虚假目标误导攻击者")
	r.Changes = []models.StateChange{
		models.DefenseAdd{Defenses: []string{"decoy_system_1", "decoy_system_2"}},
		models.NodeAdd{Node: models.Node{
			ID:        "decoy_1",
			Name:      "诱饵服务器",
			Type:      "application",
			Status:    models.NodeRunning,
			Health:    100,
			MaxHealth: 100,
		}},
	}
	return r
}

func resolveGuerrilla(in turnInput) models.ActionResult {
	var changes []models.StateChange
	for _, n := range in.net.Infrastructure {
		if len(changes) == guerrillaNodes {
			break
		}
		if n.Status != models.NodeRunning {
			continue
		}
		changes = append(changes, models.NodePatch{
			NodeID:  n.ID,
			Defense: intPtr(guerrillaMinimum + in.roll.Intn(guerrillaSpread)),
		})
	}
	changes = append(changes, models.DefenseAdd{Defenses: []string{"dynamic_defense"}})

	r := succeed(models.DefenseGuerrilla, "游击战术", "动态调整防御部署，增加攻击难度")
	r.Changes = changes
	return r
}

func resolveTaichi(in turnInput) models.ActionResult {
	r := succeed(models.DefenseTaichi, "太极防御", "以柔克刚，将攻击流量牵引至隔离区")
	r.Changes = []models.StateChange{
		models.DefenseAdd{Defenses: []string{"taichi_redirect", "adaptive_defense"}},
	}
	r.ChainEffects = []models.ChainEffect{{
		Type:        "taichi_balance",
		Description: "持续化解系统压力",
		Delay:       2,
		Impact:      models.Delta{Risk: 5, Trust: 5},
	}}
	return r
}
