// attack.go

package engine

import (
	"fmt"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// severityImpact 漏洞等级对应的风险/事件分影响
var severityImpact = map[models.Severity]float64{
	models.SeverityLow:      10,
	models.SeverityMedium:   20,
	models.SeverityHigh:     30,
	models.SeverityCritical: 40,
}

const (
	phishChance         = 0.6
	phishEnhancedChance = 0.8

	destroyDamage         = 30
	destroyEnhancedDamage = 50

	prankDamage = 10
)

func resolvePrank(in turnInput) models.ActionResult {
	const name = "恶作剧攻击"
	node := in.net.Target(in.target)
	if node == nil {
		return fizzle(name, "目标系统不存在")
	}

	r := succeed(models.AttackPrank, name, fmt.Sprintf("对%s进行恶作剧攻击，造成轻微干扰", nodeName(node)))
	r.Changes = []models.StateChange{
		models.NodePatch{
			NodeID: node.ID,
			Status: statusPtr(models.NodeDegraded),
			Health: intPtr(node.Health - prankDamage),
		},
	}
	return r
}

func resolveExploit(in turnInput) models.ActionResult {
	const name = "漏洞利用"
	vuln := pickExploitable(in.net, in.params.VulnerabilityID)
	if vuln == nil {
		return fizzle(name, "未找到可利用的漏洞")
	}

	sev, ok := severityImpact[vuln.Severity]
	if !ok {
		sev = severityImpact[models.SeverityMedium]
	}

	r := succeed(models.AttackExploit, name, fmt.Sprintf("成功利用%s级漏洞：%s", vuln.Severity, vuln.Type))
	r.Impact = models.Delta{Risk: -sev, Incident: sev}
	r.Changes = []models.StateChange{
		models.VulnerabilityFlag{VulnerabilityID: vuln.ID, Exploited: boolPtr(true)},
		models.CompromiseAdd{SystemIDs: []string{vuln.Location}},
	}
	return r
}

// pickExploitable 查找已发现且未被利用、未修复的漏洞
func pickExploitable(net *models.NetworkState, id string) *models.Vulnerability {
	usable := func(v *models.Vulnerability) bool {
		return v.Discovered && !v.Exploited && !v.Patched
	}
	if id != "" {
		if v := net.Vulnerability(id); v != nil && usable(v) {
			return v
		}
		return nil
	}
	for i := range net.Vulnerabilities {
		if usable(&net.Vulnerabilities[i]) {
			return &net.Vulnerabilities[i]
		}
	}
	return nil
}

func resolveTheft(in turnInput) models.ActionResult {
	const name = "数据窃取"
	dataType := in.params.DataType
	if dataType == "" {
		dataType = "user_data"
	}

	systemID, label := "database", "数据库"
	if in.target != "" || len(in.net.Infrastructure) > 0 {
		node := in.net.Target(in.target)
		if node == nil {
			return fizzle(name, "目标系统不存在")
		}
		systemID, label = node.ID, nodeName(node)
	}

	r := succeed(models.AttackTheft, name, fmt.Sprintf("从%s窃取%s", label, dataType))
	r.Changes = []models.StateChange{models.CompromiseAdd{SystemIDs: []string{systemID}}}
	r.ChainEffects = []models.ChainEffect{{
		Type:        "data_leak",
		Description: "数据泄露持续发酵",
		Delay:       2,
		Impact:      models.Delta{Trust: -5},
	}}
	return r
}

func resolveDestroy(in turnInput) models.ActionResult {
	const name = "破坏攻击"
	node := in.net.Target(in.target)
	if node == nil {
		return fizzle(name, "目标系统不存在")
	}

	damage := destroyDamage
	if in.params.Enhanced {
		damage = destroyEnhancedDamage
	}

	r := succeed(models.AttackDestroy, name, fmt.Sprintf("对%s进行破坏性攻击", nodeName(node)))
	r.Impact.Loss = -float64(damage)
	r.Changes = []models.StateChange{
		models.NodePatch{
			NodeID: node.ID,
			Status: statusPtr(models.NodeCompromised),
			Health: intPtr(node.Health - damage),
		},
	}
	r.Notifications = []models.Notification{{
		Level:   models.NotifyWarning,
		Message: fmt.Sprintf("%s遭到破坏", nodeName(node)),
		Target:  models.RoleDefender,
	}}
	return r
}

func resolveRansom(in turnInput) models.ActionResult {
	const name = "勒索攻击"
	node := in.net.Target(in.target)
	if node == nil {
		return fizzle(name, "目标系统不存在")
	}

	r := succeed(models.AttackRansom, name, fmt.Sprintf("对%s部署勒索软件", nodeName(node)))
	r.Changes = []models.StateChange{
		models.NodePatch{NodeID: node.ID, Status: statusPtr(models.NodeOffline)},
	}
	r.ChainEffects = []models.ChainEffect{{
		Type:        "ransom_spread",
		Description: "勒索软件横向传播",
		Delay:       1,
		Impact:      models.Delta{Loss: -10},
	}}
	r.Notifications = []models.Notification{{
		Level:   models.NotifyWarning,
		Message: fmt.Sprintf("%s已被加密下线", nodeName(node)),
		Target:  models.RoleDefender,
	}}
	return r
}

func resolvePhish(in turnInput) models.ActionResult {
	const name = "钓鱼邮件"
	chance := phishChance
	if in.params.Enhanced {
		chance = phishEnhancedChance
	}

	if in.roll.Float64() >= chance {
		return fail(models.AttackPhish, name, "钓鱼邮件被识别并拦截")
	}

	r := succeed(models.AttackPhish, name, "钓鱼邮件得手，获取了员工凭证")
	r.Changes = []models.StateChange{models.FlagRaise{Flag: models.FlagCredentialsStolen}}
	return r
}

func resolveChaos(in turnInput) models.ActionResult {
	r := succeed(models.AttackChaos, "供应链攻击", "通过受污染的供应商更新发起大范围攻击")
	r.Changes = []models.StateChange{
		models.FlagRaise{Flag: models.FlagSupplyChainCompromised},
		models.CompromiseAdd{SystemIDs: []string{"vendor_system", "update_server"}},
	}
	r.ChainEffects = []models.ChainEffect{{
		Type:        "supply_chain_cascade",
		Description: "供应链攻击级联扩散",
		Delay:       3,
		Impact:      models.Delta{Trust: -10, Risk: -10},
	}}
	return r
}
