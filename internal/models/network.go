// network.go

package models

// NodeStatus 基础设施节点状态
type NodeStatus string

const (
	NodeRunning     NodeStatus = "running"
	NodeDegraded    NodeStatus = "degraded"
	NodeCompromised NodeStatus = "compromised"
	NodeOffline     NodeStatus = "offline"
	NodePatched     NodeStatus = "patched"
)

// Node 基础设施节点
type Node struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Type      string     `json:"type" yaml:"type"` // network, application, data, physical, personnel
	Status    NodeStatus `json:"status" yaml:"status"`
	Health    int        `json:"health" yaml:"health"`
	MaxHealth int        `json:"maxHealth" yaml:"max_health"`
	Defense   int        `json:"defense" yaml:"defense"`
}

// Severity 漏洞等级
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Vulnerability 漏洞
type Vulnerability struct {
	ID         string   `json:"id" yaml:"id"`
	Type       string   `json:"type" yaml:"type"`
	Severity   Severity `json:"severity" yaml:"severity"`
	Location   string   `json:"location" yaml:"location"`
	Discovered bool     `json:"discovered" yaml:"discovered"`
	Exploited  bool     `json:"exploited" yaml:"exploited"`
	Patched    bool     `json:"patched" yaml:"patched"`
}

// NetworkState 某一回合的模拟网络快照
type NetworkState struct {
	Round                  int             `json:"round"`
	Infrastructure         []Node          `json:"infrastructure"`
	Vulnerabilities        []Vulnerability `json:"vulnerabilities"`
	ActiveDefenses         []string        `json:"activeDefenses"`
	Compromised            []string        `json:"compromisedSystems"`
	CredentialsStolen      bool            `json:"credentialsStolen"`
	SupplyChainCompromised bool            `json:"supplyChainCompromised"`
}

// Clone 深拷贝快照
func (n *NetworkState) Clone() *NetworkState {
	c := *n
	c.Infrastructure = append([]Node(nil), n.Infrastructure...)
	c.Vulnerabilities = append([]Vulnerability(nil), n.Vulnerabilities...)
	c.ActiveDefenses = append([]string(nil), n.ActiveDefenses...)
	c.Compromised = append([]string(nil), n.Compromised...)
	return &c
}

// Node 按ID查找节点，未找到返回 nil
func (n *NetworkState) Node(id string) *Node {
	for i := range n.Infrastructure {
		if n.Infrastructure[i].ID == id {
			return &n.Infrastructure[i]
		}
	}
	return nil
}

// Target 查找目标节点，未指定目标时取第一个节点
func (n *NetworkState) Target(id string) *Node {
	if id == "" {
		if len(n.Infrastructure) == 0 {
			return nil
		}
		return &n.Infrastructure[0]
	}
	return n.Node(id)
}

// Vulnerability 按ID查找漏洞
func (n *NetworkState) Vulnerability(id string) *Vulnerability {
	for i := range n.Vulnerabilities {
		if n.Vulnerabilities[i].ID == id {
			return &n.Vulnerabilities[i]
		}
	}
	return nil
}

// CompromisedRatio 被攻陷系统占基础设施的比例
func (n *NetworkState) CompromisedRatio() float64 {
	total := len(n.Infrastructure)
	if total < 1 {
		total = 1
	}
	return float64(len(n.Compromised)) / float64(total)
}

// IsCompromised 系统是否已被攻陷
func (n *NetworkState) IsCompromised(id string) bool {
	return contains(n.Compromised, id)
}

// Apply 应用一组状态变更
func (n *NetworkState) Apply(changes []StateChange) {
	for _, c := range changes {
		c.applyTo(n)
	}
}

// ChangeKind 状态变更类型
type ChangeKind string

const (
	ChangeNodePatch         ChangeKind = "node_patch"
	ChangeNodeAdd           ChangeKind = "node_add"
	ChangeVulnerabilityFlag ChangeKind = "vulnerability_flag"
	ChangeCompromiseAdd     ChangeKind = "compromise_add"
	ChangeCompromiseRemove  ChangeKind = "compromise_remove"
	ChangeDefenseAdd        ChangeKind = "defense_add"
	ChangeFlagRaise         ChangeKind = "flag_raise"
)

// StateChange 对网络快照的一种具体变更
type StateChange interface {
	Kind() ChangeKind
	applyTo(n *NetworkState)
}

// NodePatch 修改节点状态、生命值或防御值，nil 字段保持不变
type NodePatch struct {
	NodeID  string      `json:"nodeId"`
	Status  *NodeStatus `json:"status,omitempty"`
	Health  *int        `json:"health,omitempty"`
	Defense *int        `json:"defense,omitempty"`
}

func (NodePatch) Kind() ChangeKind { return ChangeNodePatch }

func (p NodePatch) applyTo(n *NetworkState) {
	node := n.Node(p.NodeID)
	if node == nil {
		return
	}
	if p.Status != nil {
		node.Status = *p.Status
	}
	if p.Health != nil {
		node.Health = clampInt(*p.Health, 0, node.MaxHealth)
	}
	if p.Defense != nil {
		node.Defense = *p.Defense
	}
}

// NodeAdd 新增节点（已存在则忽略）
type NodeAdd struct {
	Node Node `json:"node"`
}

func (NodeAdd) Kind() ChangeKind { return ChangeNodeAdd }

func (a NodeAdd) applyTo(n *NetworkState) {
	if n.Node(a.Node.ID) != nil {
		return
	}
	n.Infrastructure = append(n.Infrastructure, a.Node)
}

// VulnerabilityFlag 更新漏洞标记，nil 字段保持不变
type VulnerabilityFlag struct {
	VulnerabilityID string `json:"vulnerabilityId"`
	Discovered      *bool  `json:"discovered,omitempty"`
	Exploited       *bool  `json:"exploited,omitempty"`
	Patched         *bool  `json:"patched,omitempty"`
}

func (VulnerabilityFlag) Kind() ChangeKind { return ChangeVulnerabilityFlag }

func (f VulnerabilityFlag) applyTo(n *NetworkState) {
	v := n.Vulnerability(f.VulnerabilityID)
	if v == nil {
		return
	}
	if f.Discovered != nil {
		v.Discovered = *f.Discovered
	}
	if f.Exploited != nil {
		v.Exploited = *f.Exploited
	}
	if f.Patched != nil {
		v.Patched = *f.Patched
	}
}

// CompromiseAdd 标记系统被攻陷
type CompromiseAdd struct {
	SystemIDs []string `json:"systemIds"`
}

func (CompromiseAdd) Kind() ChangeKind { return ChangeCompromiseAdd }

func (c CompromiseAdd) applyTo(n *NetworkState) {
	for _, id := range c.SystemIDs {
		if !contains(n.Compromised, id) {
			n.Compromised = append(n.Compromised, id)
		}
	}
}

// CompromiseRemove 清除被攻陷标记
type CompromiseRemove struct {
	SystemIDs []string `json:"systemIds"`
}

func (CompromiseRemove) Kind() ChangeKind { return ChangeCompromiseRemove }

func (c CompromiseRemove) applyTo(n *NetworkState) {
	kept := n.Compromised[:0]
	for _, id := range n.Compromised {
		if !contains(c.SystemIDs, id) {
			kept = append(kept, id)
		}
	}
	n.Compromised = kept
}

// DefenseAdd 启用防御措施
type DefenseAdd struct {
	Defenses []string `json:"defenses"`
}

func (DefenseAdd) Kind() ChangeKind { return ChangeDefenseAdd }

func (d DefenseAdd) applyTo(n *NetworkState) {
	for _, name := range d.Defenses {
		if !contains(n.ActiveDefenses, name) {
			n.ActiveDefenses = append(n.ActiveDefenses, name)
		}
	}
}

// NetworkFlag 全局网络标记
type NetworkFlag string

const (
	FlagCredentialsStolen      NetworkFlag = "credentials_stolen"
	FlagSupplyChainCompromised NetworkFlag = "supply_chain_compromised"
)

// FlagRaise 置位全局标记
type FlagRaise struct {
	Flag NetworkFlag `json:"flag"`
}

func (FlagRaise) Kind() ChangeKind { return ChangeFlagRaise }

func (f FlagRaise) applyTo(n *NetworkState) {
	switch f.Flag {
	case FlagCredentialsStolen:
		n.CredentialsStolen = true
	case FlagSupplyChainCompromised:
		n.SupplyChainCompromised = true
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
