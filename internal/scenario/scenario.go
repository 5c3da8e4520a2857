// scenario.go

package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

//go:embed default.yaml
var defaultCatalog []byte

// 默认对局参数
const (
	DefaultMaxRounds     = 30
	DefaultActionPoints  = 10
	DefaultRecovery      = 5
	DefaultWinThreshold  = 80.0
	DefaultLoseThreshold = 20.0
)

var (
	// ErrScenarioNotFound 场景不存在
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrInvalidScenario 场景配置不合法
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Source 场景配置来源
type Source interface {
	Get(id int) (*Scenario, error)
}

// Scenario 一个攻防场景的初始配置
type Scenario struct {
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	MaxRounds     int     `yaml:"max_rounds" json:"maxRounds"`
	ActionPoints  int     `yaml:"action_points" json:"actionPoints"`
	Recovery      int     `yaml:"recovery" json:"recovery"`
	WinThreshold  float64 `yaml:"win_threshold" json:"winThreshold"`
	LoseThreshold float64 `yaml:"lose_threshold" json:"loseThreshold"`

	Baseline *models.Scores `yaml:"baseline" json:"baseline"`

	AttackerTools   []models.Tool          `yaml:"attacker_tools" json:"attackerTools"`
	DefenderTools   []models.Tool          `yaml:"defender_tools" json:"defenderTools"`
	Infrastructure  []models.Node          `yaml:"infrastructure" json:"infrastructure"`
	Vulnerabilities []models.Vulnerability `yaml:"vulnerabilities" json:"vulnerabilities"`
}

type catalogFile struct {
	Scenarios []*Scenario `yaml:"scenarios"`
}

// Network 生成第一回合的网络快照
func (s *Scenario) Network() *models.NetworkState {
	return (&models.NetworkState{
		Round:           1,
		Infrastructure:  s.Infrastructure,
		Vulnerabilities: s.Vulnerabilities,
	}).Clone()
}

// Resources 生成某一方的初始资源池
func (s *Scenario) Resources(role models.Role) models.Resources {
	var tools []models.Tool
	switch role {
	case models.RoleAttacker:
		tools = s.AttackerTools
	case models.RoleDefender:
		tools = s.DefenderTools
	}
	return models.Resources{
		ActionPoints:    s.ActionPoints,
		MaxActionPoints: s.ActionPoints,
		Tools:           append([]models.Tool(nil), tools...),
		Cooldowns:       make(map[models.ActionType]int),
	}
}

// InitialScores 初始分数
func (s *Scenario) InitialScores() models.Scores {
	return *s.Baseline
}

func (s *Scenario) applyDefaults() {
	if s.MaxRounds <= 0 {
		s.MaxRounds = DefaultMaxRounds
	}
	if s.ActionPoints <= 0 {
		s.ActionPoints = DefaultActionPoints
	}
	if s.Recovery <= 0 {
		s.Recovery = DefaultRecovery
	}
	if s.WinThreshold <= 0 {
		s.WinThreshold = DefaultWinThreshold
	}
	if s.LoseThreshold <= 0 {
		s.LoseThreshold = DefaultLoseThreshold
	}
	if s.Baseline == nil {
		s.Baseline = &models.Scores{Trust: 50, Risk: 50, Incident: 0, Loss: 50}
	}
	normalized := scoring.Normalize(*s.Baseline)
	s.Baseline = &normalized
	for i := range s.Infrastructure {
		n := &s.Infrastructure[i]
		if n.MaxHealth <= 0 {
			n.MaxHealth = 100
		}
		if n.Health <= 0 {
			n.Health = n.MaxHealth
		}
		if n.Status == "" {
			n.Status = models.NodeRunning
		}
	}
}

func (s *Scenario) validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidScenario)
	}
	if s.LoseThreshold >= s.WinThreshold {
		return fmt.Errorf("%w: scenario %d lose threshold must be below win threshold", ErrInvalidScenario, s.ID)
	}
	for _, t := range s.AttackerTools {
		if !t.Archetype.IsAttack() {
			return fmt.Errorf("%w: scenario %d attacker tool %q has archetype %q", ErrInvalidScenario, s.ID, t.ID, t.Archetype)
		}
	}
	for _, t := range s.DefenderTools {
		if !t.Archetype.IsDefense() {
			return fmt.Errorf("%w: scenario %d defender tool %q has archetype %q", ErrInvalidScenario, s.ID, t.ID, t.Archetype)
		}
	}
	seen := make(map[string]bool, len(s.Infrastructure))
	for _, n := range s.Infrastructure {
		if n.ID == "" || seen[n.ID] {
			return fmt.Errorf("%w: scenario %d has an empty or duplicate node id %q", ErrInvalidScenario, s.ID, n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// Catalog 按ID索引的场景集合
type Catalog struct {
	scenarios map[int]*Scenario
	defaultID int
}

// Parse 解析 YAML 场景目录，第一个场景作为默认场景
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析场景配置失败: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios defined", ErrInvalidScenario)
	}

	c := &Catalog{scenarios: make(map[int]*Scenario, len(file.Scenarios))}
	for i, s := range file.Scenarios {
		s.applyDefaults()
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.scenarios[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario id %d", ErrInvalidScenario, s.ID)
		}
		c.scenarios[s.ID] = s
		if i == 0 {
			c.defaultID = s.ID
		}
	}
	return c, nil
}

// LoadFile 从文件加载场景目录
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取场景文件失败: %w", err)
	}
	return Parse(data)
}

// Default 返回内置场景目录
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("内置场景配置错误: %v", err))
	}
	return c
}

// Get 按ID查找场景，id 为 0 时返回默认场景
func (c *Catalog) Get(id int) (*Scenario, error) {
	if id == 0 {
		id = c.defaultID
	}
	s, ok := c.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrScenarioNotFound, id)
	}
	return s, nil
}

// List 按ID顺序列出所有场景
func (c *Catalog) List() []*Scenario {
	list := make([]*Scenario, 0, len(c.scenarios))
	for _, s := range c.scenarios {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
