// resolve.go

package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

// Roller 随机数来源，测试中可替换为确定序列
type Roller interface {
	// Float64 返回 [0, 1) 内的随机数
	Float64() float64
	// Intn 返回 [0, n) 内的随机整数
	Intn(n int) int
}

// lockedRand 并发安全的 math/rand 包装
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRoller 创建以 seed 为种子的随机数来源
func NewRoller(seed int64) Roller {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func newTimeSeededRoller() Roller {
	return NewRoller(time.Now().UnixNano())
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// turnInput 结算器的只读输入
type turnInput struct {
	session *models.MatchSession
	net     *models.NetworkState
	role    models.Role
	target  string
	params  models.ActionParams
	roll    Roller
}

// resolve 按原型分派到对应结算器
func resolve(t models.ActionType, in turnInput) (models.ActionResult, error) {
	switch t {
	case models.AttackPrank:
		return resolvePrank(in), nil
	case models.AttackExploit:
		return resolveExploit(in), nil
	case models.AttackTheft:
		return resolveTheft(in), nil
	case models.AttackDestroy:
		return resolveDestroy(in), nil
	case models.AttackRansom:
		return resolveRansom(in), nil
	case models.AttackPhish:
		return resolvePhish(in), nil
	case models.AttackChaos:
		return resolveChaos(in), nil
	case models.DefensePatch:
		return resolvePatch(in), nil
	case models.DefenseFirewall:
		return resolveFirewall(in), nil
	case models.DefenseMonitor:
		return resolveMonitor(in), nil
	case models.DefenseVaccine:
		return resolveVaccine(in), nil
	case models.DefenseAmbush:
		return resolveAmbush(in), nil
	case models.DefenseDecoy:
		return resolveDecoy(in), nil
	case models.DefenseGuerrilla:
		return resolveGuerrilla(in), nil
	case models.DefenseTaichi:
		return resolveTaichi(in), nil
	default:
		return models.ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
}

// succeed 以基础影响构造成功结果
func succeed(t models.ActionType, name, desc string) models.ActionResult {
	return models.ActionResult{
		Success:     true,
		ActionName:  name,
		Description: desc,
		Impact:      scoring.ImpactOf(t, true),
	}
}

// fail 行动执行但失败，计入少量事件分
func fail(t models.ActionType, name, desc string) models.ActionResult {
	return models.ActionResult{
		ActionName:  name,
		Description: desc,
		Impact:      scoring.ImpactOf(t, false),
	}
}

// fizzle 没有可作用的对象，不计分也不改变状态
func fizzle(name, desc string) models.ActionResult {
	return models.ActionResult{
		ActionName:  name,
		Description: desc,
		Fizzled:     true,
	}
}

func statusPtr(s models.NodeStatus) *models.NodeStatus { return &s }

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func nodeName(n *models.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}
