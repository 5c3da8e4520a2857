// engine.go

package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

// trendActions 趋势预测参考的最近行动数
const trendActions = 10

// Engine 回合引擎，对局状态的唯一修改者
type Engine struct {
	scenarios scenario.Source
	scoring   *scoring.Service
	roll      Roller
	now       func() time.Time
	log       *zap.Logger

	matches      map[string]*match
	matchesMutex sync.RWMutex
}

// match 单场对局的全部可变状态，由 mu 串行化
type match struct {
	mu sync.Mutex

	session   *models.MatchSession
	scenario  *scenario.Scenario
	network   *models.NetworkState
	snapshots []*models.NetworkState
	chain     chainQueue
	moves     []models.Move
}

// Option 引擎选项
type Option func(*Engine)

// WithRoller 指定随机数来源
func WithRoller(r Roller) Option {
	return func(e *Engine) { e.roll = r }
}

// WithClock 指定时间来源
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger 指定日志器
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine 创建回合引擎
func NewEngine(src scenario.Source, sc *scoring.Service, opts ...Option) *Engine {
	e := &Engine{
		scenarios: src,
		scoring:   sc,
		now:       time.Now,
		log:       zap.NewNop(),
		matches:   make(map[string]*match),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.roll == nil {
		e.roll = newTimeSeededRoller()
	}
	if e.scoring == nil {
		e.scoring = scoring.NewService(e.log)
	}
	return e
}

// TurnOutcome 一次行动结算后的结果与状态
type TurnOutcome struct {
	Result        models.ActionResult  `json:"result"`
	Applied       models.Delta         `json:"appliedImpact"`
	ChainFired    []models.ChainEffect `json:"chainFired,omitempty"`
	Move          models.Move          `json:"move"`
	Session       *models.MatchSession `json:"session"`
	Network       *models.NetworkState `json:"network"`
	TurnChanged   bool                 `json:"turnChanged"`
	RoundAdvanced bool                 `json:"roundAdvanced"`
	End           *models.GameEnd      `json:"gameEnd,omitempty"`
}

// CreateSession 按场景创建新对局，状态为 preparing
func (e *Engine) CreateSession(scenarioID int, attackerID, defenderID string, mode models.GameMode) (*models.MatchSession, error) {
	sc, err := e.scenarios.Get(scenarioID)
	if err != nil {
		return nil, fmt.Errorf("加载场景失败: %w", err)
	}
	if mode == "" {
		mode = models.ModePVP
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidState, mode)
	}

	s := &models.MatchSession{
		ID:                uuid.New().String(),
		ScenarioID:        sc.ID,
		Mode:              mode,
		Phase:             models.PhaseSetup,
		CurrentRound:      1,
		MaxRounds:         sc.MaxRounds,
		CurrentTurn:       models.RoleAttacker,
		AttackerID:        attackerID,
		DefenderID:        defenderID,
		AttackerResources: sc.Resources(models.RoleAttacker),
		DefenderResources: sc.Resources(models.RoleDefender),
		Scores:            sc.InitialScores(),
		Status:            models.SessionPreparing,
		StartedAt:         e.now(),
	}

	m := &match{session: s, scenario: sc, network: sc.Network()}

	e.matchesMutex.Lock()
	e.matches[s.ID] = m
	e.matchesMutex.Unlock()

	e.scoring.Record(s.ID, s.Scores)
	e.log.Info("创建对局", zap.String("sessionId", s.ID), zap.Int("scenarioId", sc.ID), zap.String("mode", string(mode)))
	return s.Clone(), nil
}

func (e *Engine) get(sessionID string) (*match, error) {
	e.matchesMutex.RLock()
	defer e.matchesMutex.RUnlock()

	m, ok := e.matches[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return m, nil
}

// AssignPlayer 绑定参战玩家
func (e *Engine) AssignPlayer(sessionID string, role models.Role, userID string) error {
	m, err := e.get(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch role {
	case models.RoleAttacker:
		m.session.AttackerID = userID
	case models.RoleDefender:
		m.session.DefenderID = userID
	default:
		return fmt.Errorf("%w: role %q cannot play", ErrInvalidState, role)
	}
	return nil
}

// Start 开始对局，也用于从暂停中恢复
func (e *Engine) Start(sessionID string) (*models.MatchSession, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	switch s.Status {
	case models.SessionPreparing:
		s.Phase = models.PhaseCombat
		s.StartedAt = e.now()
	case models.SessionPaused:
	case models.SessionActive:
		return s.Clone(), nil
	default:
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidState, s.Status)
	}
	s.Status = models.SessionActive
	return s.Clone(), nil
}

// Pause 暂停进行中的对局
func (e *Engine) Pause(sessionID string) (*models.MatchSession, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status != models.SessionActive {
		return nil, fmt.Errorf("%w: cannot pause from %s", ErrInvalidState, m.session.Status)
	}
	m.session.Status = models.SessionPaused
	return m.session.Clone(), nil
}

// Forfeit 判负结束对局，已结束的对局返回原结果
func (e *Engine) Forfeit(sessionID string, winner models.Role, reason string) (*models.GameEnd, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.Status == models.SessionCompleted {
		return &models.GameEnd{Winner: s.Winner, Reason: s.EndReason, FinalScores: s.Scores}, nil
	}
	end := &models.GameEnd{Winner: winner, Reason: reason, FinalScores: s.Scores}
	e.complete(m, end)
	return end, nil
}

// ProcessTurn 校验并结算一次行动
func (e *Engine) ProcessTurn(sessionID string, req models.ActionRequest) (*TurnOutcome, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if err := validate(s, req); err != nil {
		return nil, err
	}

	res := s.ResourcesFor(req.Role)
	cost := Cost(req.Type, req.Params)
	if res.ActionPoints < cost {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientResources, cost, res.ActionPoints)
	}

	result, err := resolve(req.Type, turnInput{
		session: s,
		net:     m.network,
		role:    req.Role,
		target:  req.Target,
		params:  req.Params,
		roll:    e.roll,
	})
	if err != nil {
		e.log.Error("行动结算器缺失", zap.String("sessionId", s.ID), zap.String("actionType", string(req.Type)), zap.Error(err))
		return nil, err
	}

	out := &TurnOutcome{Result: result}
	out.ChainFired = e.fireChainEffects(m)

	res.ActionPoints -= cost
	if tool, ok := res.ToolFor(req.Type); ok && tool.Cooldown > 0 {
		res.Cooldowns[req.Type] = tool.Cooldown
	}

	if !result.Fizzled {
		delta := result.Impact
		if result.Success {
			delta = delta.Add(scoring.ContextualAdjustment(req.Role, m.network))
		}
		out.Applied = scoring.ApplyDynamicFactors(delta, s.Scores, s.CurrentRound)
		s.Scores = scoring.UpdateScores(s.Scores, out.Applied)
		e.scoring.Record(s.ID, s.Scores)
	}

	m.network.Apply(result.Changes)
	for _, ce := range result.ChainEffects {
		m.chain.schedule(s.CurrentRound+ce.Delay, req.Role, ce)
	}

	out.Move = e.recordMove(m, req, result, cost, out.Applied)

	roundLimit := e.switchTurn(m, out)
	if end := checkWin(s, m.scenario, roundLimit); end != nil {
		e.complete(m, end)
		out.End = end
	}

	out.Session = s.Clone()
	out.Network = m.network.Clone()
	return out, nil
}

// validate 合法性检查：会话进行中、轮到该角色、原型属于该角色且工具未冷却
func validate(s *models.MatchSession, req models.ActionRequest) error {
	if s.Status != models.SessionActive {
		return fmt.Errorf("%w: session is %s", ErrInvalidTurn, s.Status)
	}
	if req.Role != s.CurrentTurn {
		return fmt.Errorf("%w: it is %s's turn", ErrInvalidTurn, s.CurrentTurn)
	}
	if req.Type.Family() != req.Role {
		return fmt.Errorf("%w: %q is not a %s action", ErrInvalidTurn, req.Type, req.Role)
	}
	res := s.ResourcesFor(req.Role)
	if _, owned := res.ToolFor(req.Type); owned && res.CoolingDown(req.Type) {
		return fmt.Errorf("%w: %s is cooling down for %d rounds", ErrInvalidTurn, req.Type, res.Cooldowns[req.Type])
	}
	return nil
}

// fireChainEffects 触发本回合到期的连锁效果，影响按当前回合的动态系数缩放
func (e *Engine) fireChainEffects(m *match) []models.ChainEffect {
	s := m.session
	due := m.chain.due(s.CurrentRound)
	if len(due) == 0 {
		return nil
	}

	fired := make([]models.ChainEffect, 0, len(due))
	for _, item := range due {
		applied := scoring.ApplyDynamicFactors(item.effect.Impact, s.Scores, s.CurrentRound)
		s.Scores = scoring.UpdateScores(s.Scores, applied)
		fired = append(fired, item.effect)
		e.log.Debug("连锁效果触发",
			zap.String("sessionId", s.ID),
			zap.String("effect", item.effect.Type),
			zap.String("source", string(item.source)),
			zap.Int("round", s.CurrentRound))
	}
	e.scoring.Record(s.ID, s.Scores)
	return fired
}

// recordMove 追加行动记录
func (e *Engine) recordMove(m *match, req models.ActionRequest, result models.ActionResult, cost int, applied models.Delta) models.Move {
	mv := models.Move{
		ID:          uuid.New().String(),
		SessionID:   m.session.ID,
		Sequence:    len(m.moves) + 1,
		Round:       m.session.CurrentRound,
		Role:        req.Role,
		ActionType:  req.Type,
		ActionName:  result.ActionName,
		Target:      req.Target,
		Params:      req.Params,
		Cost:        cost,
		Success:     result.Success,
		Description: result.Description,
		Impact:      applied,
		ExecutedAt:  e.now(),
	}
	m.moves = append(m.moves, mv)
	return mv
}

// switchTurn 交换行动方，防守方行动后进入下一回合；返回是否已打满回合
func (e *Engine) switchTurn(m *match, out *TurnOutcome) bool {
	s := m.session
	out.TurnChanged = true

	if s.CurrentTurn == models.RoleAttacker {
		s.CurrentTurn = models.RoleDefender
		return false
	}

	if s.CurrentRound >= s.MaxRounds {
		return true
	}

	m.snapshots = append(m.snapshots, m.network.Clone())
	s.CurrentRound++
	s.CurrentTurn = models.RoleAttacker
	m.network.Round = s.CurrentRound
	out.RoundAdvanced = true

	for _, role := range []models.Role{models.RoleAttacker, models.RoleDefender} {
		res := s.ResourcesFor(role)
		res.ActionPoints += m.scenario.Recovery
		if res.ActionPoints > res.MaxActionPoints {
			res.ActionPoints = res.MaxActionPoints
		}
		for t, left := range res.Cooldowns {
			if left <= 1 {
				delete(res.Cooldowns, t)
			} else {
				res.Cooldowns[t] = left - 1
			}
		}
	}
	return false
}

// complete 结束对局
func (e *Engine) complete(m *match, end *models.GameEnd) {
	s := m.session
	s.Status = models.SessionCompleted
	s.Phase = models.PhaseResolution
	s.Winner = end.Winner
	s.EndReason = end.Reason
	s.EndedAt = e.now()

	e.log.Info("对局结束",
		zap.String("sessionId", s.ID),
		zap.String("winner", string(end.Winner)),
		zap.String("reason", end.Reason),
		zap.Int("round", s.CurrentRound))
}

// Session 返回会话快照
func (e *Engine) Session(sessionID string) (*models.MatchSession, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone(), nil
}

// Network 返回当前网络快照
func (e *Engine) Network(sessionID string) (*models.NetworkState, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.network.Clone(), nil
}

// Snapshots 返回已被取代的历史回合快照
func (e *Engine) Snapshots(sessionID string) ([]*models.NetworkState, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.NetworkState, len(m.snapshots))
	for i, snap := range m.snapshots {
		out[i] = snap.Clone()
	}
	return out, nil
}

// Moves 返回按结算顺序排列的行动记录
func (e *Engine) Moves(sessionID string) ([]models.Move, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Move(nil), m.moves...), nil
}

// PendingEffects 尚未触发的连锁效果数量
func (e *Engine) PendingEffects(sessionID string) (int, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chain.pending(), nil
}

// Trend 预测对局分数走势
func (e *Engine) Trend(sessionID string) (scoring.Trend, error) {
	m, err := e.get(sessionID)
	if err != nil {
		return scoring.Trend{}, err
	}
	m.mu.Lock()
	scores := m.session.Scores
	start := len(m.moves) - trendActions
	if start < 0 {
		start = 0
	}
	recent := make([]models.ActionType, 0, len(m.moves)-start)
	for _, mv := range m.moves[start:] {
		recent = append(recent, mv.ActionType)
	}
	m.mu.Unlock()

	return e.scoring.Trend(sessionID, scores, recent), nil
}

// Statistics 对局分数统计
func (e *Engine) Statistics(sessionID string) (scoring.Statistics, error) {
	if _, err := e.get(sessionID); err != nil {
		return scoring.Statistics{}, err
	}
	st, _ := e.scoring.Statistics(sessionID)
	return st, nil
}

// Release 移除对局并清除分数历史，返回完整记录
func (e *Engine) Release(sessionID string) (*models.MatchRecord, error) {
	e.matchesMutex.Lock()
	m, ok := e.matches[sessionID]
	delete(e.matches, sessionID)
	e.matchesMutex.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	e.scoring.Clear(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.MatchRecord{
		Session:      *m.session.Clone(),
		Moves:        append([]models.Move(nil), m.moves...),
		FinalNetwork: m.network.Clone(),
	}, nil
}

// IsClientError 是否为调用方可恢复的错误
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTurn) ||
		errors.Is(err, ErrInsufficientResources) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrInvalidState)
}
