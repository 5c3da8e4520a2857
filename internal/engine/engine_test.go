package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

// mockRoller 可编排的随机数来源
type mockRoller struct {
	mock.Mock
}

func (m *mockRoller) Float64() float64 {
	return m.Called().Get(0).(float64)
}

func (m *mockRoller) Intn(n int) int {
	return m.Called(n).Int(0)
}

// zeroRoller 所有概率判定都成功
type zeroRoller struct{}

func (zeroRoller) Float64() float64 { return 0 }
func (zeroRoller) Intn(int) int     { return 0 }

const calmScenario = `
scenarios:
  - id: 1
    name: calm
    max_rounds: 30
    action_points: 10
    recovery: 5
    win_threshold: 95
    lose_threshold: 5
    baseline: { trust: 70, risk: 60, incident: 0, loss: 100 }
    attacker_tools:
      - { id: wiper, archetype: destroy, cooldown: 2 }
      - { id: scanner, archetype: prank, cooldown: 0 }
    defender_tools:
      - { id: patcher, archetype: patch, cooldown: 0 }
    infrastructure:
      - { id: web, name: Web }
      - { id: db, name: DB }
    vulnerabilities:
      - { id: v1, type: sqli, severity: high, location: db, discovered: true }
      - { id: v2, type: rce, severity: critical, location: web }
`

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, src string, r Roller) *Engine {
	t.Helper()
	c, err := scenario.Parse([]byte(src))
	require.NoError(t, err)
	return NewEngine(c, scoring.NewService(zap.NewNop()),
		WithRoller(r),
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return fixedNow }))
}

func startSession(t *testing.T, e *Engine) string {
	t.Helper()
	s, err := e.CreateSession(0, "alice", "bob", models.ModePVP)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPreparing, s.Status)
	_, err = e.Start(s.ID)
	require.NoError(t, err)
	return s.ID
}

func act(role models.Role, t models.ActionType) models.ActionRequest {
	return models.ActionRequest{Role: role, Type: t, SubmittedAt: fixedNow}
}

func play(t *testing.T, e *Engine, id string, role models.Role, typ models.ActionType) *TurnOutcome {
	t.Helper()
	out, err := e.ProcessTurn(id, act(role, typ))
	require.NoError(t, err)
	return out
}

func TestCreateSession(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})

	s, err := e.CreateSession(1, "alice", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ModePVP, s.Mode)
	assert.Equal(t, models.PhaseSetup, s.Phase)
	assert.Equal(t, 1, s.CurrentRound)
	assert.Equal(t, models.RoleAttacker, s.CurrentTurn)
	assert.Equal(t, 10, s.AttackerResources.ActionPoints)
	assert.Len(t, s.AttackerResources.Tools, 2)
	assert.Equal(t, 70.0, s.Scores.Trust)
	assert.Equal(t, 100.0, s.Scores.Loss)

	_, err = e.CreateSession(99, "", "", models.ModePVP)
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)

	_, err = e.CreateSession(1, "", "", models.GameMode("coop"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestProcessTurn_ExploitWithoutVulnerabilityFizzles(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    infrastructure:
      - { id: web }
    vulnerabilities:
      - { id: hidden, type: rce, severity: critical, location: web }
      - { id: used, type: sqli, severity: high, location: web, discovered: true, exploited: true }
`, zeroRoller{})
	id := startSession(t, e)

	before, err := e.Session(id)
	require.NoError(t, err)
	netBefore, err := e.Network(id)
	require.NoError(t, err)

	out := play(t, e, id, models.RoleAttacker, models.AttackExploit)

	assert.False(t, out.Result.Success)
	assert.True(t, out.Result.Fizzled)
	assert.True(t, out.Applied.IsZero())
	assert.Equal(t, before.Scores, out.Session.Scores)
	assert.Equal(t, netBefore.Vulnerabilities, out.Network.Vulnerabilities)
	assert.Equal(t, netBefore.Compromised, out.Network.Compromised)
	assert.Equal(t, models.RoleDefender, out.Session.CurrentTurn)
}

func TestProcessTurn_ExploitScalesWithSeverity(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackExploit)

	require.True(t, out.Result.Success)
	assert.Equal(t, models.Delta{Risk: -30, Incident: 30}, out.Result.Impact)
	assert.Equal(t, 30.0, out.Session.Scores.Risk)
	assert.True(t, out.Network.Vulnerability("v1").Exploited)
	assert.Equal(t, []string{"db"}, out.Network.Compromised)

	// 同一漏洞不能再次利用
	play(t, e, id, models.RoleDefender, models.DefensePatch)
	out = play(t, e, id, models.RoleAttacker, models.AttackExploit)
	assert.True(t, out.Result.Fizzled)
}

func TestProcessTurn_DestroyAtRoundOne(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    baseline: { trust: 50, risk: 50, incident: 0, loss: 0 }
    infrastructure:
      - { id: web, name: Web }
`, zeroRoller{})
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackDestroy)

	got := out.Session.Scores
	assert.Equal(t, 50.0, got.Trust)
	assert.Equal(t, 25.0, got.Risk)
	assert.Equal(t, 30.0, got.Incident)
	assert.Equal(t, 0.0, got.Loss)
	assert.InDelta(t, 28.75, got.Overall, 1e-9)

	web := out.Network.Node("web")
	require.NotNil(t, web)
	assert.Equal(t, models.NodeCompromised, web.Status)
	assert.Equal(t, 70, web.Health)

	require.NotNil(t, out.End)
	assert.Equal(t, models.RoleAttacker, out.End.Winner)
	assert.Equal(t, models.EndFullyCompromise, out.End.Reason)
	assert.Equal(t, models.SessionCompleted, out.Session.Status)
}

func TestProcessTurn_Legality(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})

	s, err := e.CreateSession(0, "", "", models.ModePVP)
	require.NoError(t, err)
	_, err = e.ProcessTurn(s.ID, act(models.RoleAttacker, models.AttackPrank))
	assert.ErrorIs(t, err, ErrInvalidTurn, "session not started")

	id := startSession(t, e)
	tests := []struct {
		name string
		req  models.ActionRequest
	}{
		{"defender out of turn", act(models.RoleDefender, models.DefensePatch)},
		{"attacker uses defense archetype", act(models.RoleAttacker, models.DefensePatch)},
		{"unknown archetype", act(models.RoleAttacker, models.ActionType("nuke"))},
		{"spectator", act(models.RoleSpectator, models.AttackPrank)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ProcessTurn(id, tt.req)
			assert.ErrorIs(t, err, ErrInvalidTurn)
		})
	}

	moves, err := e.Moves(id)
	require.NoError(t, err)
	assert.Empty(t, moves)

	_, err = e.ProcessTurn("missing", act(models.RoleAttacker, models.AttackPrank))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessTurn_InsufficientResourcesLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    action_points: 3
    infrastructure:
      - { id: web }
`, zeroRoller{})
	id := startSession(t, e)
	before, err := e.Session(id)
	require.NoError(t, err)
	netBefore, err := e.Network(id)
	require.NoError(t, err)

	_, err = e.ProcessTurn(id, act(models.RoleAttacker, models.AttackDestroy))
	assert.ErrorIs(t, err, ErrInsufficientResources)

	req := act(models.RoleAttacker, models.AttackPrank)
	req.Params.Enhanced = true
	assert.Equal(t, 2, Cost(req.Type, req.Params))

	after, err := e.Session(id)
	require.NoError(t, err)
	netAfter, err := e.Network(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, netBefore, netAfter)
}

func TestProcessTurn_TurnAlternationAndRecovery(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackPrank)
	assert.True(t, out.TurnChanged)
	assert.False(t, out.RoundAdvanced)
	assert.Equal(t, models.RoleDefender, out.Session.CurrentTurn)
	assert.Equal(t, 9, out.Session.AttackerResources.ActionPoints)

	_, err := e.ProcessTurn(id, act(models.RoleAttacker, models.AttackPrank))
	assert.ErrorIs(t, err, ErrInvalidTurn)

	out = play(t, e, id, models.RoleDefender, models.DefensePatch)
	assert.True(t, out.RoundAdvanced)
	assert.Equal(t, 2, out.Session.CurrentRound)
	assert.Equal(t, 2, out.Network.Round)
	assert.Equal(t, models.RoleAttacker, out.Session.CurrentTurn)
	assert.Equal(t, 10, out.Session.AttackerResources.ActionPoints, "recovery is capped")
	assert.Equal(t, 10, out.Session.DefenderResources.ActionPoints)

	snaps, err := e.Snapshots(id)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Round)

	moves, err := e.Moves(id)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, 1, moves[0].Sequence)
	assert.Equal(t, models.RoleAttacker, moves[0].Role)
	assert.Equal(t, models.RoleDefender, moves[1].Role)
	assert.Equal(t, 1, moves[1].Round)
	assert.Equal(t, "恶作剧攻击", moves[0].ActionName)
	assert.Equal(t, 1, moves[0].Cost)
}

func TestProcessTurn_ChainEffectFiresInLaterRound(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    win_threshold: 95
    lose_threshold: 5
    baseline: { trust: 70, risk: 50, incident: 0, loss: 100 }
    infrastructure:
      - { id: web }
`, zeroRoller{})
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackRansom)
	assert.Equal(t, 65.0, out.Session.Scores.Loss)
	assert.Equal(t, models.NodeOffline, out.Network.Node("web").Status)
	pending, err := e.PendingEffects(id)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	out = play(t, e, id, models.RoleDefender, models.DefensePatch)
	assert.Empty(t, out.ChainFired)

	out = play(t, e, id, models.RoleAttacker, models.AttackPrank)
	require.Len(t, out.ChainFired, 1)
	assert.Equal(t, "ransom_spread", out.ChainFired[0].Type)
	// 第2回合系数 1+1/30
	assert.InDelta(t, 65-10*(1+1.0/30), out.Session.Scores.Loss, 1e-9)

	pending, err = e.PendingEffects(id)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestProcessTurn_PhishingUsesRoller(t *testing.T) {
	roller := new(mockRoller)
	roller.On("Float64").Return(0.59).Once()
	roller.On("Float64").Return(0.95).Once()
	roller.On("Float64").Return(0.79).Once()

	e := newTestEngine(t, calmScenario, roller)
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackPhish)
	assert.True(t, out.Result.Success)
	assert.True(t, out.Network.CredentialsStolen)

	play(t, e, id, models.RoleDefender, models.DefensePatch)

	// 同一原型再次提交会重新结算
	out = play(t, e, id, models.RoleAttacker, models.AttackPhish)
	assert.False(t, out.Result.Success)
	assert.False(t, out.Result.Fizzled)
	assert.InDelta(t, scoring.FailedIncident*scoring.RoundFactor(2), out.Applied.Incident, 1e-9)
	assert.Zero(t, out.Applied.Trust)

	play(t, e, id, models.RoleDefender, models.DefensePatch)

	req := act(models.RoleAttacker, models.AttackPhish)
	req.Params.Enhanced = true
	out, err := e.ProcessTurn(id, req)
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.Equal(t, 3, out.Move.Cost)

	roller.AssertExpectations(t)
}

func TestProcessTurn_ToolCooldown(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackDestroy)
	assert.Equal(t, 2, out.Session.AttackerResources.Cooldowns[models.AttackDestroy])
	play(t, e, id, models.RoleDefender, models.DefensePatch)

	_, err := e.ProcessTurn(id, act(models.RoleAttacker, models.AttackDestroy))
	assert.ErrorIs(t, err, ErrInvalidTurn)

	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	out = play(t, e, id, models.RoleDefender, models.DefensePatch)
	assert.Zero(t, out.Session.AttackerResources.Cooldowns[models.AttackDestroy])

	play(t, e, id, models.RoleAttacker, models.AttackDestroy)
}

func TestProcessTurn_RoundLimit(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    max_rounds: 2
    win_threshold: 99
    lose_threshold: 1
    baseline: { trust: 50, risk: 50, incident: 50, loss: 50 }
    infrastructure:
      - { id: web }
`, zeroRoller{})
	id := startSession(t, e)

	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	play(t, e, id, models.RoleDefender, models.DefenseFirewall)
	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	out := play(t, e, id, models.RoleDefender, models.DefenseFirewall)

	require.NotNil(t, out.End)
	assert.Equal(t, models.EndRoundLimit, out.End.Reason)
	assert.Equal(t, models.RoleDefender, out.End.Winner)
	assert.Greater(t, out.Session.Scores.Overall, 50.0)
	assert.Equal(t, 2, out.Session.CurrentRound, "round never exceeds the limit")

	_, err := e.ProcessTurn(id, act(models.RoleAttacker, models.AttackPrank))
	assert.ErrorIs(t, err, ErrInvalidTurn)
}

func TestProcessTurn_RoundLimitTakesPrecedence(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    max_rounds: 1
    baseline: { trust: 85, risk: 79, incident: 50, loss: 50 }
    infrastructure:
      - { id: web }
`, zeroRoller{})
	id := startSession(t, e)

	out := play(t, e, id, models.RoleAttacker, models.AttackExploit)
	require.Nil(t, out.End)

	out = play(t, e, id, models.RoleDefender, models.DefenseFirewall)
	require.NotNil(t, out.End)
	assert.GreaterOrEqual(t, out.Session.Scores.Risk, 80.0)
	assert.GreaterOrEqual(t, out.Session.Scores.Trust, 80.0)
	assert.Equal(t, models.EndRoundLimit, out.End.Reason)
	assert.Equal(t, models.RoleDefender, out.End.Winner)
}

func TestProcessTurn_FullyDefended(t *testing.T) {
	e := newTestEngine(t, `
scenarios:
  - id: 1
    baseline: { trust: 79, risk: 79, incident: 50, loss: 50 }
    infrastructure:
      - { id: web }
`, zeroRoller{})
	id := startSession(t, e)

	play(t, e, id, models.RoleAttacker, models.AttackExploit)
	out := play(t, e, id, models.RoleDefender, models.DefenseTaichi)

	require.NotNil(t, out.End)
	assert.Equal(t, models.EndFullyDefended, out.End.Reason)
	assert.Equal(t, models.RoleDefender, out.End.Winner)
}

func TestDefenseResolvers(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})
	id := startSession(t, e)

	play(t, e, id, models.RoleAttacker, models.AttackExploit)
	out := play(t, e, id, models.RoleDefender, models.DefenseMonitor)
	assert.True(t, out.Network.Vulnerability("v2").Discovered)
	assert.Contains(t, out.Network.ActiveDefenses, "monitoring_active")
	require.Len(t, out.Result.Notifications, 1)
	assert.Equal(t, models.RoleDefender, out.Result.Notifications[0].Target)
	assert.Equal(t, 15.0, out.Result.Impact.Incident)

	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	out = play(t, e, id, models.RoleDefender, models.DefenseVaccine)
	assert.Empty(t, out.Network.Compromised)
	assert.Contains(t, out.Network.ActiveDefenses, "antivirus_active")

	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	out = play(t, e, id, models.RoleDefender, models.DefenseDecoy)
	assert.NotNil(t, out.Network.Node("decoy_1"))

	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	out = play(t, e, id, models.RoleDefender, models.DefenseGuerrilla)
	assert.Contains(t, out.Network.ActiveDefenses, "dynamic_defense")
	assert.Equal(t, guerrillaMinimum, out.Network.Node("decoy_1").Defense)

	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	req := act(models.RoleDefender, models.DefensePatch)
	req.Target = "web"
	out, err := e.ProcessTurn(id, req)
	require.NoError(t, err)
	assert.True(t, out.Network.Vulnerability("v1").Patched)
	assert.False(t, out.Network.Vulnerability("v2").Patched, "one vulnerability per plain patch")
	assert.Equal(t, models.NodePatched, out.Network.Node("web").Status)
}

func TestVaccineSparesCriticalSystem(t *testing.T) {
	net := &models.NetworkState{Compromised: []string{protectedSystem, "web", "db", "mail"}}
	r := resolveVaccine(turnInput{net: net, params: models.ActionParams{Enhanced: true}, roll: zeroRoller{}})

	net.Apply(r.Changes)
	assert.Equal(t, []string{protectedSystem}, net.Compromised)
}

func TestResolveUnknownActionType(t *testing.T) {
	_, err := resolve(models.ActionType("nuke"), turnInput{net: &models.NetworkState{}, roll: zeroRoller{}})
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestEveryArchetypeHasAResolver(t *testing.T) {
	net := &models.NetworkState{Infrastructure: []models.Node{{ID: "web", Status: models.NodeRunning, Health: 100, MaxHealth: 100}}}
	for _, a := range append(append([]models.ActionType{}, models.AttackTypes...), models.DefenseTypes...) {
		r, err := resolve(a, turnInput{net: net, roll: zeroRoller{}})
		require.NoError(t, err, a)
		assert.NotEmpty(t, r.ActionName, a)
	}
}

func TestPauseForfeitAndRelease(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})
	id := startSession(t, e)
	play(t, e, id, models.RoleAttacker, models.AttackPrank)

	s, err := e.Pause(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPaused, s.Status)
	_, err = e.ProcessTurn(id, act(models.RoleDefender, models.DefensePatch))
	assert.ErrorIs(t, err, ErrInvalidTurn)

	s, err = e.Start(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Equal(t, models.RoleDefender, s.CurrentTurn, "resume keeps the turn")

	end, err := e.Forfeit(id, models.RoleDefender, models.EndOpponentTimeout)
	require.NoError(t, err)
	assert.Equal(t, models.RoleDefender, end.Winner)

	again, err := e.Forfeit(id, models.RoleAttacker, "late")
	require.NoError(t, err)
	assert.Equal(t, end.Winner, again.Winner, "completed sessions keep their result")

	_, err = e.Start(id)
	assert.ErrorIs(t, err, ErrInvalidState)

	st, err := e.Statistics(id)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Samples)

	rec, err := e.Release(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, rec.Session.Status)
	assert.Equal(t, models.EndOpponentTimeout, rec.Session.EndReason)
	assert.Len(t, rec.Moves, 1)
	assert.NotNil(t, rec.FinalNetwork)

	_, err = e.Session(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.Release(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTrend(t *testing.T) {
	e := newTestEngine(t, calmScenario, zeroRoller{})
	id := startSession(t, e)
	play(t, e, id, models.RoleAttacker, models.AttackPrank)
	play(t, e, id, models.RoleDefender, models.DefenseFirewall)

	tr, err := e.Trend(id)
	require.NoError(t, err)
	assert.Greater(t, tr.Confidence, 0.0)
	assert.Contains(t, []scoring.TrendDirection{scoring.TrendImproving, scoring.TrendDeclining, scoring.TrendStable}, tr.Direction)

	_, err = e.Trend("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
