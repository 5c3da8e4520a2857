package replay

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/pkg/db"
)

func sampleRecord(id string) *models.MatchRecord {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.MatchRecord{
		Session: models.MatchSession{
			ID:           id,
			ScenarioID:   1,
			Mode:         models.ModePVP,
			CurrentRound: 4,
			MaxRounds:    30,
			AttackerID:   "alice",
			DefenderID:   "bob",
			Scores:       models.Scores{Trust: 42.5, Risk: 61, Incident: 12.25, Loss: 48, Overall: 44.3},
			Winner:       models.RoleAttacker,
			EndReason:    models.EndFullyCompromise,
			StartedAt:    start,
			EndedAt:      start.Add(12 * time.Minute),
		},
		Moves: []models.Move{
			{
				ID: uuid.New().String(), SessionID: id, Sequence: 1, Round: 1,
				Role: models.RoleAttacker, ActionType: models.AttackExploit, ActionName: "漏洞利用",
				Target: "web_server", Cost: 2, Success: true,
				Impact:     models.Delta{Risk: 20, Incident: 20},
				ExecutedAt: start.Add(time.Minute),
			},
			{
				ID: uuid.New().String(), SessionID: id, Sequence: 2, Round: 1,
				Role: models.RoleDefender, ActionType: models.DefensePatch, ActionName: "补丁",
				Params:     models.ActionParams{Enhanced: true, VulnType: "sql_injection"},
				Cost:       2,
				ExecutedAt: start.Add(2 * time.Minute),
			},
			{
				ID: uuid.New().String(), SessionID: id, Sequence: 3, Round: 2,
				Role: models.RoleAttacker, ActionType: models.AttackExploit, Cost: 2,
				ExecutedAt: start.Add(3 * time.Minute),
			},
		},
		FinalNetwork: &models.NetworkState{
			Round:       4,
			Compromised: []string{"web_server"},
		},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	rec := sampleRecord("s-1")

	data, err := EncodeArchive(rec)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := DecodeArchive(data)
	require.NoError(t, err)

	assert.Equal(t, rec.Session.ID, got.Session.ID)
	assert.Equal(t, rec.Session.Scores, got.Session.Scores)
	assert.Equal(t, rec.Session.Winner, got.Session.Winner)
	assert.True(t, rec.Session.EndedAt.Equal(got.Session.EndedAt))
	require.Len(t, got.Moves, 3)
	assert.Equal(t, rec.Moves[0].Impact, got.Moves[0].Impact)
	assert.Equal(t, rec.Moves[1].Params, got.Moves[1].Params)
	assert.Equal(t, rec.Moves[2].ID, got.Moves[2].ID)
	require.NotNil(t, got.FinalNetwork)
	assert.Equal(t, []string{"web_server"}, got.FinalNetwork.Compromised)
}

func TestDecodeArchiveRejectsGarbage(t *testing.T) {
	_, err := DecodeArchive([]byte{0xff, 0x01, 0x02})
	assert.Error(t, err)

	_, err = DecodeArchive(nil)
	assert.True(t, errors.Is(err, ErrArchiveVersion))
}

func TestSummarizeAndArchetypes(t *testing.T) {
	rec := sampleRecord("s-2")

	s := Summarize(rec)
	assert.Equal(t, "s-2", s.SessionID)
	assert.Equal(t, 4, s.Rounds)
	assert.Equal(t, 3, s.Moves)
	assert.Equal(t, models.RoleAttacker, s.Winner)

	assert.Equal(t, []string{"exploit", "patch"}, archetypes(rec.Moves))
	assert.Empty(t, archetypes(nil))
}

type stubRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubRecorder) RecordMatch(ctx context.Context, rec *models.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func TestMultiRecorder(t *testing.T) {
	a, b := &stubRecorder{}, &stubRecorder{}
	m := NewMulti(a, nil, b)
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.RecordMatch(context.Background(), sampleRecord("s-3")))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	boom := errors.New("boom")
	b.err = boom
	err := m.RecordMatch(context.Background(), sampleRecord("s-4"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, a.calls)

	assert.NoError(t, NewMulti().RecordMatch(context.Background(), sampleRecord("s-5")))
	assert.NoError(t, NewLogRecorder(nil).RecordMatch(context.Background(), sampleRecord("s-6")))
}

// gatedRecorder 等待兄弟接收方失败后再写入，写入期间 ctx 被取消则放弃
type gatedRecorder struct {
	gate  <-chan struct{}
	saved bool
}

func (g *gatedRecorder) RecordMatch(ctx context.Context, rec *models.MatchRecord) error {
	<-g.gate
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	g.saved = true
	return nil
}

type failingRecorder struct {
	done chan<- struct{}
	err  error
}

func (f *failingRecorder) RecordMatch(ctx context.Context, rec *models.MatchRecord) error {
	defer close(f.done)
	return f.err
}

func TestMultiRecorderIsolatesFailures(t *testing.T) {
	gate := make(chan struct{})
	store := &gatedRecorder{gate: gate}
	down := errors.New("redis down")
	other := errors.New("disk full")

	m := NewMulti(store, &failingRecorder{done: gate, err: down}, &stubRecorder{err: other})
	err := m.RecordMatch(context.Background(), sampleRecord("s-7"))

	assert.True(t, store.saved)
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, err, other)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CYBERCHESS_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis不可用，跳过测试")
	}
	t.Cleanup(func() {
		client.Del(context.Background(), RecentMatchesKey, RoomListKey)
		_ = client.Close()
	})
	return client
}

func TestPublisherRoomCache(t *testing.T) {
	client := redisClient(t)
	p := NewPublisher(client)
	ctx := context.Background()
	client.Del(ctx, RoomListKey)

	rooms, err := p.CachedRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	want := []models.RoomSummary{{ID: "r-1", PlayerCount: 2, Status: models.RoomPlaying}}
	require.NoError(t, p.StoreRooms(ctx, want))

	rooms, err = p.CachedRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "r-1", rooms[0].ID)
	assert.Equal(t, models.RoomPlaying, rooms[0].Status)
}

func TestPublisherRecordsAndPublishes(t *testing.T) {
	client := redisClient(t)
	p := NewPublisher(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client.Del(ctx, RecentMatchesKey)

	received := make(chan MatchSummary, 1)
	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = p.Subscribe(subCtx, func(ms MatchSummary) { received <- ms })
	}()
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, MatchEndedChannel).Result()
		return err == nil && n[MatchEndedChannel] > 0
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, p.RecordMatch(ctx, sampleRecord("s-pub")))

	select {
	case ms := <-received:
		assert.Equal(t, "s-pub", ms.SessionID)
	case <-ctx.Done():
		t.Fatal("未收到对局结束事件")
	}

	recent, err := p.RecentMatches(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "s-pub", recent[0].SessionID)
}

func postgresDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("CYBERCHESS_TEST_DSN")
	if dsn == "" {
		t.Skip("未设置 CYBERCHESS_TEST_DSN，跳过测试")
	}
	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		t.Skip("PostgreSQL不可用，跳过测试")
	}
	require.NoError(t, db.Migrate(context.Background(), conn))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStoreRecordAndLoad(t *testing.T) {
	conn := postgresDB(t)
	store := NewStore(conn, nil)
	ctx := context.Background()

	id := uuid.New().String()
	rec := sampleRecord(id)
	for i := range rec.Moves {
		rec.Moves[i].SessionID = id
	}
	require.NoError(t, store.RecordMatch(ctx, rec))
	// 重复写入被忽略
	require.NoError(t, store.RecordMatch(ctx, rec))

	got, err := store.LoadMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.Session.ID)
	assert.Len(t, got.Moves, 3)

	recent, err := store.RecentMatches(ctx, 100)
	require.NoError(t, err)
	found := false
	for _, ms := range recent {
		if ms.SessionID == id {
			found = true
			assert.Equal(t, 3, ms.Moves)
		}
	}
	assert.True(t, found)

	_, err = store.LoadMatch(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrMatchNotFound)
}
