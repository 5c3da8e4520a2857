package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/CyberChess-Server/internal/engine"
	"github.com/jacl-coder/CyberChess-Server/internal/game"
	"github.com/jacl-coder/CyberChess-Server/internal/gateway"
	"github.com/jacl-coder/CyberChess-Server/internal/models"
	"github.com/jacl-coder/CyberChess-Server/internal/replay"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
)

type fakeRooms struct {
	rooms map[string]models.RoomInfo
}

func (f *fakeRooms) Rooms() []models.RoomSummary {
	out := make([]models.RoomSummary, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, models.RoomSummary{ID: r.ID, PlayerCount: len(r.Players), Status: r.Status})
	}
	return out
}

func (f *fakeRooms) Room(id string) (models.RoomInfo, error) {
	r, ok := f.rooms[id]
	if !ok {
		return models.RoomInfo{}, fmt.Errorf("%w: %s", game.ErrRoomNotFound, id)
	}
	return r, nil
}

func (f *fakeRooms) Statistics() models.RoomStats {
	return models.RoomStats{
		TotalRooms:    len(f.rooms),
		RoomsByStatus: map[models.RoomStatus]int{models.RoomPlaying: len(f.rooms)},
		TotalPlayers:  2 * len(f.rooms),
	}
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Trend(id string) (scoring.Trend, error) {
	args := m.Called(id)
	return args.Get(0).(scoring.Trend), args.Error(1)
}

func (m *mockSessions) Statistics(id string) (scoring.Statistics, error) {
	args := m.Called(id)
	return args.Get(0).(scoring.Statistics), args.Error(1)
}

type mockMatches struct {
	mock.Mock
}

func (m *mockMatches) RecentMatches(ctx context.Context, limit int) ([]replay.MatchSummary, error) {
	args := m.Called(limit)
	return args.Get(0).([]replay.MatchSummary), args.Error(1)
}

func (m *mockMatches) LoadMatch(ctx context.Context, id string) (*models.MatchRecord, error) {
	args := m.Called(id)
	rec, _ := args.Get(0).(*models.MatchRecord)
	return rec, args.Error(1)
}

func (m *mockMatches) CachedRooms(ctx context.Context) ([]models.RoomSummary, error) {
	args := m.Called()
	return args.Get(0).([]models.RoomSummary), args.Error(1)
}

type decoded struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func get(t *testing.T, h http.Handler, path string) (int, decoded) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body decoded
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func newTestServer(sessions SessionSource, opts ...Option) http.Handler {
	rooms := &fakeRooms{rooms: map[string]models.RoomInfo{
		"r-1": {ID: "r-1", SessionID: "s-1", Status: models.RoomPlaying, Players: []models.RoomPlayer{
			{UserID: "alice", Role: models.RoleAttacker},
			{UserID: "bob", Role: models.RoleDefender},
		}},
	}}
	h := NewHandler(rooms, sessions, scenario.Default(), opts...)
	return NewServer(0, h, nil, nil, nil).Routes()
}

func TestHealthAndRooms(t *testing.T) {
	srv := newTestServer(&mockSessions{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	code, body := get(t, srv, "/rooms")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	var rooms []models.RoomSummary
	require.NoError(t, json.Unmarshal(body.Data, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].PlayerCount)

	code, body = get(t, srv, "/rooms/r-1")
	assert.Equal(t, http.StatusOK, code)
	var info models.RoomInfo
	require.NoError(t, json.Unmarshal(body.Data, &info))
	assert.Equal(t, "s-1", info.SessionID)

	code, body = get(t, srv, "/rooms/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
	assert.Equal(t, game.CodeRoomNotFound, body.Code)

	code, body = get(t, srv, "/stats")
	assert.Equal(t, http.StatusOK, code)
	var st models.RoomStats
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.Equal(t, 1, st.TotalRooms)

	code, body = get(t, srv, "/scenarios")
	assert.Equal(t, http.StatusOK, code)
	var scs []scenario.Scenario
	require.NoError(t, json.Unmarshal(body.Data, &scs))
	assert.NotEmpty(t, scs)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&mockSessions{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionQueries(t *testing.T) {
	sessions := &mockSessions{}
	trend := scoring.Trend{Direction: scoring.TrendImproving, Confidence: 0.6}
	sessions.On("Trend", "s-1").Return(trend, nil)
	sessions.On("Trend", "missing").Return(scoring.Trend{}, fmt.Errorf("%w: missing", engine.ErrSessionNotFound))
	sessions.On("Statistics", "s-1").Return(scoring.Statistics{Samples: 4, Volatility: 1.5}, nil)
	sessions.On("Statistics", "broken").Return(scoring.Statistics{}, errors.New("boom"))
	srv := newTestServer(sessions)

	code, body := get(t, srv, "/sessions/s-1/trend")
	assert.Equal(t, http.StatusOK, code)
	var got scoring.Trend
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, scoring.TrendImproving, got.Direction)

	code, body = get(t, srv, "/sessions/missing/trend")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, game.CodeRoomNotFound, body.Code)

	code, body = get(t, srv, "/sessions/s-1/statistics")
	assert.Equal(t, http.StatusOK, code)
	var st scoring.Statistics
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.Equal(t, 4, st.Samples)

	code, body = get(t, srv, "/sessions/broken/statistics")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, game.CodeInternal, body.Code)

	sessions.AssertExpectations(t)
}

func TestMatchesDisabled(t *testing.T) {
	srv := newTestServer(&mockSessions{})

	code, body := get(t, srv, "/matches")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "HISTORY_DISABLED", body.Code)

	code, _ = get(t, srv, "/matches/s-1")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = get(t, srv, "/rooms/cached")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "CACHE_DISABLED", body.Code)
}

func TestMatchesAndReplay(t *testing.T) {
	matches := &mockMatches{}
	ended := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	matches.On("RecentMatches", defaultMatchLimit).Return([]replay.MatchSummary{{SessionID: "s-9", EndedAt: ended}}, nil)
	matches.On("RecentMatches", maxMatchLimit).Return([]replay.MatchSummary{}, nil)
	matches.On("LoadMatch", "s-9").Return(&models.MatchRecord{Session: models.MatchSession{ID: "s-9"}}, nil)
	matches.On("LoadMatch", "gone").Return(nil, fmt.Errorf("%w: gone", replay.ErrMatchNotFound))
	matches.On("CachedRooms").Return([]models.RoomSummary{{ID: "r-remote"}}, nil)

	srv := newTestServer(&mockSessions{},
		WithMatchHistory(matches), WithMatchLoader(matches), WithRoomCache(matches))

	code, body := get(t, srv, "/matches")
	assert.Equal(t, http.StatusOK, code)
	var list []replay.MatchSummary
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "s-9", list[0].SessionID)

	code, _ = get(t, srv, "/matches?limit=1000")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, srv, "/matches?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, game.CodeInvalidPayload, body.Code)

	code, body = get(t, srv, "/matches/s-9")
	assert.Equal(t, http.StatusOK, code)
	var rec models.MatchRecord
	require.NoError(t, json.Unmarshal(body.Data, &rec))
	assert.Equal(t, "s-9", rec.Session.ID)

	code, body = get(t, srv, "/matches/gone")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "MATCH_NOT_FOUND", body.Code)

	code, body = get(t, srv, "/rooms/cached")
	assert.Equal(t, http.StatusOK, code)
	var cached []models.RoomSummary
	require.NoError(t, json.Unmarshal(body.Data, &cached))
	assert.Equal(t, "r-remote", cached[0].ID)

	matches.AssertExpectations(t)
}

func TestLobbyRateLimited(t *testing.T) {
	h := NewHandler(&fakeRooms{rooms: map[string]models.RoomInfo{}}, &mockSessions{}, scenario.Default())
	srv := NewServer(0, h, gateway.NewRateLimiter(2, time.Minute), nil, nil).Routes()

	for i := 0; i < 2; i++ {
		code, _ := get(t, srv, "/rooms")
		assert.Equal(t, http.StatusOK, code)
	}
	code, body := get(t, srv, "/rooms")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, game.CodeRateLimited, body.Code)
}
