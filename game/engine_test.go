package game

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pictionary/models"
	"pictionary/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorderStub struct {
	mu      sync.Mutex
	results []*models.Session
}

func (r *recorderStub) RecordResult(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, s)
	return nil
}

func (r *recorderStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

type testEnv struct {
	engine   *Engine
	store    *store.MemoryStore
	clock    *fakeClock
	recorder *recorderStub
}

func newTestEnv(t *testing.T, cfg models.GameConfig) *testEnv {
	t.Helper()
	st := store.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { st.Close() })
	clock := newFakeClock()
	rec := &recorderStub{}

	var mu sync.Mutex
	next := 0
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("p%d", next)
	}
	e := NewEngine(st, cfg, zap.NewNop(),
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewSource(1))),
		WithRecorder(rec),
		WithIDGenerator(ids),
	)
	return &testEnv{engine: e, store: st, clock: clock, recorder: rec}
}

// lobby creates a session with the named players; p1 is the first of them.
func (env *testEnv) lobby(t *testing.T, names ...string) string {
	t.Helper()
	ctx := context.Background()
	res, err := env.engine.Join(ctx, JoinRequest{Name: names[0]})
	require.NoError(t, err)
	for _, name := range names[1:] {
		_, err := env.engine.Join(ctx, JoinRequest{Name: name, SessionID: res.SessionID})
		require.NoError(t, err)
	}
	return res.SessionID
}

// active is lobby followed by StartGame from p1.
func (env *testEnv) active(t *testing.T, names ...string) string {
	t.Helper()
	sid := env.lobby(t, names...)
	_, err := env.engine.StartGame(context.Background(), sid, "p1")
	require.NoError(t, err)
	return sid
}

func (env *testEnv) read(t *testing.T, sid string) *models.Session {
	t.Helper()
	s, err := env.engine.Session(context.Background(), sid)
	require.NoError(t, err)
	return s
}

// checkInvariants asserts the properties every reachable state must hold.
func checkInvariants(t *testing.T, s *models.Session) {
	t.Helper()
	if s == nil {
		return
	}
	if len(s.Players) > 0 {
		require.True(t, s.HasPlayer(s.Host), "host %q must be a player", s.Host)
	}
	if s.CurrentDrawer != "" {
		require.True(t, s.HasPlayer(s.CurrentDrawer), "drawer %q must be a player", s.CurrentDrawer)
	}
	for drawer := range s.SecretWords {
		require.Equal(t, s.CurrentDrawer, drawer, "only the current drawer holds a word")
	}
	if s.Phase != models.PhaseEnded {
		require.Nil(t, s.Winner)
	}
}

func wordConfig(words ...string) models.GameConfig {
	cfg := models.DefaultGameConfig()
	cfg.Words = words
	return cfg
}
