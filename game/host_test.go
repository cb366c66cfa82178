package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pictionary/models"
	"pictionary/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() models.GameConfig {
	cfg := models.DefaultGameConfig()
	cfg.RoundSeconds = 1
	cfg.TickInterval = models.Duration(5 * time.Millisecond)
	cfg.GraceDelay = models.Duration(20 * time.Millisecond)
	cfg.SweepInterval = models.Duration(10 * time.Millisecond)
	cfg.Words = []string{"sunce"}
	return cfg
}

// newDrivenEngine uses the real clock so that timers and presence agree.
func newDrivenEngine(t *testing.T, cfg models.GameConfig) (*Engine, *recorderStub) {
	st := store.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { st.Close() })
	rec := &recorderStub{}
	return NewEngine(st, cfg, zap.NewNop(), WithRand(rand.New(rand.NewSource(7))), WithRecorder(rec)), rec
}

// drive wires a host driver to the session's change feed the way a connection does.
func drive(t *testing.T, e *Engine, sid, playerID string) *HostDriver {
	ctx := context.Background()
	d := e.NewHostDriver(ctx, sid, playerID)
	unsubscribe, err := e.Subscribe(ctx, sid, func(c store.Change) {
		d.Observe(c.Session)
	})
	require.NoError(t, err)
	s, err := e.Session(ctx, sid)
	require.NoError(t, err)
	d.Observe(s)
	t.Cleanup(func() {
		unsubscribe()
		d.Stop()
	})
	return d
}

func joinTwo(t *testing.T, e *Engine) (string, string, string) {
	ctx := context.Background()
	a, err := e.Join(ctx, JoinRequest{Name: "Ana"})
	require.NoError(t, err)
	b, err := e.Join(ctx, JoinRequest{Name: "Bora", SessionID: a.SessionID})
	require.NoError(t, err)
	return a.SessionID, a.PlayerID, b.PlayerID
}

func TestHostDriverRunsGameToTheEnd(t *testing.T) {
	e, rec := newDrivenEngine(t, fastConfig())
	ctx := context.Background()
	sid, host, guest := joinTwo(t, e)

	drive(t, e, sid, host)
	drive(t, e, sid, guest)

	_, err := e.StartGame(ctx, sid, host)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := e.Session(ctx, sid)
		return err == nil && s.Phase == models.PhaseEnded
	}, 5*time.Second, 10*time.Millisecond)

	s, err := e.Session(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 2, s.RoundNumber)
	assert.Equal(t, 1, rec.count())
}

func TestHostDriverAdvancesAfterCorrectGuess(t *testing.T) {
	cfg := fastConfig()
	cfg.RoundSeconds = 600
	e, _ := newDrivenEngine(t, cfg)
	ctx := context.Background()
	sid, host, guest := joinTwo(t, e)
	drive(t, e, sid, host)

	_, err := e.StartGame(ctx, sid, host)
	require.NoError(t, err)
	out, err := e.SubmitChat(ctx, sid, guest, "sunce")
	require.NoError(t, err)
	require.True(t, out.Settled)

	require.Eventually(t, func() bool {
		s, err := e.Session(ctx, sid)
		return err == nil && s.RoundNumber == 2
	}, 5*time.Second, 5*time.Millisecond)

	// the grace advance fires once; round 2 keeps running on its long timer
	time.Sleep(5 * cfg.GraceDelay.Std())
	s, err := e.Session(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 2, s.RoundNumber)
	assert.Equal(t, guest, s.CurrentDrawer)
	assert.Nil(t, s.CorrectGuess)
}

func TestHostDriverIdleWhenNotHost(t *testing.T) {
	e, _ := newDrivenEngine(t, fastConfig())
	ctx := context.Background()
	sid, host, guest := joinTwo(t, e)
	drive(t, e, sid, guest)

	_, err := e.StartGame(ctx, sid, host)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	s, err := e.Session(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, s.RoundNumber)
	assert.Equal(t, 1, s.TimeLeft, "nobody but the host ticks")
}

func TestHostDriverTakesOverAfterHostLeaves(t *testing.T) {
	e, _ := newDrivenEngine(t, fastConfig())
	ctx := context.Background()
	sid, host, second := joinTwo(t, e)
	third, err := e.Join(ctx, JoinRequest{Name: "Ceca", SessionID: sid})
	require.NoError(t, err)

	drive(t, e, sid, second)
	drive(t, e, sid, third.PlayerID)

	_, err = e.StartGame(ctx, sid, host)
	require.NoError(t, err)
	_, err = e.Leave(ctx, sid, host)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := e.Session(ctx, sid)
		return err == nil && s.Phase == models.PhaseEnded
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHostDriverStopIsFinal(t *testing.T) {
	e, _ := newDrivenEngine(t, fastConfig())
	ctx := context.Background()
	sid, host, _ := joinTwo(t, e)

	d := e.NewHostDriver(ctx, sid, host)
	d.Stop()
	_, err := e.StartGame(ctx, sid, host)
	require.NoError(t, err)
	s, err := e.Session(ctx, sid)
	require.NoError(t, err)
	d.Observe(s)

	time.Sleep(50 * time.Millisecond)
	s, err = e.Session(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TimeLeft)
}

func TestHostDriverOnePerPlayer(t *testing.T) {
	cfg := fastConfig()
	cfg.RoundSeconds = 600
	cfg.TickInterval = models.Duration(20 * time.Millisecond)
	e, _ := newDrivenEngine(t, cfg)
	ctx := context.Background()
	sid, host, _ := joinTwo(t, e)

	// 2つ目のタブ
	first := drive(t, e, sid, host)
	drive(t, e, sid, host)

	first.mu.Lock()
	stopped := first.stopped
	first.mu.Unlock()
	assert.True(t, stopped)

	_, err := e.StartGame(ctx, sid, host)
	require.NoError(t, err)
	time.Sleep(time.Second)

	s, err := e.Session(ctx, sid)
	require.NoError(t, err)
	ticks := cfg.RoundSeconds - s.TimeLeft
	assert.LessOrEqual(t, ticks, 60, "one timer for the round, ~50 ticks expected")
	assert.Greater(t, ticks, 0)
}

func TestHostDriverStopOfSupersededDriverKeepsNewOne(t *testing.T) {
	e, _ := newDrivenEngine(t, fastConfig())
	sid, host, _ := joinTwo(t, e)

	first := e.NewHostDriver(context.Background(), sid, host)
	second := e.NewHostDriver(context.Background(), sid, host)
	first.Stop()

	e.driversMu.Lock()
	current := e.drivers[driverKey(sid, host)]
	e.driversMu.Unlock()
	assert.Same(t, second, current)

	second.Stop()
	e.driversMu.Lock()
	assert.Empty(t, e.drivers)
	e.driversMu.Unlock()
}

// flakyStore fails every update while broken is set.
type flakyStore struct {
	store.Store
	mu     sync.Mutex
	broken bool
}

func (f *flakyStore) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func (f *flakyStore) TransactionalUpdate(ctx context.Context, id string, fn store.UpdateFunc) (*models.Session, error) {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.TransactionalUpdate(ctx, id, fn)
}

func TestHostDriverGraceAdvanceSurvivesStoreErrors(t *testing.T) {
	cfg := fastConfig()
	cfg.RoundSeconds = 600
	mem := store.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { mem.Close() })
	flaky := &flakyStore{Store: mem}
	e := NewEngine(flaky, cfg, zap.NewNop(), WithRand(rand.New(rand.NewSource(7))))
	ctx := context.Background()
	sid, host, guest := joinTwo(t, e)
	drive(t, e, sid, host)

	_, err := e.StartGame(ctx, sid, host)
	require.NoError(t, err)
	out, err := e.SubmitChat(ctx, sid, guest, "sunce")
	require.NoError(t, err)
	require.True(t, out.Settled)

	// the store is down across the moment the grace advance fires
	flaky.setBroken(true)
	time.Sleep(cfg.GraceDelay.Std() + 60*time.Millisecond)
	flaky.setBroken(false)

	require.Eventually(t, func() bool {
		s, err := e.Session(ctx, sid)
		return err == nil && s.RoundNumber == 2 && s.CorrectGuess == nil
	}, 2*time.Second, 5*time.Millisecond)
}
