package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pictionary/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAndStart(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	ana, err := env.engine.Join(ctx, JoinRequest{Name: "  Ana "})
	require.NoError(t, err)
	assert.Equal(t, "p1", ana.PlayerID)
	assert.Len(t, ana.SessionID, 6)
	assert.Equal(t, "p1", ana.Session.Host)
	assert.Equal(t, "Ana", ana.Session.Players[0].Name)

	bora, err := env.engine.Join(ctx, JoinRequest{Name: "Bора", SessionID: strings.ToLower(ana.SessionID)})
	require.NoError(t, err)
	assert.Equal(t, ana.SessionID, bora.SessionID)
	assert.Equal(t, "p1", bora.Session.Host)

	s, err := env.engine.StartGame(ctx, ana.SessionID, ana.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, s.Phase)
	assert.Equal(t, 1, s.RoundNumber)
	assert.Equal(t, 2, s.MaxRounds)
	assert.Contains(t, []string{"p1", "p2"}, s.CurrentDrawer)
	assert.Equal(t, 60, s.TimeLeft)
	assert.NotEmpty(t, s.SecretWord())
	assert.Len(t, s.SecretWords, 1)
	checkInvariants(t, s)
}

func TestJoinValidation(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	for _, name := range []string{"", "   ", strings.Repeat("x", 21)} {
		_, err := env.engine.Join(ctx, JoinRequest{Name: name})
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
	_, err := env.engine.Join(ctx, JoinRequest{Name: strings.Repeat("ž", 20)})
	assert.NoError(t, err)

	_, err = env.engine.Join(ctx, JoinRequest{Name: "Ana", SessionID: "ZZZZZZ"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinFailureDoesNotLeaveEmptySession(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.engine.Join(ctx, JoinRequest{Name: "Ana"})
	require.Error(t, err)

	ids, err := env.store.ListSessionIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJoinEndedSession(t *testing.T) {
	cfg := models.DefaultGameConfig()
	cfg.MaxRounds = 1
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora")

	s, err := env.engine.AdvanceRound(ctx, sid, "p1", 1)
	require.NoError(t, err)
	require.Equal(t, models.PhaseEnded, s.Phase)

	_, err = env.engine.Join(ctx, JoinRequest{Name: "Ceca", SessionID: sid})
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestJoinActiveSessionAddsToRotation(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora")

	res, err := env.engine.Join(ctx, JoinRequest{Name: "Ceca", SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, res.Session.Phase)
	assert.Equal(t, "p3", res.Session.Players[2].ID)
	assert.Equal(t, 2, res.Session.MaxRounds, "max rounds are fixed at start")
}

func TestJoinDedupesCallerToken(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	first, err := env.engine.Join(ctx, JoinRequest{Name: "Ana", CallerToken: "tab-1"})
	require.NoError(t, err)
	_, err = env.engine.Join(ctx, JoinRequest{Name: "Bora", SessionID: first.SessionID, CallerToken: "tab-2"})
	require.NoError(t, err)

	again, err := env.engine.Join(ctx, JoinRequest{Name: "Ana", SessionID: first.SessionID, CallerToken: "tab-1"})
	require.NoError(t, err)

	s := again.Session
	require.Len(t, s.Players, 2)
	assert.Equal(t, "p2", s.Players[0].ID)
	assert.Equal(t, again.PlayerID, s.Players[1].ID)
	assert.Equal(t, 0, s.Players[1].Score, "a rejoin starts fresh")
	assert.Equal(t, "p2", s.Host, "host moves to the earliest remaining joiner")
	checkInvariants(t, s)
}

func TestJoinDedupeOfDrawerAdvancesRound(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	first, err := env.engine.Join(ctx, JoinRequest{Name: "Ana", CallerToken: "tab-1"})
	require.NoError(t, err)
	sid := first.SessionID
	for _, name := range []string{"Bora", "Ceca"} {
		_, err := env.engine.Join(ctx, JoinRequest{Name: name, SessionID: sid})
		require.NoError(t, err)
	}
	_, err = env.engine.StartGame(ctx, sid, "p1")
	require.NoError(t, err)

	again, err := env.engine.Join(ctx, JoinRequest{Name: "Ana", SessionID: sid, CallerToken: "tab-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, again.Session.Phase)
	assert.Equal(t, 2, again.Session.RoundNumber)
	assert.Equal(t, "p2", again.Session.CurrentDrawer)
	checkInvariants(t, again.Session)
}

func TestConcurrentJoinsElectOneHost(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	sid, err := env.store.CreateSession(ctx, models.NewSession(env.clock.Now()))
	require.NoError(t, err)

	const joiners = 10
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.engine.Join(ctx, JoinRequest{Name: fmt.Sprintf("player%d", i), SessionID: sid})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s := env.read(t, sid)
	require.Len(t, s.Players, joiners)
	assert.Equal(t, s.Players[0].ID, s.Host)
}

func TestStartGameRules(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	sid := env.lobby(t, "Ana")
	_, err := env.engine.StartGame(ctx, sid, "p1")
	assert.ErrorIs(t, err, ErrInsufficientPlayers)

	_, err = env.engine.Join(ctx, JoinRequest{Name: "Bora", SessionID: sid})
	require.NoError(t, err)

	_, err = env.engine.StartGame(ctx, sid, "p2")
	assert.ErrorIs(t, err, ErrNotHost)

	s, err := env.engine.StartGame(ctx, sid, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, s.Phase)
	assert.Equal(t, "p1", s.CurrentDrawer, "the first joiner draws first")

	_, err = env.engine.StartGame(ctx, sid, "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)

	_, err = env.engine.StartGame(ctx, "ZZZZZZ", "p1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMaxRoundsPolicy(t *testing.T) {
	cfg := models.DefaultGameConfig()
	cfg.RoundsPerPlayer = 2
	env := newTestEnv(t, cfg)
	sid := env.active(t, "Ana", "Bora", "Ceca")
	assert.Equal(t, 6, env.read(t, sid).MaxRounds)

	cfg.MaxRounds = 5
	env = newTestEnv(t, cfg)
	sid = env.active(t, "Ana", "Bora", "Ceca")
	assert.Equal(t, 5, env.read(t, sid).MaxRounds)
}

func TestLeaveReassignsHost(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()
	sid := env.lobby(t, "Ana", "Bora", "Ceca")

	s, err := env.engine.Leave(ctx, sid, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p2", s.Host)
	assert.Equal(t, []string{"p2", "p3"}, []string{s.Players[0].ID, s.Players[1].ID})

	_, err = env.engine.Leave(ctx, sid, "p1")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestDrawerLeavesMidRound(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora", "Ceca")
	require.NoError(t, env.engine.Draw(ctx, sid, "p1", models.StrokeEvent{Type: models.StrokeStart, X: 1, Y: 1, Color: "#000", BrushWidth: 3}))

	s, err := env.engine.Leave(ctx, sid, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, s.Phase)
	assert.Equal(t, 2, s.RoundNumber)
	assert.Equal(t, "p2", s.CurrentDrawer)
	assert.Equal(t, "p2", s.Host)
	assert.Empty(t, s.DrawingHistory)
	assert.Equal(t, 60, s.TimeLeft)
	checkInvariants(t, s)
}

func TestGameStopsWhenOpponentsLeave(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora")

	s, err := env.engine.Leave(ctx, sid, "p2")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLobby, s.Phase)
	assert.Equal(t, 0, s.RoundNumber)
	assert.Empty(t, s.CurrentDrawer)
	assert.Empty(t, s.SecretWords)
	require.NotEmpty(t, s.ChatLog)
	assert.True(t, s.ChatLog[len(s.ChatLog)-1].IsSystem)
	checkInvariants(t, s)

	_, err = env.engine.Join(ctx, JoinRequest{Name: "Ceca", SessionID: sid})
	require.NoError(t, err)
	_, err = env.engine.StartGame(ctx, sid, "p1")
	assert.NoError(t, err)
}

func TestLastPlayerLeavingDeletesSession(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora")

	_, err := env.engine.Leave(ctx, sid, "p1")
	require.NoError(t, err)
	s, err := env.engine.Leave(ctx, sid, "p2")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = env.engine.Session(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLastPlayerLeavingActiveSessionDeletesIt(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	ctx := context.Background()

	s := models.NewSession(env.clock.Now())
	s.Players = []models.Player{{ID: "solo", Name: "Solo", LastSeen: env.clock.Now()}}
	s.Host = "solo"
	s.Phase = models.PhaseActive
	s.RoundNumber, s.MaxRounds = 1, 2
	s.CurrentDrawer = "solo"
	s.SecretWords = map[string]string{"solo": "sunce"}
	sid, err := env.store.CreateSession(ctx, s)
	require.NoError(t, err)

	left, err := env.engine.Leave(ctx, sid, "solo")
	require.NoError(t, err)
	assert.Nil(t, left)

	_, err = env.store.ReadSession(ctx, sid)
	assert.Error(t, err)
	_, err = env.engine.Session(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPlayAgain(t *testing.T) {
	cfg := models.DefaultGameConfig()
	cfg.MaxRounds = 1
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora")

	_, err := env.engine.PlayAgain(ctx, sid, "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)

	_, err = env.engine.AdvanceRound(ctx, sid, "p1", 1)
	require.NoError(t, err)

	s, err := env.engine.PlayAgain(ctx, sid, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseEnded, s.Phase)
	assert.Equal(t, "p2", s.Host)
	assert.Len(t, s.FinalScores, 2, "final scores survive departures")

	_, err = env.engine.PlayAgain(ctx, sid, "p1")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	s, err = env.engine.PlayAgain(ctx, sid, "p2")
	require.NoError(t, err)
	assert.Nil(t, s)
	_, err = env.engine.Session(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFinalScoresOrdering(t *testing.T) {
	env := newTestEnv(t, wordConfig("sunce"))
	ctx := context.Background()
	sid := env.active(t, "Ana", "Bora", "Ceca")

	// round 1: Ana draws, Ceca guesses. Ana 5, Ceca 10.
	_, err := env.engine.SubmitChat(ctx, sid, "p3", "sunce")
	require.NoError(t, err)
	_, err = env.engine.AdvanceRound(ctx, sid, "p1", 1)
	require.NoError(t, err)
	// round 2: Bora draws, nobody guesses. round 3: Ceca draws, Bora guesses. Ceca 15, Bora 10.
	_, err = env.engine.AdvanceRound(ctx, sid, "p1", 2)
	require.NoError(t, err)
	_, err = env.engine.SubmitChat(ctx, sid, "p2", "SUNCE")
	require.NoError(t, err)
	s, err := env.engine.AdvanceRound(ctx, sid, "p1", 3)
	require.NoError(t, err)

	require.Equal(t, models.PhaseEnded, s.Phase)
	require.Len(t, s.FinalScores, 3)
	assert.Equal(t, []string{"p3", "p2", "p1"},
		[]string{s.FinalScores[0].PlayerID, s.FinalScores[1].PlayerID, s.FinalScores[2].PlayerID})
	require.NotNil(t, s.Winner)
	assert.Equal(t, "Ceca", s.Winner.Name)
	assert.Equal(t, 15, s.Winner.Score)
	assert.Equal(t, 1, env.recorder.count())
}

func TestFinalScoresTiesKeepJoinOrder(t *testing.T) {
	env := newTestEnv(t, models.DefaultGameConfig())
	sid := env.active(t, "Ana", "Bora", "Ceca")
	s := env.read(t, sid)
	env.engine.finish(s)
	assert.Equal(t, "p1", s.Winner.PlayerID)
	assert.Equal(t, []string{"p1", "p2", "p3"},
		[]string{s.FinalScores[0].PlayerID, s.FinalScores[1].PlayerID, s.FinalScores[2].PlayerID})
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	env := newTestEnv(t, wordConfig("sunce"))
	ctx := context.Background()
	sid := env.active(t, "A", "B", "C", "D")

	ops := []func() error{
		func() error { _, err := env.engine.SubmitChat(ctx, sid, "p2", "sunce"); return err },
		func() error { _, err := env.engine.Leave(ctx, sid, "p3"); return err },
		func() error { _, _, err := env.engine.Tick(ctx, sid, "p1", env.read(t, sid).RoundNumber); return err },
		func() error { _, err := env.engine.Join(ctx, JoinRequest{Name: "E", SessionID: sid}); return err },
		func() error {
			_, err := env.engine.AdvanceRound(ctx, sid, env.read(t, sid).Host, env.read(t, sid).RoundNumber)
			return err
		},
		func() error { _, err := env.engine.Leave(ctx, sid, env.read(t, sid).CurrentDrawer); return err },
		func() error { return env.engine.Heartbeat(ctx, sid, "p2") },
	}
	for i, op := range ops {
		env.clock.Advance(time.Second)
		err := op()
		if err != nil {
			require.ErrorIs(t, err, ErrPlayerNotFound, "op %d", i)
		}
		checkInvariants(t, env.read(t, sid))
	}
}
