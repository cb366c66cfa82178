package game

import (
	"context"
	"math"

	"pictionary/models"
	"pictionary/store"

	"go.uber.org/zap"
)

const maxBrushWidth = 50

// advance moves the session to its next round, or ends the game after the last one.
// The next state depends only on roundNumber and currentDrawer, so replays are harmless.
func (e *Engine) advance(s *models.Session, finished *bool) error {
	if len(s.Players) == 0 {
		return store.ErrDeleteSession
	}
	if s.RoundNumber >= s.MaxRounds {
		e.finish(s)
		*finished = true
		return nil
	}
	e.startRound(s, nextDrawer(s))
	return nil
}

// nextDrawer follows the current drawer in join order. A drawer who is gone
// hands the turn to the first player.
func nextDrawer(s *models.Session) string {
	i := s.PlayerIndex(s.CurrentDrawer)
	if i < 0 {
		return s.Players[0].ID
	}
	return s.Players[(i+1)%len(s.Players)].ID
}

func (e *Engine) startRound(s *models.Session, drawerID string) {
	s.CurrentDrawer = drawerID
	s.SecretWords = map[string]string{drawerID: e.pickWord()}
	s.RoundNumber++
	s.TimeLeft = e.cfg.RoundSeconds
	s.DrawingHistory = []models.StrokeEvent{}
	s.ChatLog = []models.ChatEntry{}
	s.CorrectGuess = nil
}

// AdvanceRound ends round fromRound. Replays for a round that is already over are no-ops.
func (e *Engine) AdvanceRound(ctx context.Context, sessionID, requesterID string, fromRound int) (*models.Session, error) {
	s, err := e.update(ctx, sessionID, func(s *models.Session, finished *bool) error {
		if s.Host != requesterID {
			return ErrNotHost
		}
		if s.Phase != models.PhaseActive || s.RoundNumber != fromRound {
			return store.ErrNoChange
		}
		return e.advance(s, finished)
	})
	if err != nil {
		return nil, err
	}
	if s != nil {
		e.logger.Debug("Round advanced",
			zap.String("sessionID", sessionID), zap.Int("from", fromRound), zap.Int("round", s.RoundNumber))
	}
	return s, nil
}

// Tick counts the round timer down by one second. The tick that finds the timer
// at zero advances the round in the same transaction and reports advanced.
// The timer does not run while a correct guess is being shown.
func (e *Engine) Tick(ctx context.Context, sessionID, requesterID string, round int) (timeLeft int, advanced bool, err error) {
	s, err := e.update(ctx, sessionID, func(s *models.Session, finished *bool) error {
		advanced = false
		if s.Host != requesterID {
			return ErrNotHost
		}
		if s.Phase != models.PhaseActive || s.RoundNumber != round {
			return ErrStaleRound
		}
		if s.CorrectGuess != nil {
			return store.ErrNoChange
		}
		if s.TimeLeft > 0 {
			s.TimeLeft--
			return nil
		}
		advanced = true
		return e.advance(s, finished)
	})
	if err != nil {
		return 0, false, err
	}
	if s == nil {
		return 0, advanced, nil
	}
	if advanced {
		e.logger.Info("Round timed out",
			zap.String("sessionID", sessionID), zap.Int("round", round))
	}
	return s.TimeLeft, advanced, nil
}

func validStroke(ev models.StrokeEvent) bool {
	if ev.Type != models.StrokeStart && ev.Type != models.StrokeDraw {
		return false
	}
	for _, f := range []float64{ev.X, ev.Y, ev.BrushWidth} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return ev.Color != "" && ev.BrushWidth >= 1 && ev.BrushWidth <= maxBrushWidth
}

// Draw appends a stroke event. Only the current drawer may draw; anyone else
// gets ErrNotYourTurn, which callers are expected to swallow.
func (e *Engine) Draw(ctx context.Context, sessionID, playerID string, ev models.StrokeEvent) error {
	if !validStroke(ev) {
		e.logger.Debug("Ignoring invalid stroke", zap.String("sessionID", sessionID), zap.String("playerID", playerID))
		return nil
	}
	_, err := e.update(ctx, sessionID, func(s *models.Session, _ *bool) error {
		if !s.HasPlayer(playerID) {
			return ErrPlayerNotFound
		}
		if s.Phase != models.PhaseActive || s.CurrentDrawer != playerID {
			return ErrNotYourTurn
		}
		if len(s.DrawingHistory) >= e.cfg.MaxStrokes {
			return store.ErrNoChange
		}
		s.DrawingHistory = append(s.DrawingHistory, ev)
		return nil
	})
	return err
}

func (e *Engine) ClearCanvas(ctx context.Context, sessionID, playerID string) error {
	_, err := e.update(ctx, sessionID, func(s *models.Session, _ *bool) error {
		if !s.HasPlayer(playerID) {
			return ErrPlayerNotFound
		}
		if s.Phase != models.PhaseActive || s.CurrentDrawer != playerID {
			return ErrNotYourTurn
		}
		if len(s.DrawingHistory) == 0 {
			return store.ErrNoChange
		}
		s.DrawingHistory = []models.StrokeEvent{}
		return nil
	})
	return err
}
