package game

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"pictionary/models"
	"pictionary/store"

	"go.uber.org/zap"
)

type JoinRequest struct {
	Name string
	// SessionID is empty to create a new session.
	SessionID string
	// CallerToken identifies the browser tab. A rejoin with the same token replaces the old player.
	CallerToken string
}

type JoinResult struct {
	SessionID string
	PlayerID  string
	Session   *models.Session
}

func (e *Engine) validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > e.cfg.MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// Join adds a player, creating the session first when no id is given.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	name, err := e.validName(req.Name)
	if err != nil {
		return nil, err
	}

	sessionID := strings.ToUpper(strings.TrimSpace(req.SessionID))
	created := false
	if sessionID == "" {
		sessionID, err = e.store.CreateSession(ctx, models.NewSession(e.now()))
		if err != nil {
			return nil, err
		}
		created = true
		e.logger.Info("Session created", zap.String("sessionID", sessionID))
	}

	playerID := e.newID()
	s, err := e.update(ctx, sessionID, func(s *models.Session, finished *bool) error {
		if s.Phase == models.PhaseEnded {
			return ErrWrongPhase
		}

		drawerReplaced := false
		if req.CallerToken != "" {
			for _, p := range append([]models.Player(nil), s.Players...) {
				if p.CallerToken != req.CallerToken {
					continue
				}
				if p.ID == s.CurrentDrawer {
					drawerReplaced = true
				}
				s.RemovePlayer(p.ID)
			}
		}

		now := e.now()
		s.Players = append(s.Players, models.Player{
			ID:          playerID,
			Name:        name,
			LastSeen:    now,
			JoinedAt:    now,
			CallerToken: req.CallerToken,
		})
		// decided against the post-insert membership
		if !s.HasPlayer(s.Host) {
			s.Host = s.Players[0].ID
		}
		if drawerReplaced && s.Phase == models.PhaseActive {
			return e.advance(s, finished)
		}
		return nil
	})
	if err != nil {
		if created {
			if delErr := e.store.DeleteSession(ctx, sessionID); delErr != nil && !errors.Is(delErr, store.ErrNotFound) {
				e.logger.Error("Failed to delete abandoned session", zap.String("sessionID", sessionID), zap.Error(delErr))
			}
		}
		return nil, err
	}

	e.logger.Info("Player joined",
		zap.String("sessionID", sessionID), zap.String("playerID", playerID), zap.String("name", name))
	return &JoinResult{SessionID: sessionID, PlayerID: playerID, Session: s}, nil
}

// StartGame moves a lobby into its first round.
func (e *Engine) StartGame(ctx context.Context, sessionID, requesterID string) (*models.Session, error) {
	s, err := e.update(ctx, sessionID, func(s *models.Session, _ *bool) error {
		if s.Host != requesterID {
			return ErrNotHost
		}
		if s.Phase != models.PhaseLobby {
			return ErrWrongPhase
		}
		if len(s.Players) < e.cfg.MinPlayers {
			return ErrInsufficientPlayers
		}

		s.Phase = models.PhaseActive
		s.MaxRounds = e.cfg.MaxRounds
		if s.MaxRounds <= 0 {
			s.MaxRounds = len(s.Players) * e.cfg.RoundsPerPlayer
		}
		s.RoundNumber = 0
		s.Winner = nil
		s.FinalScores = nil
		for i := range s.Players {
			s.Players[i].Score = 0
		}
		e.startRound(s, s.Players[0].ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Game started", zap.String("sessionID", sessionID), zap.Int("maxRounds", s.MaxRounds))
	return s, nil
}

// Leave removes a player after an explicit leave or a lost connection.
// A nil session means the session was deleted.
func (e *Engine) Leave(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	s, err := e.update(ctx, sessionID, func(s *models.Session, finished *bool) error {
		return e.depart(s, playerID, finished)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Player left", zap.String("sessionID", sessionID), zap.String("playerID", playerID))
	return s, nil
}

// PlayAgain releases a player from a finished game so the client can start a new join.
func (e *Engine) PlayAgain(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	return e.update(ctx, sessionID, func(s *models.Session, finished *bool) error {
		if !s.HasPlayer(playerID) {
			return ErrPlayerNotFound
		}
		if s.Phase != models.PhaseEnded {
			return ErrWrongPhase
		}
		return e.depart(s, playerID, finished)
	})
}

// depart removes the player and repairs host, drawer and phase.
func (e *Engine) depart(s *models.Session, playerID string, finished *bool) error {
	wasDrawer := s.Phase == models.PhaseActive && s.CurrentDrawer == playerID
	if _, ok := s.RemovePlayer(playerID); !ok {
		return ErrPlayerNotFound
	}
	if len(s.Players) == 0 {
		return store.ErrDeleteSession
	}
	if !s.HasPlayer(s.Host) {
		s.Host = s.Players[0].ID
	}
	if s.Phase != models.PhaseActive {
		return nil
	}
	if len(s.Players) < e.cfg.MinPlayers {
		e.stop(s)
		return nil
	}
	if wasDrawer {
		return e.advance(s, finished)
	}
	return nil
}

// stop sends a game that lost its opponents back to the lobby.
func (e *Engine) stop(s *models.Session) {
	s.Phase = models.PhaseLobby
	s.RoundNumber = 0
	s.MaxRounds = 0
	s.CurrentDrawer = ""
	s.SecretWords = map[string]string{}
	s.TimeLeft = 0
	s.DrawingHistory = []models.StrokeEvent{}
	s.CorrectGuess = nil
	e.appendChat(s, models.ChatEntry{
		Author:    systemAuthor,
		Text:      "Not enough players, game stopped",
		Timestamp: e.now(),
		IsSystem:  true,
	})
}

// finish ends the game. Ties keep join order.
func (e *Engine) finish(s *models.Session) {
	scores := make([]models.ScoreEntry, 0, len(s.Players))
	for _, p := range s.Players {
		scores = append(scores, models.ScoreEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	s.Phase = models.PhaseEnded
	s.FinalScores = scores
	s.Winner = nil
	if len(scores) > 0 {
		winner := scores[0]
		s.Winner = &winner
	}
	s.CurrentDrawer = ""
	s.SecretWords = map[string]string{}
	s.TimeLeft = 0
	s.CorrectGuess = nil
}
