package game

import (
	"context"
	"errors"

	"pictionary/models"
	"pictionary/store"

	"go.uber.org/zap"
)

// Heartbeat marks the player as alive.
func (e *Engine) Heartbeat(ctx context.Context, sessionID, playerID string) error {
	_, err := e.update(ctx, sessionID, func(s *models.Session, _ *bool) error {
		p := s.Player(playerID)
		if p == nil {
			return ErrPlayerNotFound
		}
		p.LastSeen = e.now()
		return nil
	})
	return err
}

// SweepStale removes players whose heartbeat stopped. It backs up the disconnect
// cleanup and only the host runs it. It returns the ids it removed.
func (e *Engine) SweepStale(ctx context.Context, sessionID, requesterID string) ([]string, error) {
	var removed []string
	_, err := e.update(ctx, sessionID, func(s *models.Session, finished *bool) error {
		removed = nil
		if s.Host != requesterID {
			return ErrNotHost
		}
		cutoff := e.now().Add(-e.cfg.PresenceTimeout.Std())
		var stale []string
		for _, p := range s.Players {
			if p.ID != requesterID && p.LastSeen.Before(cutoff) {
				stale = append(stale, p.ID)
			}
		}
		if len(stale) == 0 {
			return store.ErrNoChange
		}
		for _, id := range stale {
			if err := e.depart(s, id, finished); err != nil {
				return err
			}
		}
		removed = stale
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		e.logger.Info("Removed stale players", zap.String("sessionID", sessionID), zap.Strings("playerIDs", removed))
	}
	return removed, nil
}

// Presence ties a player to one live connection.
type Presence struct {
	SessionID string
	PlayerID  string
	reg       store.Registration
}

// Close reports the connection as lost; the player is removed.
func (p *Presence) Close() { p.reg.Trigger() }

// Release forgets the connection without removing the player, for a player that already left.
func (p *Presence) Release() { p.reg.Cancel() }

// Connect registers the disconnect cleanup for a player's connection.
func (e *Engine) Connect(ctx context.Context, sessionID, playerID string) (*Presence, error) {
	s, err := e.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.HasPlayer(playerID) {
		return nil, ErrPlayerNotFound
	}
	reg, err := e.store.RegisterDisconnectCleanup(ctx, sessionID, playerID, func(ctx context.Context) {
		_, err := e.Leave(ctx, sessionID, playerID)
		if err != nil && !errors.Is(err, ErrPlayerNotFound) && !errors.Is(err, ErrSessionNotFound) {
			e.logger.Error("Disconnect cleanup failed",
				zap.String("sessionID", sessionID), zap.String("playerID", playerID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &Presence{SessionID: sessionID, PlayerID: playerID, reg: reg}, nil
}

// ReapSessions deletes sessions nobody has heartbeated for ReapAfter. It is the
// backstop for sessions whose host vanished together with everyone else.
func (e *Engine) ReapSessions(ctx context.Context) (int, error) {
	ids, err := e.store.ListSessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, id := range ids {
		cutoff := e.now().Add(-e.cfg.ReapAfter.Std())
		s, err := e.store.TransactionalUpdate(ctx, id, func(s *models.Session) error {
			if len(s.Players) == 0 && !s.CreatedAt.Before(cutoff) {
				// still being joined
				return store.ErrNoChange
			}
			for _, p := range s.Players {
				if !p.LastSeen.Before(cutoff) {
					return store.ErrNoChange
				}
			}
			return store.ErrDeleteSession
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			e.logger.Error("Failed to reap session", zap.String("sessionID", id), zap.Error(err))
			continue
		}
		if s == nil {
			reaped++
			e.logger.Info("Reaped abandoned session", zap.String("sessionID", id))
		}
	}
	return reaped, nil
}
