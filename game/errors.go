package game

import (
	"errors"

	"pictionary/store"
)

var (
	ErrInvalidName         = errors.New("invalid name")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotHost             = errors.New("only the host can do that")
	ErrInsufficientPlayers = errors.New("not enough players to start")
	ErrPlayerNotFound      = errors.New("player not found in session")
	ErrNotYourTurn         = errors.New("not your turn to draw")
	ErrWrongPhase          = errors.New("not allowed in the current phase")
	// ErrStaleRound tells a timer that the round it was started for is over.
	ErrStaleRound = errors.New("round already over")
)

// storeErr maps store errors onto the game's taxonomy.
func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// ErrorCode names an error for clients. Unknown errors are internal.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrInsufficientPlayers):
		return "insufficient_players"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	}
	return "internal_error"
}
