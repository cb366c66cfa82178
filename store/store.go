package store

import (
	"context"
	"errors"

	"pictionary/models"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when an optimistic update kept losing the race.
	ErrConflict = errors.New("session update conflict")

	// Returned from an update function to finish without writing anything.
	ErrNoChange = errors.New("no change")
	// Returned from an update function to delete the session inside the same transaction.
	ErrDeleteSession = errors.New("delete session")
)

// Change is delivered to subscribers after every committed write.
type Change struct {
	SessionID string
	Session   *models.Session
	Deleted   bool
}

// UpdateFunc mutates the session in place. It may run more than once when the
// transaction is retried, so it must not have side effects outside the session.
type UpdateFunc func(s *models.Session) error

// Registration is a cleanup action bound to one player's connection.
type Registration interface {
	// Trigger runs the cleanup once. Later calls are no-ops.
	Trigger()
	// Cancel drops the cleanup without running it.
	Cancel()
}

// Store は共有セッションの保存・配信を担うインターフェースです。
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) (string, error)
	ReadSession(ctx context.Context, id string) (*models.Session, error)
	SubscribeSession(ctx context.Context, id string, fn func(Change)) (func(), error)
	WritePartial(ctx context.Context, id string, field string, value interface{}) error
	// TransactionalUpdate returns the committed session, the unchanged session on
	// ErrNoChange, or nil when fn asked for deletion.
	TransactionalUpdate(ctx context.Context, id string, fn UpdateFunc) (*models.Session, error)
	RegisterDisconnectCleanup(ctx context.Context, id, playerID string, action func(context.Context)) (Registration, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessionIDs(ctx context.Context) ([]string, error)
	Close() error
}
