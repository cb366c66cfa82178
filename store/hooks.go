package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const cleanupTimeout = 10 * time.Second

// hookRegistry keeps the disconnect cleanups of the connections served by this process.
type hookRegistry struct {
	mu     sync.Mutex
	hooks  map[*registration]struct{}
	closed bool
	logger *zap.Logger
}

func newHookRegistry(logger *zap.Logger) *hookRegistry {
	return &hookRegistry{hooks: make(map[*registration]struct{}), logger: logger}
}

type registration struct {
	registry  *hookRegistry
	sessionID string
	playerID  string
	action    func(context.Context)
	once      sync.Once
}

func (h *hookRegistry) register(sessionID, playerID string, action func(context.Context)) *registration {
	r := &registration{registry: h, sessionID: sessionID, playerID: playerID, action: action}
	h.mu.Lock()
	closed := h.closed
	if !closed {
		h.hooks[r] = struct{}{}
	}
	h.mu.Unlock()
	if closed {
		// the store is shutting down; the player is gone already
		r.Trigger()
	}
	return r
}

func (r *registration) Trigger() {
	r.once.Do(func() {
		r.registry.forget(r)
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		r.registry.logger.Info("Running disconnect cleanup",
			zap.String("sessionID", r.sessionID), zap.String("playerID", r.playerID))
		r.action(ctx)
	})
}

func (r *registration) Cancel() {
	r.once.Do(func() {
		r.registry.forget(r)
	})
}

func (h *hookRegistry) forget(r *registration) {
	h.mu.Lock()
	delete(h.hooks, r)
	h.mu.Unlock()
}

// closeAll fires every outstanding cleanup. Used on shutdown.
func (h *hookRegistry) closeAll() {
	h.mu.Lock()
	h.closed = true
	pending := make([]*registration, 0, len(h.hooks))
	for r := range h.hooks {
		pending = append(pending, r)
	}
	h.mu.Unlock()

	for _, r := range pending {
		r.Trigger()
	}
}
