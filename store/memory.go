package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pictionary/models"

	"go.uber.org/zap"
)

// MemoryStore keeps sessions in process memory. It is used by tests and by
// single-process deployments without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	subs     map[string]map[*memorySubscriber]struct{}
	hooks    *hookRegistry
	logger   *zap.Logger
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		subs:     make(map[string]map[*memorySubscriber]struct{}),
		hooks:    newHookRegistry(logger),
		logger:   logger,
		now:      time.Now,
	}
}

// memorySubscriber queues changes so a slow callback never blocks writers
// and never misses the latest state.
type memorySubscriber struct {
	mu     sync.Mutex
	queue  []Change
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (sub *memorySubscriber) push(c Change) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, c)
	sub.mu.Unlock()
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *memorySubscriber) drain() []Change {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	pending := sub.queue
	sub.queue = nil
	return pending
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *models.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := s.ID
	if id == "" {
		for {
			code, err := NewSessionCode(6)
			if err != nil {
				return "", err
			}
			if _, exists := m.sessions[code]; !exists {
				id = code
				break
			}
		}
	} else if _, exists := m.sessions[id]; exists {
		return "", fmt.Errorf("session %s already exists", id)
	}

	created, err := cloneSession(s)
	if err != nil {
		return "", err
	}
	created.ID = id
	created.Version = 1
	raw, err := json.Marshal(created)
	if err != nil {
		return "", err
	}
	m.sessions[id] = raw
	return id, nil
}

func (m *MemoryStore) ReadSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked(id)
}

func (m *MemoryStore) readLocked(id string) (*models.Session, error) {
	raw, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s := &models.Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	normalize(s)
	return s, nil
}

func (m *MemoryStore) SubscribeSession(ctx context.Context, id string, fn func(Change)) (func(), error) {
	sub := &memorySubscriber{notify: make(chan struct{}, 1), done: make(chan struct{})}

	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if m.subs[id] == nil {
		m.subs[id] = make(map[*memorySubscriber]struct{})
	}
	m.subs[id][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.notify:
				for _, c := range sub.drain() {
					select {
					case <-sub.done:
						return
					default:
					}
					fn(c)
				}
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		sub.once.Do(func() {
			m.mu.Lock()
			if subs := m.subs[id]; subs != nil {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(m.subs, id)
				}
			}
			m.mu.Unlock()
			close(sub.done)
		})
	}
	return unsubscribe, nil
}

// publishLocked hands each subscriber its own copy of the change.
func (m *MemoryStore) publishLocked(id string, s *models.Session, deleted bool) {
	for sub := range m.subs[id] {
		c := Change{SessionID: id, Deleted: deleted}
		if s != nil {
			copied, err := cloneSession(s)
			if err != nil {
				m.logger.Error("Failed to copy session for subscriber", zap.Error(err))
				continue
			}
			c.Session = copied
		}
		sub.push(c)
	}
	if deleted {
		delete(m.subs, id)
	}
}

func (m *MemoryStore) WritePartial(ctx context.Context, id string, field string, value interface{}) error {
	if !writableFields[field] {
		return fmt.Errorf("unknown session field %q", field)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return err
	}
	parts[field] = encoded
	merged, err := json.Marshal(parts)
	if err != nil {
		return err
	}
	s := &models.Session{}
	if err := json.Unmarshal(merged, s); err != nil {
		return fmt.Errorf("write %s: %w", field, err)
	}
	normalize(s)
	s.Version++
	return m.commitLocked(s)
}

func (m *MemoryStore) commitLocked(s *models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = raw
	m.publishLocked(s.ID, s, false)
	return nil
}

func (m *MemoryStore) TransactionalUpdate(ctx context.Context, id string, fn UpdateFunc) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.readLocked(id)
	if err != nil {
		return nil, err
	}
	version := s.Version

	err = fn(s)
	switch {
	case errors.Is(err, ErrNoChange):
		return m.readLocked(id)
	case errors.Is(err, ErrDeleteSession):
		delete(m.sessions, id)
		m.publishLocked(id, nil, true)
		return nil, nil
	case err != nil:
		return nil, err
	}

	s.ID = id
	s.Version = version + 1
	s.UpdatedAt = m.now()
	if err := m.commitLocked(s); err != nil {
		return nil, err
	}
	return cloneSession(s)
}

func (m *MemoryStore) RegisterDisconnectCleanup(ctx context.Context, id, playerID string, action func(context.Context)) (Registration, error) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.hooks.register(id, playerID, action), nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	m.publishLocked(id, nil, true)
	return nil
}

func (m *MemoryStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) Close() error {
	m.hooks.closeAll()
	return nil
}
