package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"pictionary/models"
	"pictionary/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultRecorder archives finished games. Failures never affect the session.
type ResultRecorder interface {
	RecordResult(ctx context.Context, s *models.Session) error
}

// Engine applies the game rules to sessions held in a store. It keeps no session
// state of its own: every operation is a read-modify-write against the store.
type Engine struct {
	store    store.Store
	cfg      models.GameConfig
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
	recorder ResultRecorder

	rngMu sync.Mutex
	rng   *rand.Rand
	words []string

	// one host driver per player in this process; see NewHostDriver
	driversMu sync.Mutex
	drivers   map[string]*HostDriver
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func WithRecorder(r ResultRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(st store.Store, cfg models.GameConfig, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		cfg:     withDefaults(cfg),
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		drivers: make(map[string]*HostDriver),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.words = e.cfg.Words
	if len(e.words) == 0 {
		e.words = defaultWords
	}
	return e
}

// withDefaults fills every unset knob from DefaultGameConfig.
func withDefaults(cfg models.GameConfig) models.GameConfig {
	def := models.DefaultGameConfig()
	if cfg.RoundSeconds <= 0 {
		cfg.RoundSeconds = def.RoundSeconds
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = def.GraceDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.PresenceTimeout <= 0 {
		cfg.PresenceTimeout = def.PresenceTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.ReapAfter <= 0 {
		cfg.ReapAfter = def.ReapAfter
	}
	if cfg.RoundsPerPlayer <= 0 {
		cfg.RoundsPerPlayer = def.RoundsPerPlayer
	}
	if cfg.MinPlayers < 2 {
		cfg.MinPlayers = def.MinPlayers
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}
	if cfg.MaxChatLength <= 0 {
		cfg.MaxChatLength = def.MaxChatLength
	}
	if cfg.MaxChatLog <= 0 {
		cfg.MaxChatLog = def.MaxChatLog
	}
	if cfg.MaxStrokes <= 0 {
		cfg.MaxStrokes = def.MaxStrokes
	}
	if cfg.GuesserPoints <= 0 {
		cfg.GuesserPoints = def.GuesserPoints
	}
	if cfg.DrawerPoints <= 0 {
		cfg.DrawerPoints = def.DrawerPoints
	}
	return cfg
}

func (e *Engine) Config() models.GameConfig { return e.cfg }

// Session reads the current snapshot.
func (e *Engine) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := e.store.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}
	return s, nil
}

// Subscribe forwards every committed change of the session to fn.
func (e *Engine) Subscribe(ctx context.Context, sessionID string, fn func(store.Change)) (func(), error) {
	unsubscribe, err := e.store.SubscribeSession(ctx, sessionID, fn)
	if err != nil {
		return nil, storeErr(err)
	}
	return unsubscribe, nil
}

// update runs fn in a store transaction. The finished flag handed to fn is
// reset before every attempt; when the committed attempt set it, the result is archived.
func (e *Engine) update(ctx context.Context, sessionID string, fn func(s *models.Session, finished *bool) error) (*models.Session, error) {
	var finished bool
	s, err := e.store.TransactionalUpdate(ctx, sessionID, func(s *models.Session) error {
		finished = false
		return fn(s, &finished)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if s == nil {
		e.logger.Info("Session deleted", zap.String("sessionID", sessionID))
		return nil, nil
	}
	if finished {
		e.record(ctx, s)
	}
	return s, nil
}

func (e *Engine) record(ctx context.Context, s *models.Session) {
	e.logger.Info("Game finished",
		zap.String("sessionID", s.ID), zap.Int("rounds", s.RoundNumber), zap.Int("players", len(s.Players)))
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordResult(ctx, s); err != nil {
		e.logger.Error("Failed to record game result", zap.String("sessionID", s.ID), zap.Error(err))
	}
}
