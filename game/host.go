package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"pictionary/models"

	"go.uber.org/zap"
)

// HostDriver runs the host-owned scheduled tasks for one player: the round timer,
// the delayed advance after a correct guess, and the presence sweep. It is fed
// every session snapshot and only acts while that player is host. Each task goes
// through a host-gated engine call, so a task left over from a former host is a no-op.
type HostDriver struct {
	engine    *Engine
	sessionID string
	self      string
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	stopped     bool
	round       int
	tickCancel  context.CancelFunc
	graceCancel context.CancelFunc
	sweepCancel context.CancelFunc
}

// NewHostDriver returns the player's driver. A driver created earlier for the same
// player is stopped, so a second tab or a reconnect never runs a second round timer.
func (e *Engine) NewHostDriver(ctx context.Context, sessionID, playerID string) *HostDriver {
	ctx, cancel := context.WithCancel(ctx)
	d := &HostDriver{
		engine:    e,
		sessionID: sessionID,
		self:      playerID,
		logger:    e.logger.With(zap.String("sessionID", sessionID), zap.String("playerID", playerID)),
		ctx:       ctx,
		cancel:    cancel,
	}

	key := driverKey(sessionID, playerID)
	e.driversMu.Lock()
	old := e.drivers[key]
	e.drivers[key] = d
	e.driversMu.Unlock()
	if old != nil {
		d.logger.Info("Superseding host driver of an older connection")
		old.Stop()
	}
	return d
}

func driverKey(sessionID, playerID string) string {
	return sessionID + "/" + playerID
}

// Observe reconciles the running tasks with a snapshot. A nil snapshot means the session is gone.
func (d *HostDriver) Observe(s *models.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if s == nil || s.Host != d.self {
		d.stopRoundLocked()
		d.stopSweepLocked()
		return
	}

	if d.sweepCancel == nil {
		d.sweepCancel = d.spawn(d.sweepLoop)
	}

	if s.Phase != models.PhaseActive {
		d.stopRoundLocked()
		return
	}
	if d.tickCancel == nil || d.round != s.RoundNumber {
		d.stopRoundLocked()
		d.round = s.RoundNumber
		round := s.RoundNumber
		d.tickCancel = d.spawn(func(ctx context.Context) { d.tickLoop(ctx, round) })
	}
	if s.CorrectGuess != nil && d.graceCancel == nil {
		round := s.RoundNumber
		d.graceCancel = d.spawn(func(ctx context.Context) { d.graceAdvance(ctx, round) })
	}
}

// Stop cancels every task and waits for them to return.
func (d *HostDriver) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.stopRoundLocked()
	d.stopSweepLocked()
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()

	key := driverKey(d.sessionID, d.self)
	d.engine.driversMu.Lock()
	if d.engine.drivers[key] == d {
		delete(d.engine.drivers, key)
	}
	d.engine.driversMu.Unlock()
}

func (d *HostDriver) spawn(task func(ctx context.Context)) context.CancelFunc {
	ctx, cancel := context.WithCancel(d.ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		task(ctx)
	}()
	return cancel
}

func (d *HostDriver) stopRoundLocked() {
	if d.tickCancel != nil {
		d.tickCancel()
		d.tickCancel = nil
	}
	if d.graceCancel != nil {
		d.graceCancel()
		d.graceCancel = nil
	}
	d.round = 0
}

func (d *HostDriver) stopSweepLocked() {
	if d.sweepCancel != nil {
		d.sweepCancel()
		d.sweepCancel = nil
	}
}

// done reports whether a task should give up after err.
func (d *HostDriver) done(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrStaleRound):
		return true
	case errors.Is(err, context.Canceled):
		return true
	}
	d.logger.Error("Host task failed", zap.Error(err))
	return false
}

func (d *HostDriver) tickLoop(ctx context.Context, round int) {
	ticker := time.NewTicker(d.engine.cfg.TickInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, advanced, err := d.engine.Tick(ctx, d.sessionID, d.self, round)
			if d.done(err) || advanced {
				return
			}
		}
	}
}

func (d *HostDriver) graceAdvance(ctx context.Context, round int) {
	timer := time.NewTimer(d.engine.cfg.GraceDelay.Std())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	// 一時的なストア障害では諦めない。ティックは正解表示中止まっている
	retry := time.NewTicker(d.engine.cfg.TickInterval.Std())
	defer retry.Stop()
	for {
		_, err := d.engine.AdvanceRound(ctx, d.sessionID, d.self, round)
		if err == nil || d.done(err) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-retry.C:
		}
	}
}

func (d *HostDriver) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.engine.cfg.SweepInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.engine.SweepStale(ctx, d.sessionID, d.self); d.done(err) {
				return
			}
		}
	}
}
