// Package live runs race monitoring sessions: each active race gets a
// goroutine that polls the timing feed, asks the model for a fresh
// prediction and fans it out to subscribers.
package live

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paddocklabs/gridcast/internal/adapters/racedata"
	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/types"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/paddocklabs/gridcast/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultTickInterval  = 5 * time.Second
	defaultSweepInterval = 60 * time.Second
	defaultIdleExpiry    = 60 * time.Second
	defaultMaxDuration   = 4 * time.Hour
)

// Predictor supplies the active combiner. The lifecycle manager satisfies
// this; the indirection lets the engine pick up a promoted model mid-race.
type Predictor interface {
	Combiner() *ensemble.Combiner
}

// Engine owns the set of active race sessions and the subscriber registry.
type Engine struct {
	predictor Predictor
	source    racedata.Source
	registry  *Registry

	mu       sync.Mutex
	sessions map[string]*session

	tick        time.Duration
	sweep       time.Duration
	idleExpiry  time.Duration
	maxDuration time.Duration

	now func() time.Time
	log logger.Logger

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTickInterval sets how often each session polls the feed.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithSweepInterval sets how often the expiry sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweep = d
		}
	}
}

// WithIdleExpiry sets how long a session without subscribers survives.
func WithIdleExpiry(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.idleExpiry = d
		}
	}
}

// WithMaxSessionDuration caps the total lifetime of one session.
func WithMaxSessionDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maxDuration = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger overrides the engine's logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates a live engine with no active sessions.
func NewEngine(predictor Predictor, source racedata.Source, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		predictor:   predictor,
		source:      source,
		registry:    registry,
		sessions:    map[string]*session{},
		tick:        defaultTickInterval,
		sweep:       defaultSweepInterval,
		idleExpiry:  defaultIdleExpiry,
		maxDuration: defaultMaxDuration,
		now:         time.Now,
		log:         logger.Named("live"),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartRace opens a monitoring session for a race.
func (e *Engine) StartRace(ctx context.Context, raceID string) (types.SessionInfo, error) {
	e.mu.Lock()
	if _, exists := e.sessions[raceID]; exists {
		e.mu.Unlock()
		return types.SessionInfo{}, ErrAlreadyActive
	}
	s := newSession(raceID, e.now())
	e.sessions[raceID] = s
	count := len(e.sessions)
	e.mu.Unlock()

	metrics.UpdateActiveSessions(count)
	e.log.Info("race session started", logger.String("race_id", raceID))

	go e.monitor(ctx, s)
	return s.info(), nil
}

// StopRace closes a session and waits for its monitor loop to exit.
func (e *Engine) StopRace(raceID string) error {
	s, ok := e.detach(raceID)
	if !ok {
		return ErrNotActive
	}
	s.stop()
	s.wait()
	e.log.Info("race session stopped", logger.String("race_id", raceID))
	return nil
}

// detach removes a session from the table and drops its subscribers. The
// caller decides whether to wait for the monitor loop.
func (e *Engine) detach(raceID string) (*session, bool) {
	e.mu.Lock()
	s, ok := e.sessions[raceID]
	if ok {
		delete(e.sessions, raceID)
	}
	count := len(e.sessions)
	e.mu.Unlock()

	if !ok {
		return nil, false
	}

	e.registry.DropAll(raceID)
	metrics.UpdateActiveSessions(count)
	return s, true
}

// Subscribe attaches a consumer to an active race feed.
func (e *Engine) Subscribe(raceID string) (*Subscription, error) {
	e.mu.Lock()
	s, ok := e.sessions[raceID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotActive
	}

	s.touch(e.now())
	sub := e.registry.Subscribe(raceID)
	sub.Last = s.lastPrediction()
	return sub, nil
}

// Unsubscribe detaches one consumer from a race feed.
func (e *Engine) Unsubscribe(raceID string, id uuid.UUID) {
	e.registry.Unsubscribe(raceID, id)

	e.mu.Lock()
	s, ok := e.sessions[raceID]
	e.mu.Unlock()
	if ok {
		s.touch(e.now())
	}
}

// IsActive reports whether a race has an open session.
func (e *Engine) IsActive(raceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[raceID]
	return ok
}

// ActiveRaces lists open sessions, ordered by race ID.
func (e *Engine) ActiveRaces() []types.SessionInfo {
	e.mu.Lock()
	infos := make([]types.SessionInfo, 0, len(e.sessions))
	for _, s := range e.sessions {
		infos = append(infos, s.info())
	}
	e.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].RaceID < infos[j].RaceID })
	return infos
}

// monitor is one session's poll loop. The stop check sits at the top so a
// stop request never races a fetch already in flight.
func (e *Engine) monitor(ctx context.Context, s *session) {
	defer close(s.doneCh)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := e.now()
		snap, err := e.source.Snapshot(ctx, s.raceID)
		if err != nil {
			if errors.Is(err, racedata.ErrRaceFinished) {
				e.log.Info("race finished, closing session",
					logger.String("race_id", s.raceID))
				e.detach(s.raceID)
				return
			}
			metrics.RecordSnapshotError()
			e.log.Warn("snapshot fetch failed",
				logger.String("race_id", s.raceID),
				logger.Error(err))
			continue
		}

		combiner := e.predictor.Combiner()
		if combiner == nil {
			e.log.Warn("no model loaded, skipping tick",
				logger.String("race_id", s.raceID))
			continue
		}

		pred := combiner.CombineLive(ctx, s.raceID, feature.FromSnapshot(snap))
		s.setLast(pred)
		delivered, dropped := e.registry.Broadcast(s.raceID, pred)
		s.predictions.Add(1)
		if delivered > 0 {
			s.touch(e.now())
		}
		metrics.RecordTickLatency(float64(e.now().Sub(start).Milliseconds()))

		e.log.Debug("prediction broadcast",
			logger.String("race_id", s.raceID),
			logger.Int("lap", pred.CurrentLap),
			logger.Int("delivered", delivered),
			logger.Int("dropped", dropped))
	}
}

// Start launches the background expiry sweeper.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

// sweepExpired closes sessions that outlived the hard cap or sat without
// subscribers past the idle window.
func (e *Engine) sweepExpired() {
	now := e.now()

	e.mu.Lock()
	candidates := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		candidates = append(candidates, s)
	}
	e.mu.Unlock()

	for _, s := range candidates {
		overCap := now.Sub(s.startedAt) >= e.maxDuration
		idle := e.registry.Count(s.raceID) == 0 && now.Sub(s.lastActiveAt()) >= e.idleExpiry
		if !overCap && !idle {
			continue
		}

		if _, ok := e.detach(s.raceID); !ok {
			continue
		}
		s.stop()
		s.wait()
		metrics.RecordExpiredSession()
		e.log.Info("race session expired",
			logger.String("race_id", s.raceID),
			logger.Bool("over_duration_cap", overCap))
	}
}

// Stop halts the sweeper and every open session.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})

	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.doneCh
	}

	for _, info := range e.ActiveRaces() {
		if err := e.StopRace(info.RaceID); err != nil && !errors.Is(err, ErrNotActive) {
			e.log.Error("session stop failed",
				logger.String("race_id", info.RaceID),
				logger.Error(err))
		}
	}
}
