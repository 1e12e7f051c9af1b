// Package service provides the core business service that implements the
// dependencies required by the HTTP API and the websocket feed.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paddocklabs/gridcast/internal/adapters/artifact"
	"github.com/paddocklabs/gridcast/internal/adapters/history"
	"github.com/paddocklabs/gridcast/internal/adapters/racedata"
	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/lifecycle"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
	"github.com/paddocklabs/gridcast/internal/live"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/paddocklabs/gridcast/pkg/metrics"
)

// Service wires the prediction core together: race data source, artifact
// store, performance history, lifecycle manager and live engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	source    racedata.Source
	artifacts *artifact.Store
	history   history.Store
	manager   *lifecycle.Manager
	registry  *live.Registry
	engine    *live.Engine

	// Configuration
	artifactDir     string
	defaultSeason   int
	historyCapacity int
	retrainInterval time.Duration
	checkInterval   time.Duration
	tickInterval    time.Duration
	sweepInterval   time.Duration
	idleExpiry      time.Duration
	maxSessionAge   time.Duration
	lapDuration     time.Duration

	perfWindow        int
	accuracyThreshold float64
	minValAccuracy    float64
	minValPrecision   float64
	minValRecall      float64
	formWeight        float64
	gridWeight        float64
	paceWeight        float64
	candidatePool     []string
	subscriberBuffer  int

	// Last prediction served per race, consulted when an outcome lands.
	served sync.Map // raceID -> model.PredictionResult

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithArtifactDir sets the directory holding persisted model parameters.
func WithArtifactDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.artifactDir = dir
		}
	}
}

// WithDefaultSeason sets the season assumed for race IDs without a year.
func WithDefaultSeason(year int) Option {
	return func(s *Service) {
		if year > 0 {
			s.defaultSeason = year
		}
	}
}

// WithHistoryCapacity bounds the performance record window.
func WithHistoryCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyCapacity = n
		}
	}
}

// WithRetrainInterval sets the scheduled retrain age.
func WithRetrainInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retrainInterval = d
		}
	}
}

// WithRetrainCheckInterval sets how often retrain triggers are evaluated.
func WithRetrainCheckInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithBroadcastInterval sets the live prediction cadence.
func WithBroadcastInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithSweepInterval sets how often the live engine reaps expired sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithSessionIdleExpiry sets how long an unwatched session survives.
func WithSessionIdleExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.idleExpiry = d
		}
	}
}

// WithMaxSessionDuration caps one session's lifetime.
func WithMaxSessionDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxSessionAge = d
		}
	}
}

// WithSimulatedLapDuration sets the simulated feed's lap pace.
func WithSimulatedLapDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lapDuration = d
		}
	}
}

// WithPerformanceWindow sets how many recent races the degradation trigger
// averages over.
func WithPerformanceWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.perfWindow = n
		}
	}
}

// WithAccuracyThreshold sets the window accuracy below which a retrain is
// triggered.
func WithAccuracyThreshold(v float64) Option {
	return func(s *Service) {
		if v > 0 && v <= 1 {
			s.accuracyThreshold = v
		}
	}
}

// WithValidationThresholds sets the holdout accuracy, precision and recall
// floors a candidate model must clear to be promoted.
func WithValidationThresholds(accuracy, precision, recall float64) Option {
	return func(s *Service) {
		if accuracy >= 0 && accuracy <= 1 {
			s.minValAccuracy = accuracy
		}
		if precision >= 0 && precision <= 1 {
			s.minValPrecision = precision
		}
		if recall >= 0 && recall <= 1 {
			s.minValRecall = recall
		}
	}
}

// WithUnitWeights sets the combination weights of the stock unit set.
func WithUnitWeights(form, grid, pace float64) Option {
	return func(s *Service) {
		if form > 0 && grid > 0 && pace > 0 {
			s.formWeight, s.gridWeight, s.paceWeight = form, grid, pace
		}
	}
}

// WithCandidatePool overrides the fallback candidate pool. Empty keeps the
// data source's roster.
func WithCandidatePool(pool []string) Option {
	return func(s *Service) {
		if len(pool) > 0 {
			s.candidatePool = pool
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber prediction channel depth.
func WithSubscriberBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.subscriberBuffer = n
		}
	}
}

// WithSource replaces the race data source. Tests inject fast simulations
// through this.
func WithSource(src racedata.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		artifactDir:     "data/models",
		defaultSeason:   time.Now().Year(),
		historyCapacity: 500,
		retrainInterval: 24 * time.Hour,
		checkInterval:   10 * time.Minute,
		tickInterval:    5 * time.Second,
		sweepInterval:   60 * time.Second,
		idleExpiry:      60 * time.Second,
		maxSessionAge:   4 * time.Hour,
		lapDuration:     5 * time.Second,

		perfWindow:        10,
		accuracyThreshold: 0.45,
		minValAccuracy:    0.2,
		minValPrecision:   0.1,
		minValRecall:      0.1,
		formWeight:        ensemble.DefaultFormWeight,
		gridWeight:        ensemble.DefaultGridWeight,
		paceWeight:        ensemble.DefaultPaceWeight,
		subscriberBuffer:  8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info("starting prediction service")

	if s.source == nil {
		s.source = racedata.NewSimSource(
			racedata.WithLapDuration(s.lapDuration),
		)
	}

	store, err := artifact.NewStore(s.artifactDir)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	s.artifacts = store

	s.history = history.NewMemStore(
		history.WithCapacity(s.historyCapacity),
	)

	mgrOpts := []lifecycle.Option{
		lifecycle.WithRetrainInterval(s.retrainInterval),
		lifecycle.WithCheckInterval(s.checkInterval),
		lifecycle.WithPerformanceWindow(s.perfWindow),
		lifecycle.WithAccuracyThreshold(s.accuracyThreshold),
		lifecycle.WithMinValidationAccuracy(s.minValAccuracy),
		lifecycle.WithMinValidationPrecision(s.minValPrecision),
		lifecycle.WithMinValidationRecall(s.minValRecall),
		lifecycle.WithUnitFactory(func() []ensemble.Trainable {
			return []ensemble.Trainable{
				ensemble.NewFormUnit(s.formWeight),
				ensemble.NewGridUnit(s.gridWeight),
				ensemble.NewPaceUnit(s.paceWeight),
			}
		}),
	}
	if len(s.candidatePool) > 0 {
		mgrOpts = append(mgrOpts,
			lifecycle.WithCombinerOptions(ensemble.WithCandidatePool(s.candidatePool)))
	}
	s.manager = lifecycle.NewManager(s.artifacts, s.history, s.source, mgrOpts...)
	if err := s.manager.Load(ctx); err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	s.registry = live.NewRegistry(
		live.WithSubscriberBuffer(s.subscriberBuffer),
	)
	s.engine = live.NewEngine(s.manager, s.source, s.registry,
		live.WithTickInterval(s.tickInterval),
		live.WithSweepInterval(s.sweepInterval),
		live.WithIdleExpiry(s.idleExpiry),
		live.WithMaxSessionDuration(s.maxSessionAge),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.manager.Start(runCtx)
	s.engine.Start(runCtx)

	s.started = true
	s.logger.Info("prediction service started",
		logger.String("artifact_dir", s.artifactDir),
		logger.Duration("broadcast_interval", s.tickInterval),
		logger.Duration("retrain_interval", s.retrainInterval),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info("stopping prediction service")

	s.engine.Stop()
	s.manager.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	s.started = false
	s.logger.Info("prediction service stopped")
}

// Engine exposes the live engine to the websocket adapter.
func (s *Service) Engine() *live.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ref resolves a raw race ID against the configured default season.
func (s *Service) ref(raceID string) model.RaceRef {
	return model.ParseRaceRef(raceID, s.defaultSeason)
}

// PredictRace produces a pre-race prediction from the starting grid.
func (s *Service) PredictRace(ctx context.Context, raceID string) (model.PredictionResult, error) {
	combiner := s.manager.Combiner()
	if combiner == nil {
		return model.PredictionResult{}, lifecycle.ErrNotLoaded
	}

	ref := s.ref(raceID)
	entries, err := s.source.Grid(ctx, ref)
	if err != nil {
		return model.PredictionResult{}, fmt.Errorf("fetch grid for %s: %w", ref.ID, err)
	}

	result := combiner.Combine(ctx, feature.PreRace(ref, entries))
	s.served.Store(ref.ID, result)
	return result, nil
}

// PredictPodium produces per-candidate podium probabilities for a race.
func (s *Service) PredictPodium(ctx context.Context, raceID string) (model.PodiumProbabilities, error) {
	combiner := s.manager.Combiner()
	if combiner == nil {
		return model.PodiumProbabilities{}, lifecycle.ErrNotLoaded
	}

	ref := s.ref(raceID)
	entries, err := s.source.Grid(ctx, ref)
	if err != nil {
		return model.PodiumProbabilities{}, fmt.Errorf("fetch grid for %s: %w", ref.ID, err)
	}

	return combiner.CombinePodium(ctx, feature.PreRace(ref, entries)), nil
}

// RecordOutcome scores a finished race against the prediction served for
// it. When no prediction was served, one is computed first so the outcome
// still lands in the history.
func (s *Service) RecordOutcome(ctx context.Context, raceID string, actual model.RaceOutcome) (model.AccuracyMetrics, error) {
	ref := s.ref(raceID)

	var predicted model.PredictionResult
	if v, ok := s.served.Load(ref.ID); ok {
		predicted = v.(model.PredictionResult)
	} else {
		var err error
		predicted, err = s.PredictRace(ctx, raceID)
		if err != nil {
			return model.AccuracyMetrics{}, err
		}
	}

	acc, err := s.manager.RecordOutcome(ctx, ref.ID, predicted, actual)
	if err != nil {
		return model.AccuracyMetrics{}, err
	}
	s.served.Delete(ref.ID)
	return acc, nil
}

// ModelStatus reports the lifecycle state and aggregate performance.
func (s *Service) ModelStatus(ctx context.Context) types.ModelStatus {
	return s.manager.Status(ctx)
}

// TriggerRetrain kicks off a retrain cycle in the background and returns
// immediately. The outcome lands in logs and model status.
func (s *Service) TriggerRetrain() {
	go func() {
		if err := s.manager.ForceRetrain(context.Background()); err != nil {
			s.logger.Warn("triggered retrain did not promote", logger.Error(err))
		}
	}()
}

// StartRace opens a live monitoring session.
func (s *Service) StartRace(ctx context.Context, raceID string) (types.SessionInfo, error) {
	return s.engine.StartRace(ctx, s.ref(raceID).ID)
}

// StopRace closes a live monitoring session.
func (s *Service) StopRace(raceID string) error {
	return s.engine.StopRace(s.ref(raceID).ID)
}

// ActiveRaces lists open live sessions.
func (s *Service) ActiveRaces() []types.SessionInfo {
	return s.engine.ActiveRaces()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": s.started,
	}
	if !s.started {
		return stats
	}

	status := s.manager.Status(ctx)
	sessions := s.engine.ActiveRaces()

	stats["model_loaded"] = status.Loaded
	stats["model_state"] = status.State
	stats["active_sessions"] = len(sessions)
	stats["recorded_outcomes"] = s.history.Count(ctx)

	metrics.UpdateActiveSessions(len(sessions))
	return stats
}
