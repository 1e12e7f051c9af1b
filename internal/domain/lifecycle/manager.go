// Package lifecycle owns the model set: loading persisted parameters at
// startup, deciding when to retrain, running the retrain cycle and swapping
// the live combiner without blocking readers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paddocklabs/gridcast/internal/adapters/artifact"
	"github.com/paddocklabs/gridcast/internal/adapters/history"
	"github.com/paddocklabs/gridcast/internal/adapters/racedata"
	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/paddocklabs/gridcast/pkg/metrics"
)

// Default lifecycle configuration constants.
const (
	defaultRetrainInterval   = 24 * time.Hour
	defaultCheckInterval     = 10 * time.Minute
	defaultPerformanceWindow = 10
	defaultAccuracyThreshold = 0.45
	defaultMinValidation     = 0.2
	defaultMinPrecision      = 0.1
	defaultMinRecall         = 0.1
	defaultNewDataThreshold  = 5
	defaultHistoryDepth      = 40

	minTrainingSamples = 5
	holdoutDenominator = 5

	winnerWeight = 0.6
	top3Weight   = 0.4
)

// Retrain trigger reasons, surfaced in logs and status.
const (
	ReasonScheduled   = "scheduled"
	ReasonPerformance = "performance"
	ReasonNewData     = "new_data"
	ReasonForced      = "forced"
)

// UnitFactory builds a fresh untrained unit set for one retrain cycle.
type UnitFactory func() []ensemble.Trainable

// Manager drives the model lifecycle. Readers take the active combiner
// through an atomic pointer and are never blocked by a retrain; all
// mutations serialize on the lifecycle mutex.
type Manager struct {
	artifacts *artifact.Store
	history   history.Store
	source    racedata.Source
	factory   UnitFactory

	combiner     atomic.Pointer[ensemble.Combiner]
	combinerOpts []ensemble.Option

	mu          sync.Mutex
	state       State
	active      []ensemble.Trainable
	lastRetrain time.Time

	retraining atomic.Bool
	newData    atomic.Int64

	retrainInterval   time.Duration
	checkInterval     time.Duration
	perfWindow        int
	accuracyThreshold float64
	minValidation     float64
	minPrecision      float64
	minRecall         float64
	newDataThreshold  int64
	historyDepth      int

	now func() time.Time
	log logger.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewManager creates a lifecycle manager in the unloaded state.
func NewManager(store *artifact.Store, hist history.Store, src racedata.Source, opts ...Option) *Manager {
	m := &Manager{
		artifacts:         store,
		history:           hist,
		source:            src,
		factory:           ensemble.NewDefaultUnits,
		state:             StateUnloaded,
		retrainInterval:   defaultRetrainInterval,
		checkInterval:     defaultCheckInterval,
		perfWindow:        defaultPerformanceWindow,
		accuracyThreshold: defaultAccuracyThreshold,
		minValidation:     defaultMinValidation,
		minPrecision:      defaultMinPrecision,
		minRecall:         defaultMinRecall,
		newDataThreshold:  defaultNewDataThreshold,
		historyDepth:      defaultHistoryDepth,
		now:               time.Now,
		log:               logger.Named("lifecycle"),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Combiner returns the active combiner, or nil before Load succeeds. The
// read is lock-free.
func (m *Manager) Combiner() *ensemble.Combiner {
	return m.combiner.Load()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// unitNames lists the unit names of a trainable set.
func unitNames(units []ensemble.Trainable) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name()
	}
	return names
}

// Load restores persisted unit parameters, or trains an initial model from
// historical data when nothing has been persisted yet.
func (m *Manager) Load(ctx context.Context) error {
	units := m.factory()

	restored := 0
	for _, u := range units {
		p, err := m.artifacts.Load(u.Name())
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				continue
			}
			return fmt.Errorf("load params for %s: %w", u.Name(), err)
		}
		if err := u.Restore(p); err != nil {
			return fmt.Errorf("restore params for %s: %w", u.Name(), err)
		}
		restored++
	}

	if restored == 0 {
		m.log.Info("no persisted model found, training initial model")
		samples, err := m.source.History(ctx, m.historyDepth)
		if err != nil {
			return fmt.Errorf("fetch training history: %w", err)
		}
		if err := trainAll(ctx, units, samples, m.log); err != nil {
			return err
		}
		if err := m.persist(units, len(samples)); err != nil {
			return err
		}
	}

	m.install(units)
	m.log.Info("model loaded",
		logger.Int("restored_units", restored),
		logger.Int("total_units", len(units)))
	return nil
}

// install swaps the active unit set and combiner. Readers pick up the new
// combiner on their next call.
func (m *Manager) install(units []ensemble.Trainable) {
	opts := append([]ensemble.Option{
		ensemble.WithCandidatePool(m.source.Roster()),
	}, m.combinerOpts...)
	c := ensemble.NewCombiner(ensemble.AsUnits(units), opts...)

	m.mu.Lock()
	m.active = units
	m.state = StateLoaded
	m.lastRetrain = m.now()
	m.mu.Unlock()

	m.combiner.Store(c)
	metrics.UpdateModelLoaded(true)
}

// persist backs up the previous artifacts and writes the new set. A write
// failure midway restores the backup so the store never holds a mixed set.
func (m *Manager) persist(units []ensemble.Trainable, sampleCount int) error {
	names := unitNames(units)
	if err := m.artifacts.Backup(names); err != nil {
		return fmt.Errorf("backup artifacts: %w", err)
	}

	versions := make(map[string]string, len(units))
	for _, u := range units {
		if err := m.artifacts.Save(u.Name(), u.Params()); err != nil {
			if restoreErr := m.artifacts.Restore(names); restoreErr != nil && !errors.Is(restoreErr, artifact.ErrNoBackup) {
				m.log.Error("artifact restore after failed save", logger.Error(restoreErr))
			}
			return fmt.Errorf("save params for %s: %w", u.Name(), err)
		}
		versions[u.Name()] = u.Version()
	}

	return m.artifacts.SaveMetadata(artifact.Metadata{
		Versions:  versions,
		SavedAt:   m.now(),
		TrainedOn: sampleCount,
	})
}

// trainAll trains every unit, tolerating individual failures as long as at
// least one unit fits.
func trainAll(ctx context.Context, units []ensemble.Trainable, samples []ensemble.TrainingSample, log logger.Logger) error {
	trained := 0
	for _, u := range units {
		if err := u.Train(ctx, samples); err != nil {
			log.Warn("unit training failed",
				logger.String("unit", u.Name()),
				logger.Error(err))
			continue
		}
		trained++
	}
	if trained == 0 {
		return ErrInsufficientData
	}
	return nil
}

// ShouldRetrain evaluates the retrain triggers in order: schedule age,
// then accuracy over the recent window, then accumulated new data. The
// first firing trigger wins; with none firing the model stays as is.
func (m *Manager) ShouldRetrain(ctx context.Context) (bool, string) {
	m.mu.Lock()
	last := m.lastRetrain
	m.mu.Unlock()

	if !last.IsZero() && m.now().Sub(last) >= m.retrainInterval {
		return true, ReasonScheduled
	}

	if recent, err := m.history.Recent(ctx, m.perfWindow); err == nil && len(recent) >= m.perfWindow {
		var sum float64
		for _, rec := range recent {
			sum += rec.Metrics.OverallAccuracy
		}
		if sum/float64(len(recent)) < m.accuracyThreshold {
			return true, ReasonPerformance
		}
	}

	if m.newData.Load() >= m.newDataThreshold {
		return true, ReasonNewData
	}

	return false, ""
}

// Retrain runs a retrain cycle when any trigger fires. Returns whether a
// cycle ran.
func (m *Manager) Retrain(ctx context.Context) (bool, error) {
	ok, reason := m.ShouldRetrain(ctx)
	if !ok {
		return false, nil
	}
	return true, m.retrain(ctx, reason)
}

// ForceRetrain runs a retrain cycle unconditionally.
func (m *Manager) ForceRetrain(ctx context.Context) error {
	return m.retrain(ctx, ReasonForced)
}

// retrain trains a candidate unit set, validates it on held-out races and
// promotes or discards it. The active combiner is only replaced after a
// successful validation, so a failed cycle leaves serving untouched.
func (m *Manager) retrain(ctx context.Context, reason string) error {
	if m.Combiner() == nil {
		return ErrNotLoaded
	}
	if !m.retraining.CompareAndSwap(false, true) {
		return ErrRetrainInProgress
	}
	defer m.retraining.Store(false)

	m.log.Info("retrain cycle started", logger.String("reason", reason))
	m.setState(StateRetraining)
	metrics.RecordRetrain()

	samples, err := m.source.History(ctx, m.historyDepth)
	if err != nil {
		m.setState(StateLoaded)
		return fmt.Errorf("fetch training history: %w", err)
	}
	if len(samples) < minTrainingSamples {
		m.setState(StateLoaded)
		return ErrInsufficientData
	}

	holdout := len(samples) / holdoutDenominator
	if holdout == 0 {
		holdout = 1
	}
	trainSet, validateSet := samples[:len(samples)-holdout], samples[len(samples)-holdout:]

	candidates := m.factory()
	if err := trainAll(ctx, candidates, trainSet, m.log); err != nil {
		m.setState(StateLoaded)
		return err
	}

	m.setState(StateValidating)
	report := m.validate(ctx, candidates, validateSet)
	if !report.passes(m.minValidation, m.minPrecision, m.minRecall) {
		m.setState(StateRolledBack)
		metrics.RecordValidationFailure()
		metrics.RecordRollback()
		m.log.Warn("candidate model rejected",
			logger.Float64("accuracy", report.accuracy),
			logger.Float64("precision", report.precision),
			logger.Float64("recall", report.recall),
			logger.Float64("min_accuracy", m.minValidation),
			logger.Float64("min_precision", m.minPrecision),
			logger.Float64("min_recall", m.minRecall))
		m.setState(StateLoaded)
		return ErrValidationFailed
	}

	if err := m.persist(candidates, len(trainSet)); err != nil {
		m.setState(StateLoaded)
		return err
	}

	m.setState(StatePromoted)
	m.install(candidates)
	m.newData.Store(0)
	metrics.RecordPromotion()
	m.log.Info("candidate model promoted",
		logger.Float64("accuracy", report.accuracy),
		logger.Float64("precision", report.precision),
		logger.Float64("recall", report.recall),
		logger.Int("trained_on", len(trainSet)))
	return nil
}

// validationReport aggregates candidate quality over the holdout races.
// Precision and recall are macro averages over winner classes: precision
// over the classes the candidate predicted, recall over the classes that
// actually won.
type validationReport struct {
	accuracy  float64
	precision float64
	recall    float64
}

func (r validationReport) passes(minAccuracy, minPrecision, minRecall float64) bool {
	return r.accuracy >= minAccuracy && r.precision >= minPrecision && r.recall >= minRecall
}

// validate scores a candidate set's winner predictions over held-out races.
// Fallback results count as misses.
func (m *Manager) validate(ctx context.Context, candidates []ensemble.Trainable, holdout []ensemble.TrainingSample) validationReport {
	if len(holdout) == 0 {
		return validationReport{}
	}

	c := ensemble.NewCombiner(ensemble.AsUnits(candidates))

	hits := 0
	truePos := map[string]int{}
	predicted := map[string]int{}
	actual := map[string]int{}
	for _, s := range holdout {
		actual[s.Outcome.Winner]++
		result := c.Combine(ctx, s.Features)
		if result.Fallback {
			continue
		}
		predicted[result.Winner]++
		if result.Winner == s.Outcome.Winner {
			hits++
			truePos[result.Winner]++
		}
	}

	report := validationReport{accuracy: float64(hits) / float64(len(holdout))}
	for class, n := range predicted {
		report.precision += float64(truePos[class]) / float64(n)
	}
	if len(predicted) > 0 {
		report.precision /= float64(len(predicted))
	}
	for class, n := range actual {
		report.recall += float64(truePos[class]) / float64(n)
	}
	report.recall /= float64(len(actual))
	return report
}

// RecordOutcome scores a finished race against the prediction served for it
// and appends the result to the performance history.
func (m *Manager) RecordOutcome(ctx context.Context, raceID string, predicted model.PredictionResult, actual model.RaceOutcome) (model.AccuracyMetrics, error) {
	if actual.Winner == "" {
		return model.AccuracyMetrics{}, ErrOutcomeIncomplete
	}

	acc := scoreOutcome(predicted, actual)
	rec := model.PerformanceRecord{
		RaceID:     raceID,
		Predicted:  predicted,
		Actual:     actual,
		Metrics:    acc,
		RecordedAt: m.now(),
	}
	if err := m.history.Append(ctx, rec); err != nil {
		return model.AccuracyMetrics{}, err
	}

	m.newData.Add(1)
	metrics.RecordOutcome(acc.OverallAccuracy)
	m.log.Info("race outcome recorded",
		logger.String("race_id", raceID),
		logger.Float64("overall_accuracy", acc.OverallAccuracy))
	return acc, nil
}

// scoreOutcome computes the accuracy metrics for one race. The podium score
// is order sensitive: each predicted slot only counts when it matches the
// actual slot exactly.
func scoreOutcome(predicted model.PredictionResult, actual model.RaceOutcome) model.AccuracyMetrics {
	var winner float64
	if predicted.Winner == actual.Winner {
		winner = 1
	}

	var top3 float64
	if len(actual.Top3) > 0 {
		hits := 0
		for i, driver := range actual.Top3 {
			if i < len(predicted.Ranking) && predicted.Ranking[i] == driver {
				hits++
			}
		}
		top3 = float64(hits) / float64(len(actual.Top3))
	}

	overall := winnerWeight*winner + top3Weight*top3
	calibration := predicted.Confidence - overall
	if calibration < 0 {
		calibration = -calibration
	}

	return model.AccuracyMetrics{
		WinnerAccuracy:        winner,
		Top3Accuracy:          top3,
		OverallAccuracy:       overall,
		ConfidenceCalibration: calibration,
	}
}

// SignalNewData reports that n new completed races are available upstream.
func (m *Manager) SignalNewData(n int64) {
	if n > 0 {
		m.newData.Add(n)
	}
}

// Status reports the lifecycle position, unit versions and aggregate
// performance.
func (m *Manager) Status(ctx context.Context) types.ModelStatus {
	m.mu.Lock()
	state := m.state
	last := m.lastRetrain
	active := m.active
	m.mu.Unlock()

	versions := make(map[string]string, len(active))
	for _, u := range active {
		versions[u.Name()] = u.Version()
	}

	status := types.ModelStatus{
		Loaded:      m.Combiner() != nil,
		State:       string(state),
		LastUpdate:  last,
		Versions:    versions,
		Performance: m.history.Summary(ctx),
	}
	if !last.IsZero() {
		status.NextScheduledUpdate = last.Add(m.retrainInterval)
	}
	return status
}

// Start launches the background retrain scheduler. Calling Start twice is
// a no-op.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.run(ctx)
}

// run checks the retrain triggers on every tick until stopped.
func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			ran, err := m.Retrain(ctx)
			if err != nil && !errors.Is(err, ErrRetrainInProgress) {
				m.log.Error("scheduled retrain failed", logger.Error(err))
			}
			if ran {
				m.log.Debug("scheduled retrain cycle finished")
			}
		}
	}
}

// Stop halts the scheduler and waits for the current check to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	if m.started.Load() {
		<-m.doneCh
	}
}
