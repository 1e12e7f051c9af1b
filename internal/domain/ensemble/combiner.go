package ensemble

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/paddocklabs/gridcast/pkg/metrics"
)

const (
	fallbackConfidence = 0.15

	lowConfidenceFloor   = 0.05
	lowConfidenceCeiling = 0.30
)

// Combiner fans a feature vector out to every unit and merges whatever
// comes back. A unit failing is an expected condition, not an error: the
// failed unit is dropped from the blend and only an all-units failure
// degrades the result to the fallback.
type Combiner struct {
	units []Unit

	pool []string
	now  func() time.Time
	log  logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Combiner.
type Option func(*Combiner)

// WithCandidatePool sets the static candidate pool used by the fallback
// result when every unit fails and the vector names no candidates.
func WithCandidatePool(pool []string) Option {
	return func(c *Combiner) {
		c.pool = pool
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Combiner) {
		c.now = now
	}
}

// WithCombinerLogger overrides the package logger.
func WithCombinerLogger(log logger.Logger) Option {
	return func(c *Combiner) {
		c.log = log
	}
}

// WithRandSource overrides the random source used for the low-confidence
// podium placeholder. Tests seed this for determinism.
func WithRandSource(src rand.Source) Option {
	return func(c *Combiner) {
		c.rng = rand.New(src)
	}
}

// NewCombiner creates a combiner over the given units.
func NewCombiner(units []Unit, opts ...Option) *Combiner {
	c := &Combiner{
		units: units,
		now:   time.Now,
		log:   logger.Named("ensemble"),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Units returns the configured units.
func (c *Combiner) Units() []Unit {
	return c.units
}

// weighted is one successful unit output paired with its weight.
type weighted struct {
	name   string
	weight float64
	pred   UnitPrediction
}

// collect runs Predict on every unit concurrently. Failures are logged and
// counted, never propagated: the group always returns nil and the slice
// holds only the units that produced output.
func (c *Combiner) collect(ctx context.Context, v feature.Vector) []weighted {
	var (
		mu  sync.Mutex
		out []weighted
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, u := range c.units {
		u := u
		g.Go(func() error {
			pred, err := u.Predict(ctx, v)
			if err != nil {
				metrics.RecordUnitFailure(u.Name())
				c.log.Warn("unit prediction failed",
					logger.String("unit", u.Name()),
					logger.Error(err))
				return nil
			}
			mu.Lock()
			out = append(out, weighted{name: u.Name(), weight: u.Weight(), pred: pred})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Stable unit order keeps combined output deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Combine produces the ensemble race prediction for a feature vector.
func (c *Combiner) Combine(ctx context.Context, v feature.Vector) model.PredictionResult {
	start := c.now()
	defer func() {
		metrics.RecordCombineLatency(float64(time.Since(start).Milliseconds()))
	}()

	preds := c.collect(ctx, v)
	if len(preds) == 0 {
		metrics.RecordFallbackResult()
		c.log.Warn("all units failed, serving fallback result")
		return c.fallback(v)
	}

	metrics.RecordPrediction("race")
	probs := blendProbabilities(preds)
	return model.PredictionResult{
		Winner:           winnerOf(preds),
		Confidence:       meanConfidence(preds),
		WinProbabilities: probs,
		Ranking:          model.RankingFromProbabilities(probs),
		GeneratedAt:      c.now(),
	}
}

// winnerOf picks the top choice of the single most confident unit. Ties go
// to the lexicographically first unit name so the pick is stable.
func winnerOf(preds []weighted) string {
	best := preds[0]
	for _, p := range preds[1:] {
		if p.pred.Confidence > best.pred.Confidence {
			best = p
		}
	}
	return best.pred.Winner
}

// meanConfidence is the arithmetic mean over participating units only.
func meanConfidence(preds []weighted) float64 {
	var sum float64
	for _, p := range preds {
		sum += p.pred.Confidence
	}
	return clamp01(sum / float64(len(preds)))
}

// blendProbabilities averages weight-scaled probabilities per candidate
// over the units that actually reported that candidate. A unit omitting a
// candidate reduces the divisor instead of dragging the average to zero.
func blendProbabilities(preds []weighted) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, p := range preds {
		for candidate, prob := range p.pred.WinProbabilities {
			sums[candidate] += prob * p.weight
			counts[candidate]++
		}
	}

	blended := make(map[string]float64, len(sums))
	for candidate, sum := range sums {
		blended[candidate] = clamp01(sum / float64(counts[candidate]))
	}
	return blended
}

// fallback is the deterministic degraded result: uniform probabilities over
// the known candidates, flagged so callers can tell it apart from a real
// prediction.
func (c *Combiner) fallback(v feature.Vector) model.PredictionResult {
	candidates := v.Candidates
	if len(candidates) == 0 {
		candidates = c.pool
	}

	probs := make(map[string]float64, len(candidates))
	if len(candidates) > 0 {
		uniform := 1 / float64(len(candidates))
		for _, candidate := range candidates {
			probs[candidate] = uniform
		}
	}

	ranking := model.RankingFromProbabilities(probs)
	winner := ""
	if len(ranking) > 0 {
		winner = ranking[0]
	}

	return model.PredictionResult{
		Winner:           winner,
		Confidence:       fallbackConfidence,
		WinProbabilities: probs,
		Ranking:          ranking,
		Fallback:         true,
		GeneratedAt:      c.now(),
	}
}

// CombinePodium merges podium probabilities from every podium-capable unit:
// the mean of weight-scaled vectors in the vector's candidate order. When no
// unit can serve, a low-confidence placeholder is returned instead of an
// error.
func (c *Combiner) CombinePodium(ctx context.Context, v feature.Vector) model.PodiumProbabilities {
	var (
		mu   sync.Mutex
		sums = make([]float64, len(v.Candidates))
		n    int
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, u := range c.units {
		u := u
		pp, ok := u.(PodiumPredictor)
		if !ok {
			continue
		}
		g.Go(func() error {
			probs, err := pp.PredictPodium(ctx, v)
			if err != nil || len(probs) != len(v.Candidates) {
				metrics.RecordUnitFailure(u.Name())
				return nil
			}
			mu.Lock()
			for i, p := range probs {
				sums[i] += p * u.Weight()
			}
			n++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if n == 0 {
		metrics.RecordFallbackResult()
		return c.podiumPlaceholder(v)
	}

	probs := make([]float64, len(sums))
	for i, sum := range sums {
		probs[i] = clamp01(sum / float64(n))
	}

	metrics.RecordPrediction("podium")
	return model.PodiumProbabilities{
		Candidates:    append([]string{}, v.Candidates...),
		Probabilities: probs,
		GeneratedAt:   c.now(),
	}
}

// podiumPlaceholder fills each slot with a random value in the low band so
// downstream consumers still receive a full vector.
func (c *Combiner) podiumPlaceholder(v feature.Vector) model.PodiumProbabilities {
	probs := make([]float64, len(v.Candidates))
	c.rngMu.Lock()
	for i := range probs {
		probs[i] = lowConfidenceFloor + c.rng.Float64()*(lowConfidenceCeiling-lowConfidenceFloor)
	}
	c.rngMu.Unlock()

	return model.PodiumProbabilities{
		Candidates:    append([]string{}, v.Candidates...),
		Probabilities: probs,
		LowConfidence: true,
		GeneratedAt:   c.now(),
	}
}

// CombineLive produces the in-race prediction: the regular ensemble blend
// plus position changes and pit windows from the live-capable units. The
// collections are always non-nil so the wire encoding never emits null.
func (c *Combiner) CombineLive(ctx context.Context, raceID string, v feature.Vector) model.LivePrediction {
	base := c.Combine(ctx, v)

	var (
		mu    sync.Mutex
		lives []LiveUnitPrediction
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, u := range c.units {
		u := u
		lp, ok := u.(LivePredictor)
		if !ok {
			continue
		}
		g.Go(func() error {
			live, err := lp.PredictLive(ctx, v)
			if err != nil {
				metrics.RecordUnitFailure(u.Name())
				return nil
			}
			mu.Lock()
			lives = append(lives, live)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := model.LivePrediction{
		PredictionResult: base,
		PositionChanges:  mergePositionChanges(lives),
		PitWindows:       mergePitWindows(lives),
		RaceID:           raceID,
		CurrentLap:       int(v.Global[feature.CurrentLap]),
		RaceProgress:     v.Global[feature.Progress],
	}
	if len(lives) > 0 {
		metrics.RecordPrediction("live")
	}
	return out
}

// mergePositionChanges averages per-candidate change probabilities across
// the live units; positions come from the first unit reporting the
// candidate.
func mergePositionChanges(lives []LiveUnitPrediction) []model.PositionChange {
	merged := []model.PositionChange{}
	sums := map[string]float64{}
	counts := map[string]int{}
	byCandidate := map[string]model.PositionChange{}
	order := []string{}

	for _, live := range lives {
		for _, change := range live.PositionChanges {
			if _, seen := byCandidate[change.Candidate]; !seen {
				byCandidate[change.Candidate] = change
				order = append(order, change.Candidate)
			}
			sums[change.Candidate] += change.Probability
			counts[change.Candidate]++
		}
	}

	for _, candidate := range order {
		change := byCandidate[candidate]
		change.Probability = clamp01(sums[candidate] / float64(counts[candidate]))
		merged = append(merged, change)
	}
	return merged
}

// mergePitWindows averages pit-lap estimates per candidate.
func mergePitWindows(lives []LiveUnitPrediction) map[string]int {
	sums := map[string]int{}
	counts := map[string]int{}
	for _, live := range lives {
		for candidate, lap := range live.PitWindows {
			sums[candidate] += lap
			counts[candidate]++
		}
	}

	merged := map[string]int{}
	for candidate, sum := range sums {
		merged[candidate] = sum / counts[candidate]
	}
	return merged
}
