package racedata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/pkg/logger"
)

// Default simulation configuration constants.
const (
	defaultMinLatency  = 20 * time.Millisecond
	defaultMaxLatency  = 60 * time.Millisecond
	defaultLapDuration = 5 * time.Second
	defaultSeasonLaps  = 58

	baseLapSecs   = 90.0
	stintLaps     = 20
	pointsPerRank = 25.0
)

// defaultRoster is the stock driver pool used when none is configured.
var defaultRoster = []string{
	"verstappen", "perez", "hamilton", "russell", "leclerc",
	"sainz", "norris", "piastri", "alonso", "stroll",
	"gasly", "ocon", "albon", "sargeant", "tsunoda",
	"ricciardo", "bottas", "zhou", "magnussen", "hulkenberg",
}

// raceState tracks one simulated race between snapshot calls.
type raceState struct {
	startedAt time.Time
	seed      int64
	totalLaps int
}

// SimSource implements Source with a deterministic simulated timing feed.
// Every race derives its seed from the race ID, so two processes watching
// the same race see the same cars in the same order.
type SimSource struct {
	roster      []string
	lapDuration time.Duration
	minLatency  time.Duration
	maxLatency  time.Duration
	now         func() time.Time
	log         logger.Logger

	mu    sync.Mutex
	races map[string]*raceState
	rng   *rand.Rand
}

// Option applies a configuration option to the SimSource.
type Option func(*SimSource)

// WithRoster replaces the stock driver pool.
func WithRoster(roster []string) Option {
	return func(s *SimSource) {
		if len(roster) > 0 {
			s.roster = roster
		}
	}
}

// WithLapDuration sets how much wall time one simulated lap takes.
func WithLapDuration(d time.Duration) Option {
	return func(s *SimSource) {
		if d > 0 {
			s.lapDuration = d
		}
	}
}

// WithLatencyRange sets the simulated feed latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *SimSource) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SimSource) {
		s.now = now
	}
}

// NewSimSource creates a simulated race data source.
func NewSimSource(opts ...Option) *SimSource {
	s := &SimSource{
		roster:      defaultRoster,
		lapDuration: defaultLapDuration,
		minLatency:  defaultMinLatency,
		maxLatency:  defaultMaxLatency,
		now:         time.Now,
		log:         logger.Named("racedata"),
		races:       map[string]*raceState{},
		rng:         rand.New(rand.NewSource(42)), //nolint:gosec // deterministic seed for reproducible simulation
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roster returns a copy of the driver pool.
func (s *SimSource) Roster() []string {
	return append([]string{}, s.roster...)
}

// sleepLatency models the round trip to the timing provider.
func (s *SimSource) sleepLatency(ctx context.Context) error {
	span := s.maxLatency - s.minLatency
	latency := s.minLatency
	if span > 0 {
		s.mu.Lock()
		latency += time.Duration(s.rng.Int63n(int64(span)))
		s.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("race data fetch cancelled: %w", ctx.Err())
	case <-time.After(latency):
		return nil
	}
}

func seedOf(raceID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(raceID))
	return int64(h.Sum64()) //nolint:gosec // hash used as rng seed, not security
}

// state returns the tracked race, creating it on first sight.
func (s *SimSource) state(raceID string) *raceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.races[raceID]; ok {
		return st
	}

	seed := seedOf(raceID)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic per-race seed
	st := &raceState{
		startedAt: s.now(),
		seed:      seed,
		totalLaps: defaultSeasonLaps + rng.Intn(13) - 6,
	}
	s.races[raceID] = st
	return st
}

// skill returns a driver's base performance for one race seed. Lower is
// faster. Roster order gives a mild baseline so the simulated grid loosely
// resembles the standings.
func (s *SimSource) skill(seed int64, driver string) float64 {
	rng := rand.New(rand.NewSource(seed ^ seedOf(driver))) //nolint:gosec // deterministic
	for i, d := range s.roster {
		if d == driver {
			return float64(i)*0.12 + rng.Float64()*1.5
		}
	}
	return 5
}

// Snapshot returns the current state of a simulated race. The lap counter
// advances with wall time; once the flag drops, ErrRaceFinished is
// returned.
func (s *SimSource) Snapshot(ctx context.Context, raceID string) (model.RaceSnapshot, error) {
	if err := s.sleepLatency(ctx); err != nil {
		return model.RaceSnapshot{}, err
	}

	st := s.state(raceID)
	lap := int(s.now().Sub(st.startedAt)/s.lapDuration) + 1
	if lap > st.totalLaps {
		return model.RaceSnapshot{}, ErrRaceFinished
	}

	// Order by skill plus per-lap noise so positions evolve between laps.
	lapRng := rand.New(rand.NewSource(st.seed + int64(lap))) //nolint:gosec // deterministic
	type running struct {
		driver string
		score  float64
	}
	field := make([]running, len(s.roster))
	for i, d := range s.roster {
		field[i] = running{driver: d, score: s.skill(st.seed, d) + lapRng.Float64()*0.8}
	}
	sort.Slice(field, func(i, j int) bool { return field[i].score < field[j].score })

	snap := model.RaceSnapshot{
		RaceID:     raceID,
		CurrentLap: lap,
		TotalLaps:  st.totalLaps,
		Positions:  make([]model.DriverPosition, len(field)),
		LapTimes:   make(map[string][]float64, len(field)),
		Tires:      make(map[string]model.TireState, len(field)),
		Weather: model.Weather{
			TrackTempC:    20 + float64(st.seed%20),
			Precipitation: st.seed%7 == 0,
		},
		SafetyCar: lapRng.Float64() < 0.05,
		FetchedAt: s.now(),
	}

	var gap float64
	compounds := []string{"soft", "medium", "hard"}
	for i, r := range field {
		if i > 0 {
			gap += 0.5 + (field[i].score-field[i-1].score)*2
		}
		snap.Positions[i] = model.DriverPosition{
			Position: i + 1,
			Driver:   r.driver,
			GapSecs:  gap,
		}

		laps := make([]float64, 0, 5)
		for l := lap - 4; l <= lap; l++ {
			if l < 1 {
				continue
			}
			laps = append(laps, baseLapSecs+r.score+rand.New(rand.NewSource(st.seed+int64(l)^seedOf(r.driver))).Float64()) //nolint:gosec // deterministic
		}
		snap.LapTimes[r.driver] = laps

		stops := (lap - 1) / stintLaps
		snap.Tires[r.driver] = model.TireState{
			Compound: compounds[stops%len(compounds)],
			AgeLaps:  (lap - 1) % stintLaps,
			PitStops: stops,
		}
	}

	return snap, nil
}

// Grid returns the simulated starting grid and season standings for a race.
func (s *SimSource) Grid(ctx context.Context, ref model.RaceRef) ([]feature.Entry, error) {
	if err := s.sleepLatency(ctx); err != nil {
		return nil, err
	}

	seed := seedOf(ref.ID)
	type qualified struct {
		driver string
		score  float64
	}
	field := make([]qualified, len(s.roster))
	for i, d := range s.roster {
		field[i] = qualified{driver: d, score: s.skill(seed, d)}
	}
	sort.Slice(field, func(i, j int) bool { return field[i].score < field[j].score })

	entries := make([]feature.Entry, len(field))
	for i, q := range field {
		standing := indexOf(s.roster, q.driver)
		entries[i] = feature.Entry{
			Driver:       q.driver,
			GridPosition: i + 1,
			SeasonPoints: pointsPerRank * float64(len(s.roster)-standing),
		}
	}
	return entries, nil
}

// History generates n completed past races, oldest first, for training.
func (s *SimSource) History(ctx context.Context, n int) ([]ensemble.TrainingSample, error) {
	if err := s.sleepLatency(ctx); err != nil {
		return nil, err
	}
	if n <= 0 || len(s.roster) < 3 {
		return nil, ErrNoHistory
	}

	season := s.now().Year()
	samples := make([]ensemble.TrainingSample, 0, n)
	for i := 0; i < n; i++ {
		raceID := fmt.Sprintf("round-%02d-%d", i+1, season)
		ref := model.ParseRaceRef(raceID, season)

		entries, err := s.Grid(ctx, ref)
		if err != nil {
			return nil, err
		}

		// The finishing order reshuffles the grid with race-day noise.
		seed := seedOf(raceID)
		rng := rand.New(rand.NewSource(seed + 1)) //nolint:gosec // deterministic
		type finished struct {
			driver string
			score  float64
		}
		result := make([]finished, len(entries))
		for j, e := range entries {
			result[j] = finished{driver: e.Driver, score: float64(e.GridPosition) + rng.Float64()*2}
		}
		sort.Slice(result, func(a, b int) bool { return result[a].score < result[b].score })

		samples = append(samples, ensemble.TrainingSample{
			RaceID:   raceID,
			Features: feature.PreRace(ref, entries),
			Outcome: model.RaceOutcome{
				Winner: result[0].driver,
				Top3:   []string{result[0].driver, result[1].driver, result[2].driver},
			},
		})
	}
	return samples, nil
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return len(list)
}
