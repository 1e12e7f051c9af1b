package live

import (
	"sync"

	"github.com/google/uuid"

	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/paddocklabs/gridcast/pkg/metrics"
)

const defaultSubscriberBuffer = 8

// Subscription is one consumer's handle on a race feed. Predictions arrive
// on C; a consumer that stops draining is dropped, not waited for.
type Subscription struct {
	ID     uuid.UUID
	RaceID string
	C      <-chan model.LivePrediction

	// Last is the prediction broadcast most recently before this
	// subscription was opened, nil when the race has produced none yet.
	Last *model.LivePrediction

	ch chan model.LivePrediction
}

// subscriberSet guards the subscribers of one race.
type subscriberSet struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// Registry routes predictions to subscribers, keyed by race ID. Race entries
// are created lazily on first subscribe and dropped wholesale when a
// session closes.
type Registry struct {
	races  sync.Map // raceID -> *subscriberSet
	buffer int
	log    logger.Logger

	total int64
	mu    sync.Mutex
}

// RegistryOption applies a configuration option to the Registry.
type RegistryOption func(*Registry)

// WithSubscriberBuffer sets the per-subscriber channel depth.
func WithSubscriberBuffer(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithRegistryLogger overrides the registry's logger.
func WithRegistryLogger(log logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
	}
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		buffer: defaultSubscriberBuffer,
		log:    logger.Named("live.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) set(raceID string) *subscriberSet {
	if v, ok := r.races.Load(raceID); ok {
		return v.(*subscriberSet)
	}
	v, _ := r.races.LoadOrStore(raceID, &subscriberSet{subs: map[uuid.UUID]*Subscription{}})
	return v.(*subscriberSet)
}

func (r *Registry) addTotal(delta int64) {
	r.mu.Lock()
	r.total += delta
	total := r.total
	r.mu.Unlock()
	metrics.UpdateSubscribers(int(total))
}

// Subscribe registers a new consumer for a race feed.
func (r *Registry) Subscribe(raceID string) *Subscription {
	ch := make(chan model.LivePrediction, r.buffer)
	sub := &Subscription{
		ID:     uuid.New(),
		RaceID: raceID,
		C:      ch,
		ch:     ch,
	}

	set := r.set(raceID)
	set.mu.Lock()
	set.subs[sub.ID] = sub
	set.mu.Unlock()

	r.addTotal(1)
	r.log.Debug("subscriber added",
		logger.String("race_id", raceID),
		logger.String("subscriber_id", sub.ID.String()))
	return sub
}

// Unsubscribe removes one consumer and closes its channel.
func (r *Registry) Unsubscribe(raceID string, id uuid.UUID) {
	v, ok := r.races.Load(raceID)
	if !ok {
		return
	}
	set := v.(*subscriberSet)

	set.mu.Lock()
	sub, ok := set.subs[id]
	if ok {
		delete(set.subs, id)
	}
	set.mu.Unlock()

	if ok {
		close(sub.ch)
		r.addTotal(-1)
	}
}

// Count returns the number of subscribers on one race.
func (r *Registry) Count(raceID string) int {
	v, ok := r.races.Load(raceID)
	if !ok {
		return 0
	}
	set := v.(*subscriberSet)

	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.subs)
}

// Broadcast delivers a prediction to every subscriber of a race without
// ever blocking: a subscriber with a full channel is dropped so one slow
// consumer cannot stall the rest of the fan-out.
func (r *Registry) Broadcast(raceID string, pred model.LivePrediction) (delivered, dropped int) {
	v, ok := r.races.Load(raceID)
	if !ok {
		return 0, 0
	}
	set := v.(*subscriberSet)

	var stalled []uuid.UUID
	set.mu.RLock()
	for id, sub := range set.subs {
		select {
		case sub.ch <- pred:
			delivered++
			metrics.RecordDelivery()
		default:
			stalled = append(stalled, id)
		}
	}
	set.mu.RUnlock()

	for _, id := range stalled {
		r.Unsubscribe(raceID, id)
		metrics.RecordDroppedSubscriber()
		r.log.Warn("dropped stalled subscriber",
			logger.String("race_id", raceID),
			logger.String("subscriber_id", id.String()))
	}

	metrics.RecordBroadcast()
	return delivered, len(stalled)
}

// DropAll removes every subscriber of a race, closing their channels. Used
// when a session ends.
func (r *Registry) DropAll(raceID string) {
	v, ok := r.races.LoadAndDelete(raceID)
	if !ok {
		return
	}
	set := v.(*subscriberSet)

	set.mu.Lock()
	n := len(set.subs)
	for id, sub := range set.subs {
		close(sub.ch)
		delete(set.subs, id)
	}
	set.mu.Unlock()

	if n > 0 {
		r.addTotal(int64(-n))
	}
}
