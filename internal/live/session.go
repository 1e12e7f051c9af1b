package live

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
)

// session is one monitored race: a goroutine polling the timing feed and
// broadcasting predictions until stopped, expired or out of laps.
type session struct {
	raceID    string
	startedAt time.Time

	predictions atomic.Int64
	lastActive  atomic.Int64 // unix nanos of last subscriber activity
	last        atomic.Pointer[model.LivePrediction]

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newSession(raceID string, now time.Time) *session {
	s := &session{
		raceID:    raceID,
		startedAt: now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	s.touch(now)
	return s
}

// touch marks subscriber activity, deferring idle expiry.
func (s *session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

func (s *session) lastActiveAt() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// setLast retains the most recent prediction so a late subscriber can be
// caught up without waiting for the next tick.
func (s *session) setLast(pred model.LivePrediction) {
	s.last.Store(&pred)
}

func (s *session) lastPrediction() *model.LivePrediction {
	return s.last.Load()
}

// stop requests the monitor loop to exit. Safe to call more than once.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// wait blocks until the monitor loop has exited.
func (s *session) wait() {
	<-s.doneCh
}

func (s *session) info() types.SessionInfo {
	return types.SessionInfo{
		RaceID:          s.raceID,
		Status:          "active",
		StartedAt:       s.startedAt,
		PredictionCount: s.predictions.Load(),
		LastPrediction:  s.last.Load(),
	}
}
