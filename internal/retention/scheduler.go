// Package retention expires messages a fixed time after their creation.
//
// Every stored message has exactly one armed timer. Timers live in memory only;
// after a restart Recover rebuilds them from the stored creation times, and
// messages whose deadline passed while the process was down are deleted at once.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"roomrelay/backend/internal/metrics"
	"roomrelay/backend/internal/store"
)

// DefaultTTL is how long every message lives.
const DefaultTTL = 2 * time.Hour

// Notifier announces a deletion performed by the scheduler. roomID is nil
// when the message's room is unknown.
type Notifier interface {
	DeliverDeletion(roomID *uint, messageID uint)
}

type entry struct {
	timer  *time.Timer
	roomID uint
	gen    uint64
}

// Scheduler owns the table of armed expiration timers.
type Scheduler struct {
	store    store.Store
	notifier Notifier
	log      *slog.Logger
	metrics  *metrics.Metrics
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	timers  map[uint]*entry
	gen     uint64
	stopped bool
}

type Option func(*Scheduler)

// WithTTL overrides DefaultTTL for every message of this scheduler.
func WithTTL(ttl time.Duration) Option {
	return func(s *Scheduler) { s.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(st store.Store, notifier Notifier, log *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		notifier: notifier,
		log:      log,
		ttl:      DefaultTTL,
		now:      time.Now,
		timers:   make(map[uint]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the retention applied to every message.
func (s *Scheduler) TTL() time.Duration { return s.ttl }

// ExpireAt returns the deadline of a message created at createdAt.
func (s *Scheduler) ExpireAt(createdAt time.Time) time.Time { return createdAt.Add(s.ttl) }

// Schedule arms the expiration of messageID at expireAt, replacing any timer
// already armed for it. A deadline that is already past deletes the message
// before Schedule returns.
func (s *Scheduler) Schedule(messageID, roomID uint, expireAt time.Time) {
	delay := expireAt.Sub(s.now())

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.log.Debug("Scheduler stopped, ignoring schedule", "message", messageID)
		return
	}
	if prev, ok := s.timers[messageID]; ok {
		prev.timer.Stop()
		delete(s.timers, messageID)
	}
	if delay <= 0 {
		s.reportPending()
		s.mu.Unlock()
		s.expire(messageID, roomID)
		return
	}

	s.gen++
	gen := s.gen
	e := &entry{roomID: roomID, gen: gen}
	// fire takes s.mu, so it cannot observe the table before e is stored.
	e.timer = time.AfterFunc(delay, func() { s.fire(messageID, gen) })
	s.timers[messageID] = e
	s.reportPending()
	s.mu.Unlock()
}

// Cancel disarms the timer of messageID without deleting anything.
func (s *Scheduler) Cancel(messageID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[messageID]; ok {
		e.timer.Stop()
		delete(s.timers, messageID)
		s.reportPending()
	}
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Recover arms a timer for every stored message from its creation time.
func (s *Scheduler) Recover(ctx context.Context) (scheduled, expired int, err error) {
	messages, err := s.store.ListAllMessages(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := s.now()
	for _, m := range messages {
		expireAt := s.ExpireAt(m.CreatedAt)
		if expireAt.After(now) {
			scheduled++
		} else {
			expired++
		}
		s.Schedule(m.ID, m.RoomID, expireAt)
	}
	s.log.Info("Retention timers recovered", "scheduled", scheduled, "expired", expired)
	return scheduled, expired, nil
}

// Stop disarms every timer. Later calls to Schedule are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.timers {
		e.timer.Stop()
	}
	s.log.Info("Retention timers cleared", "count", len(s.timers))
	s.timers = make(map[uint]*entry)
	s.stopped = true
	s.reportPending()
}

func (s *Scheduler) fire(messageID uint, gen uint64) {
	s.mu.Lock()
	e, ok := s.timers[messageID]
	if !ok || e.gen != gen {
		// Cancelled or re-armed after this timer was started.
		s.mu.Unlock()
		return
	}
	delete(s.timers, messageID)
	s.reportPending()
	s.mu.Unlock()

	s.expire(messageID, e.roomID)
}

// expire deletes the message and announces it. Failures are logged and not
// retried; the entry is already gone so a failing store cannot cause a storm.
func (s *Scheduler) expire(messageID, roomID uint) {
	deleted, err := s.store.DeleteMessage(context.Background(), messageID)
	if err != nil {
		s.log.Error("Unable to delete expired message", "message", messageID, "error", err)
		return
	}
	if !deleted {
		s.log.Debug("Expired message already gone", "message", messageID)
		return
	}
	s.metrics.IncExpired()
	s.log.Debug("Message deleted after expiration", "message", messageID, "room", roomID)

	var room *uint
	if roomID != 0 {
		room = &roomID
	}
	s.notifier.DeliverDeletion(room, messageID)
}

// reportPending must be called with s.mu held.
func (s *Scheduler) reportPending() {
	s.metrics.SetPendingTimers(len(s.timers))
}
