// Package sched implements the three scheduling components that decide
// when outgoing traffic actually leaves the wire: the query scheduler (
// defers and deduplicates outgoing questions), the response scheduler (
// defers answers and suppresses ones other responders already gave), and
// the probe scheduler (batches a record set's probe questions into the
// three 250ms-spaced RFC 6762 §8.1 probes).
//
// The defer/history/suppressed-queue split and its timing windows follow
// avahi's schedulers, which have two decades of LAN coexistence behind
// them.
package sched

import (
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// SendQueryFunc transmits a single question, accompanied by any known
// answers to attach for suppression (RFC 6762 §7.1).
type SendQueryFunc func(q wire.Question, knownAnswers []wire.RR)

// QueryScheduler defers outgoing questions by a short random interval and
// deduplicates repeats of the same question within a history window.
type QueryScheduler struct {
	mu      sync.Mutex
	clock   *clock.Queue
	send    SendQueryFunc
	pending map[records.Key]*clock.Event
	history map[records.Key]time.Time
}

func NewQueryScheduler(q *clock.Queue, send SendQueryFunc) *QueryScheduler {
	return &QueryScheduler{
		clock:   q,
		send:    send,
		pending: make(map[records.Key]*clock.Event),
		history: make(map[records.Key]time.Time),
	}
}

func questionKey(q wire.Question) records.Key {
	return records.NewKey(q.Name.Presentation(), protocol.ClassIN, q.Type)
}

// Post schedules q to be sent after delay, attaching knownAnswers, unless
// an identical question was sent within the last QueryHistoryWindow or is
// already pending.
func (s *QueryScheduler) Post(q wire.Question, knownAnswers []wire.RR, delay time.Duration, now time.Time) {
	key := questionKey(q)

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.history[key]; ok && now.Sub(last) < protocol.QueryHistoryWindow {
		return
	}
	if _, ok := s.pending[key]; ok {
		return
	}

	s.pending[key] = s.clock.After(delay, func(fireTime time.Time) {
		s.mu.Lock()
		delete(s.pending, key)
		s.history[key] = fireTime
		s.mu.Unlock()
		s.send(q, knownAnswers)
	})
}

// Suppress cancels a pending identical question because another host was
// just observed asking it (RFC 6762 §7.3's duplicate question
// suppression), recording it in the history window so we don't immediately
// re-post it either.
func (s *QueryScheduler) Suppress(q wire.Question, now time.Time) {
	key := questionKey(q)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.pending[key]; ok {
		ev.Cancel()
		delete(s.pending, key)
	}
	s.history[key] = now
}
