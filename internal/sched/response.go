package sched

import (
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// SendRecordFunc transmits a single resource record by multicast.
type SendRecordFunc func(rr wire.RR)

type responseJob struct {
	rr    wire.RR
	event *clock.Event
}

// suppressedEntry records one known-answer observation: Post calls for
// the same key are dropped until expiry unless their TTL is much larger.
type suppressedEntry struct {
	ttl    uint32
	expiry time.Time
}

// historyEntry is one answer already sent (or observed on the wire),
// kept for ResponseHistoryWindow. History must hold the record itself,
// not just a timestamp: suppression applies per record identity, and two
// distinct records routinely share a key (two instances' PTRs under one
// service type).
type historyEntry struct {
	rr wire.RR
	at time.Time
}

// ResponseScheduler defers outgoing answers by ResponseDeferBase+jitter,
// suppresses resending an answer already multicast within
// ResponseHistoryWindow, drops a still-pending answer if another
// responder is observed giving the identical answer within
// ResponseSuppressedWindow (RFC 6762 §6's duplicate-answer suppression),
// and refuses to (re-)schedule an answer a peer's query already proved
// known via its known-answer section (RFC 6762 §7.1).
type ResponseScheduler struct {
	mu         sync.Mutex
	clock      *clock.Queue
	send       SendRecordFunc
	pending    map[records.Key][]*responseJob
	history    map[records.Key][]historyEntry
	suppressed map[records.Key]suppressedEntry
}

func NewResponseScheduler(q *clock.Queue, send SendRecordFunc) *ResponseScheduler {
	return &ResponseScheduler{
		clock:      q,
		send:       send,
		pending:    make(map[records.Key][]*responseJob),
		history:    make(map[records.Key][]historyEntry),
		suppressed: make(map[records.Key]suppressedEntry),
	}
}

// recordHistoryLocked prunes expired history under key and appends rr.
// Called with s.mu held.
func (s *ResponseScheduler) recordHistoryLocked(key records.Key, rr wire.RR, now time.Time) {
	kept := s.history[key][:0]
	for _, h := range s.history[key] {
		if now.Sub(h.at) < protocol.ResponseHistoryWindow {
			kept = append(kept, h)
		}
	}
	s.history[key] = append(kept, historyEntry{rr: rr, at: now})
}

// inHistoryLocked reports whether an answer identical to rr (same rdata,
// same flush flag, TTL not much larger) was sent within
// ResponseHistoryWindow. Called with s.mu held.
func (s *ResponseScheduler) inHistoryLocked(rr wire.RR, now time.Time) bool {
	for _, h := range s.history[rrKey(rr)] {
		if now.Sub(h.at) >= protocol.ResponseHistoryWindow {
			continue
		}
		if h.rr.CacheFlush != rr.CacheFlush || rr.TTL > h.rr.TTL*2 {
			continue
		}
		if cmp, err := wire.CompareRData(h.rr.Data, rr.Data); err == nil && cmp == 0 {
			return true
		}
	}
	return false
}

func rrKey(rr wire.RR) records.Key {
	return records.NewKey(rr.Name.Presentation(), rr.Class, rr.Type)
}

// Post schedules rr to be multicast after ResponseDeferBase plus a random
// jitter in [0, ResponseDeferJitterMax), unless an answer with the same
// rdata and compatible flags was already sent within
// ResponseHistoryWindow. A different record under the same key is never
// suppressed by history.
func (s *ResponseScheduler) Post(rr wire.RR, now time.Time) {
	key := rrKey(rr)

	s.mu.Lock()
	if s.inHistoryLocked(rr, now) {
		s.mu.Unlock()
		return
	}
	if sup, ok := s.suppressed[key]; ok && now.Before(sup.expiry) && rr.TTL <= sup.ttl*2 {
		s.mu.Unlock()
		return
	}
	for _, j := range s.pending[key] {
		if cmp, err := wire.CompareRData(j.rr.Data, rr.Data); err == nil && cmp == 0 {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	delay := protocol.ResponseDeferBase + clock.Jitter(protocol.ResponseDeferJitterMax)
	job := &responseJob{rr: rr}
	job.event = s.clock.After(delay, func(fireTime time.Time) {
		s.fire(key, job, fireTime)
	})

	s.mu.Lock()
	s.pending[key] = append(s.pending[key], job)
	s.mu.Unlock()
}

func (s *ResponseScheduler) fire(key records.Key, job *responseJob, now time.Time) {
	s.mu.Lock()
	list := s.pending[key]
	found := false
	for i, j := range list {
		if j == job {
			list = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}
	s.pending[key] = list
	s.recordHistoryLocked(key, job.rr, now)
	s.mu.Unlock()

	s.send(job.rr)
}

// ForceFlush sends rr immediately, bypassing the defer window, for
// goodbye packets that should propagate without delay (RFC 6762 §10.1).
func (s *ResponseScheduler) ForceFlush(rr wire.RR, now time.Time) {
	key := rrKey(rr)
	s.mu.Lock()
	for _, j := range s.pending[key] {
		j.event.Cancel()
	}
	delete(s.pending, key)
	s.recordHistoryLocked(key, rr, now)
	s.mu.Unlock()
	s.send(rr)
}

// ObserveIncomingAnswer is called whenever an identical answer arrives
// from another host on the wire before our own deferred copy has fired.
// Within ResponseSuppressedWindow of posting, it cancels our pending copy
// (RFC 6762 §6 duplicate-answer suppression); outside that window the
// observation is recorded but nothing is canceled, since a stale
// duplicate observation says nothing about a freshly-deferred answer.
func (s *ResponseScheduler) ObserveIncomingAnswer(rr wire.RR, now time.Time) {
	key := rrKey(rr)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pending[key][:0]
	for _, j := range s.pending[key] {
		cmp, err := wire.CompareRData(j.rr.Data, rr.Data)
		if err == nil && cmp == 0 {
			j.event.Cancel()
			continue
		}
		kept = append(kept, j)
	}
	s.pending[key] = kept
	s.recordHistoryLocked(key, rr, now)
}

// SuppressKnownAnswer records that a peer's query already listed rr as a
// known answer with at least half its original TTL remaining, per
// RFC 6762 §7.1: for ResponseSuppressedWindow, Post calls for the same
// key with a TTL that isn't much larger than rr's are dropped rather than
// scheduled, since the querier has already shown it holds a fresh enough
// copy. The suppressed queue is keyed per record rather than per
// querier: this responder keeps no per-querier state anywhere else, and
// it only needs to know that some peer recently proved the record known.
func (s *ResponseScheduler) SuppressKnownAnswer(rr wire.RR, now time.Time) {
	key := rrKey(rr)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressed[key] = suppressedEntry{ttl: rr.TTL, expiry: now.Add(protocol.ResponseSuppressedWindow)}
	kept := s.pending[key][:0]
	for _, j := range s.pending[key] {
		if cmp, err := wire.CompareRData(j.rr.Data, rr.Data); err == nil && cmp == 0 {
			j.event.Cancel()
			continue
		}
		kept = append(kept, j)
	}
	s.pending[key] = kept
}
