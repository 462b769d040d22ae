package sched

import (
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// SendProbeFunc transmits one probe message: an ANY-type question per name
// being probed, with the proposed records attached as the authority
// section so other hosts can compare against their own and defend or
// yield (RFC 6762 §8.1/§8.2).
type SendProbeFunc func(questions []wire.Question, proposed []wire.RR)

// ProbeScheduler drives the three-probe sequence RFC 6762 §8.1 describes:
// an initial random delay in [0, ProbeStartJitter), then ProbeCount probes
// spaced ProbeInterval apart.
type ProbeScheduler struct {
	clock *clock.Queue
	send  SendProbeFunc
	count int
}

func NewProbeScheduler(q *clock.Queue, send SendProbeFunc) *ProbeScheduler {
	return &ProbeScheduler{clock: q, send: send, count: protocol.ProbeCount}
}

// SetCount overrides how many probes each Run sends. RFC 6762 §8.1 requires
// at least two; values below one fall back to the default.
func (p *ProbeScheduler) SetCount(n int) {
	if n < 1 {
		n = protocol.ProbeCount
	}
	p.count = n
}

// Run is a single in-flight probe sequence, cancelable if a conflict is
// detected mid-run.
type Run struct {
	scheduler *ProbeScheduler
	event     *clock.Event
	canceled  bool
}

// Cancel stops any remaining scheduled probes in this run.
func (r *Run) Cancel() {
	r.canceled = true
	if r.event != nil {
		r.event.Cancel()
	}
}

// Start begins probing questions/proposed, invoking onProbe(n) after each
// probe is sent (n is 1-based) and onComplete once all
// have gone out uncontested. The caller is responsible for watching
// incoming traffic for a conflict and calling Cancel on the returned Run if
// one is found.
func (p *ProbeScheduler) Start(questions []wire.Question, proposed []wire.RR, onProbe func(n int), onComplete func()) *Run {
	run := &Run{scheduler: p}
	p.scheduleNext(run, questions, proposed, 1, clock.Jitter(protocol.ProbeStartJitter), onProbe, onComplete)
	return run
}

func (p *ProbeScheduler) scheduleNext(run *Run, questions []wire.Question, proposed []wire.RR, n int, delay time.Duration, onProbe func(int), onComplete func()) {
	run.event = p.clock.After(delay, func(time.Time) {
		if run.canceled {
			return
		}
		p.send(questions, proposed)
		if onProbe != nil {
			onProbe(n)
		}
		if n >= p.count {
			if onComplete != nil {
				onComplete()
			}
			return
		}
		p.scheduleNext(run, questions, proposed, n+1, protocol.ProbeInterval, onProbe, onComplete)
	})
}
