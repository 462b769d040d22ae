// Package eventloop provides the capability-set watch/wakeup abstraction
// the engine is driven by: add a watch on a readable source, remove it,
// and schedule a one-shot wakeup at a deadline. It is the seam between
// internal/transport's blocking sockets (and internal/iface's netlink
// socket) and internal/server's dispatch loop, so the engine itself never
// polls. Go's idiomatic equivalent of an fd watched by select is a
// dedicated goroutine per blocking source, so AddWatch starts one rather
// than registering an fd with a poller; SetWakeup delegates straight to
// internal/clock's reprogrammable single-timer queue.
package eventloop

import (
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
)

// Watch is a handle to one registered readable source. Cancel stops its
// goroutine after the in-flight read (if any) returns; it does not
// interrupt a blocked read.
type Watch struct {
	cancel func()
	done   chan struct{}
}

// Cancel requests the watch's goroutine stop. It returns immediately;
// use Wait to block until the goroutine has actually exited.
func (w *Watch) Cancel() {
	w.cancel()
}

// Wait blocks until the watch's goroutine has exited.
func (w *Watch) Wait() {
	<-w.done
}

// Loop is the capability set: AddWatch registers a blocking reader on its
// own goroutine, SetWakeup schedules a deadline callback via the shared
// clock.Queue.
type Loop struct {
	clockQ  *clock.Queue
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	watches []*Watch
}

// New creates a Loop driven by q. Multiple Loops may share one Queue; the
// server uses one Loop per process and one clock.Queue per process.
func New(q *clock.Queue) *Loop {
	return &Loop{clockQ: q}
}

// AddWatch starts a goroutine that calls read repeatedly, invoking onItem
// for each successful read. read is expected to block until data is
// available (as transport.Conn.ReadPacket and the netlink monitor's
// receive loop do); when read returns a non-nil error the goroutine
// invokes onErr once and exits without retrying, the treatment a watched
// fd reporting an error condition gets.
func (l *Loop) AddWatch(read func() (any, error), onItem func(any), onErr func(error)) *Watch {
	stop := make(chan struct{})
	done := make(chan struct{})
	w := &Watch{
		done: done,
		cancel: sync.OnceFunc(func() {
			close(stop)
		}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(done)
		return w
	}
	l.wg.Add(1)
	l.watches = append(l.watches, w)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}

			item, err := read()
			if err != nil {
				select {
				case <-stop:
					return
				default:
				}
				if onErr != nil {
					onErr(err)
				}
				return
			}

			select {
			case <-stop:
				return
			default:
				onItem(item)
			}
		}
	}()

	return w
}

// SetWakeup schedules cb to run once at deadline, returning a handle that
// can reschedule or cancel it.
func (l *Loop) SetWakeup(deadline time.Time, cb func(time.Time)) *clock.Event {
	return l.clockQ.Add(deadline, cb)
}

// Close cancels every outstanding watch and waits for their goroutines to
// exit. It does not close the underlying clock.Queue, which may outlive
// this Loop.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	watches := l.watches
	l.watches = nil
	l.mu.Unlock()

	for _, w := range watches {
		w.Cancel()
	}
	l.wg.Wait()
}
