// Package availability tracks whether the cloud endpoints are usable in the
// current session.
//
// The flag only ever moves from available to unavailable. Once a request has
// failed the session stays local-only until the process restarts, which keeps
// a down backend from being hammered by every read.
package availability

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Status is the value delivered to subscribers.
type Status struct {
	Available bool
	Reason    error
}

type Tracker struct {
	available atomic.Bool
	log       *logrus.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Status)
}

// New returns a tracker starting in the given state. Deployments without a
// configured backend start unavailable so no request is ever attempted.
func New(initial bool, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Tracker{log: logger, listeners: make(map[int]func(Status))}
	t.available.Store(initial)
	return t
}

func (t *Tracker) Available() bool {
	return t.available.Load()
}

// MarkUnavailable switches the session to local-only mode. Only the first call
// notifies subscribers; later calls are no-ops.
func (t *Tracker) MarkUnavailable(reason error) {
	if !t.available.CompareAndSwap(true, false) {
		return
	}

	t.log.WithFields(logrus.Fields{
		"component": "availability",
		"reason":    reason,
	}).Warn("cloud storage unreachable, switching to local-only mode")

	t.mu.Lock()
	listeners := make([]func(Status), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	status := Status{Available: false, Reason: reason}
	for _, fn := range listeners {
		fn(status)
	}
}

// Subscribe registers fn for status changes and returns a function that
// removes it.
func (t *Tracker) Subscribe(fn func(Status)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.listeners[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}
