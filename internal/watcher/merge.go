package watcher

import (
	"sync"

	"github.com/listenupapp/changefeed/internal/errors"
)

// signalQueue is an unbounded FIFO between native callbacks and the
// control loop. Pushes never block, so a slow consumer cannot stall the
// backend's reader goroutine.
type signalQueue struct {
	mu      sync.Mutex
	pending []signal
	wake    chan struct{}
}

func newSignalQueue(hint int) *signalQueue {
	return &signalQueue{
		pending: make([]signal, 0, hint),
		wake:    make(chan struct{}, 1),
	}
}

func (q *signalQueue) push(s signal) {
	q.mu.Lock()
	q.pending = append(q.pending, s)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes the oldest signal.
func (q *signalQueue) pop() (signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return signal{}, false
	}
	s := q.pending[0]
	q.pending[0] = signal{}
	q.pending = q.pending[1:]
	return s, true
}

// ready is signalled after a push.
func (q *signalQueue) ready() <-chan struct{} {
	return q.wake
}

// subscription is one merged set of open adapters.
type subscription struct {
	gen      uint64
	releases []func() error
}

// close releases every adapter handle, newest first.
func (s *subscription) close() error {
	var errs []error
	for i := len(s.releases) - 1; i >= 0; i-- {
		if err := s.releases[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.releases = nil
	return errors.Join(errs...)
}

// merge opens the error adapter and one adapter per kind in mask, all
// feeding q. If any adapter fails to open, the ones already opened are
// released before returning.
func merge(w NativeWatch, mask ChangeMask, gen uint64, q *signalQueue) (*subscription, error) {
	if !mask.Valid() {
		return nil, errors.InvalidConfigurationf("change mask %d selects no channels", uint8(mask))
	}

	adapters := []adapter{{channel: ChannelError}}
	for _, kind := range mask.Kinds() {
		adapters = append(adapters, adapterFor(kind))
	}

	sub := &subscription{gen: gen}
	for _, a := range adapters {
		release, err := a.open(w, gen, q.push)
		if err != nil {
			_ = sub.close()
			return nil, err
		}
		sub.releases = append(sub.releases, release)
	}
	return sub, nil
}
