package watcher

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/listenupapp/changefeed/internal/errors"
)

// State is the lifecycle state of a session's feed.
type State int32

const (
	StateIdle State = iota
	StateSubscribed
	StateRecovering
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// nextBufferSize is the size to retry with after an overflow at size.
func nextBufferSize(size int) int {
	return min(size+MinBufferSize, MaxBufferSize)
}

// controller owns the merged subscription of one started feed and recovers
// it from buffer overflow. Only the control loop calls its methods once
// start has returned; state and bufferSize are atomics so that other
// goroutines can observe them.
type controller struct {
	watch  NativeWatch
	mask   ChangeMask
	diag   Diagnostics
	logger *slog.Logger
	queue  *signalQueue

	state        atomic.Int32
	bufferSize   atomic.Int64
	firstAttempt bool
	gen          uint64
	sub          *subscription
}

func newController(w NativeWatch, mask ChangeMask, bufferSize int, diag Diagnostics, logger *slog.Logger, q *signalQueue) *controller {
	c := &controller{
		watch:        w,
		mask:         mask,
		diag:         diag,
		logger:       logger,
		queue:        q,
		firstAttempt: true,
	}
	c.bufferSize.Store(int64(clampBufferSize(bufferSize)))
	return c
}

func (c *controller) State() State {
	return State(c.state.Load())
}

func (c *controller) BufferSize() int {
	return int(c.bufferSize.Load())
}

func (c *controller) setState(s State) {
	c.state.Store(int32(s))
}

// start applies the initial buffer size and subscribes: Idle -> Subscribed.
func (c *controller) start() error {
	if c.State() != StateIdle {
		return errors.AlreadyStarted("feed controller already started")
	}
	if err := c.watch.SetBufferSize(c.BufferSize()); err != nil {
		return fmt.Errorf("set initial buffer size: %w", err)
	}
	return c.attempt(c.BufferSize(), nil)
}

// attempt establishes a merged subscription at the current buffer size.
// Every successful attempt after the first reports the size transition that
// led to it.
func (c *controller) attempt(previousSize int, cause error) error {
	sub, err := merge(c.watch, c.mask, c.gen+1, c.queue)
	if err != nil {
		return err
	}
	if !c.firstAttempt {
		c.diag.BufferGrown(previousSize, c.BufferSize(), cause)
	}
	c.firstAttempt = false
	c.gen = sub.gen
	c.sub = sub
	c.setState(StateSubscribed)
	c.logger.Debug("feed subscribed",
		"generation", c.gen,
		"buffer_size", c.BufferSize(),
		"changes", c.mask.String(),
	)
	return nil
}

// handle processes one queued signal. It returns the record to deliver, if
// any, or the terminal fault that ends the feed.
func (c *controller) handle(s signal) (Record, bool, error) {
	switch s.kind {
	case signalRecord:
		return s.record, true, nil
	case signalMalformed:
		c.logger.Debug("dropping malformed notification", "error", s.err)
		return Record{}, false, nil
	}

	if s.gen != c.gen {
		c.logger.Debug("ignoring failure from a previous subscription",
			"generation", s.gen,
			"current_generation", c.gen,
			"error", s.err,
		)
		return Record{}, false, nil
	}

	if s.kind == signalOverflow {
		return Record{}, false, c.recover(s.err)
	}
	return Record{}, false, c.fail(errors.TerminalFault(s.err, "native watch fault"))
}

// recover grows the buffer and re-subscribes: Subscribed -> Recovering ->
// Subscribed, or Subscribed -> Failed once the buffer is at its maximum.
func (c *controller) recover(cause error) error {
	current := c.BufferSize()
	next := nextBufferSize(current)
	if next <= current {
		c.diag.BufferExhausted(current, next, cause)
		return c.fail(errors.TerminalFault(cause,
			fmt.Sprintf("notification buffer overflow at maximum size %d", current)))
	}

	c.setState(StateRecovering)
	c.teardown()

	if err := c.watch.SetBufferSize(next); err != nil {
		return c.fail(errors.TerminalFault(err, "grow notification buffer"))
	}
	c.bufferSize.Store(int64(next))

	if err := c.attempt(current, cause); err != nil {
		return c.fail(errors.TerminalFault(err, "re-subscribe after overflow"))
	}
	return nil
}

func (c *controller) fail(err error) error {
	c.teardown()
	c.setState(StateFailed)
	return err
}

// stop releases the subscription. Safe to call in any state, any number of
// times.
func (c *controller) stop() {
	c.teardown()
	c.setState(StateStopped)
}

func (c *controller) teardown() {
	if c.sub == nil {
		return
	}
	if err := c.sub.close(); err != nil {
		c.logger.Warn("failed to release native subscription", "generation", c.sub.gen, "error", err)
	}
	c.sub = nil
}
