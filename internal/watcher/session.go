package watcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listenupapp/changefeed/internal/errors"
	"github.com/listenupapp/changefeed/internal/id"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	// BufferSize is the initial notification buffer size, clamped to
	// [MinBufferSize, MaxBufferSize]. Zero means DefaultBufferSize.
	BufferSize int

	Logger *slog.Logger

	// Diagnostics receives buffer recovery reports. Defaults to logging
	// through Logger.
	Diagnostics Diagnostics

	// QueueHint is the initial capacity of the pending notification queue.
	QueueHint int
}

func (o *SessionOptions) setDefaults() {
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	o.BufferSize = clampBufferSize(o.BufferSize)
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Diagnostics == nil {
		o.Diagnostics = NewLogDiagnostics(o.Logger)
	}
	if o.QueueHint <= 0 {
		o.QueueHint = 64
	}
}

// Stream is the consumer side of a started session.
type Stream struct {
	records chan Record
	done    chan struct{}
	err     error
}

func newStream() *Stream {
	return &Stream{
		records: make(chan Record),
		done:    make(chan struct{}),
	}
}

// Records delivers notifications in order. It is closed when the stream
// ends.
func (s *Stream) Records() <-chan Record {
	return s.records
}

// Done is closed when the stream has ended and every native subscription
// is released.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal fault that ended the stream. It is nil while the
// stream is live and after a stop.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Stream) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// run is one started feed.
type run struct {
	ctrl     *controller
	stream   *Stream
	stop     chan struct{}
	stopOnce sync.Once
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Session owns a native watch and at most one live feed over it.
type Session struct {
	id     string
	watch  NativeWatch
	opts   SessionOptions
	logger *slog.Logger

	mu     sync.Mutex
	active *run
	closed bool
}

// NewSession creates a session over watch. The session takes ownership of
// watch and closes it in Close.
func NewSession(watch NativeWatch, opts SessionOptions) *Session {
	opts.setDefaults()
	sessionID := id.MustGenerate("ws")
	return &Session{
		id:     sessionID,
		watch:  watch,
		opts:   opts,
		logger: opts.Logger.With("session_id", sessionID),
	}
}

// ID returns the session identifier used in log output.
func (s *Session) ID() string {
	return s.id
}

// Start begins delivering the kinds selected by mask. Cancelling ctx stops
// the session.
func (s *Session) Start(ctx context.Context, mask ChangeMask) (*Stream, error) {
	if !mask.Valid() {
		return nil, errors.InvalidConfigurationf("change mask %d selects no kinds", uint8(mask))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Closed("session is closed")
	}
	if s.active != nil && !s.active.stream.ended() {
		return nil, errors.AlreadyStarted("session already has a live stream")
	}

	queue := newSignalQueue(s.opts.QueueHint)
	ctrl := newController(s.watch, mask, s.opts.BufferSize, s.opts.Diagnostics, s.logger, queue)
	if err := ctrl.start(); err != nil {
		ctrl.stop()
		return nil, err
	}

	r := &run{
		ctrl:   ctrl,
		stream: newStream(),
		stop:   make(chan struct{}),
	}
	s.active = r

	s.logger.Info("watch session started",
		"changes", mask.String(),
		"buffer_size", ctrl.BufferSize(),
	)

	go s.loop(ctx, r)
	return r.stream, nil
}

// Stop ends the live stream, if any, and releases its native subscriptions.
// Stop is idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	r := s.active
	if r == nil {
		return nil
	}
	if r.ctrl.State() == StateStopped {
		return nil
	}
	r.requestStop()
	<-r.stream.done

	// The loop has exited, so the controller is ours again.
	r.ctrl.stop()
	s.logger.Info("watch session stopped")
	return nil
}

// Close stops the session and closes the native watch.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	_ = s.stopLocked()
	s.closed = true
	return s.watch.Close()
}

// State reports the state of the most recently started feed.
func (s *Session) State() State {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return StateIdle
	}
	return r.ctrl.State()
}

// BufferSize reports the current notification buffer size.
func (s *Session) BufferSize() int {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return s.opts.BufferSize
	}
	return r.ctrl.BufferSize()
}

// loop is the control loop of one feed. It is the only goroutine that
// touches the controller after Start returns.
func (s *Session) loop(ctx context.Context, r *run) {
	defer close(r.stream.done)
	defer close(r.stream.records)

	stopping := func() bool {
		select {
		case <-r.stop:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	for {
		select {
		case <-r.stop:
			r.ctrl.stop()
			return
		case <-ctx.Done():
			r.ctrl.stop()
			return
		case <-r.ctrl.queue.ready():
		}

		for {
			if stopping() {
				r.ctrl.stop()
				return
			}
			sig, ok := r.ctrl.queue.pop()
			if !ok {
				break
			}

			rec, deliver, err := r.ctrl.handle(sig)
			if err != nil {
				r.stream.err = err
				s.logger.Error("watch session failed", "error", err)
				return
			}
			if !deliver {
				continue
			}

			select {
			case r.stream.records <- rec:
			case <-r.stop:
				r.ctrl.stop()
				return
			case <-ctx.Done():
				r.ctrl.stop()
				return
			}
		}
	}
}
