package watcher

import (
	"sync"
)

// fakeWatch is a scripted NativeWatch. Notifications are injected with emit
// and delivered synchronously on the caller's goroutine.
type fakeWatch struct {
	registry

	mu             sync.Mutex
	calls          int
	bufferSize     int
	sizes          []int
	live           map[Token]Channel
	everSubscribed map[Channel]int
	subscribes     int
	unsubscribes   int
	staleReleases  int
	closed         int
	subscribeErr   map[Channel]error

	// overflowOnSubscribe reports one overflow to every new error channel
	// subscriber, i.e. once per subscription attempt.
	overflowOnSubscribe bool
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{
		bufferSize:     DefaultBufferSize,
		live:           make(map[Token]Channel),
		everSubscribed: make(map[Channel]int),
		subscribeErr:   make(map[Channel]error),
	}
}

func (f *fakeWatch) Subscribe(ch Channel, fn func(Native)) (Token, error) {
	f.mu.Lock()
	f.calls++
	if err := f.subscribeErr[ch]; err != nil {
		f.mu.Unlock()
		return 0, err
	}
	f.mu.Unlock()

	token, err := f.registry.subscribe(ch, fn)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.live[token] = ch
	f.everSubscribed[ch]++
	f.subscribes++
	overflow := f.overflowOnSubscribe && ch == ChannelError
	f.mu.Unlock()

	if overflow {
		fn(Native{Err: ErrQueueOverflow})
	}
	return token, nil
}

func (f *fakeWatch) Unsubscribe(t Token) error {
	f.mu.Lock()
	f.calls++
	if _, ok := f.live[t]; !ok {
		f.staleReleases++
		f.mu.Unlock()
		return nil
	}
	delete(f.live, t)
	f.unsubscribes++
	f.mu.Unlock()

	f.registry.unsubscribe(t)
	return nil
}

func (f *fakeWatch) BufferSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.bufferSize
}

func (f *fakeWatch) SetBufferSize(size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.bufferSize = size
	f.sizes = append(f.sizes, size)
	return nil
}

func (f *fakeWatch) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.closed++
	return nil
}

// emit delivers n to every live subscriber of ch.
func (f *fakeWatch) emit(ch Channel, n Native) {
	f.registry.dispatch(ch, n)
}

// emitBurst delivers n count times to the subscribers that are live now,
// even if they are released in between.
func (f *fakeWatch) emitBurst(ch Channel, n Native, count int) {
	f.registry.mu.RLock()
	fns := make([]func(Native), 0, len(f.registry.callbacks[ch]))
	for _, fn := range f.registry.callbacks[ch] {
		fns = append(fns, fn)
	}
	f.registry.mu.RUnlock()

	for range count {
		for _, fn := range fns {
			fn(n)
		}
	}
}

func (f *fakeWatch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeWatch) bufferSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.sizes))
	copy(out, f.sizes)
	return out
}

func (f *fakeWatch) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func (f *fakeWatch) liveOn(ch Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.live {
		if c == ch {
			return true
		}
	}
	return false
}

func (f *fakeWatch) subscribedEver(ch Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.everSubscribed[ch] > 0
}

func (f *fakeWatch) counts() (subscribes, unsubscribes, stale int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.unsubscribes, f.staleReleases
}

type diagnostic struct {
	exhausted bool
	oldSize   int
	newSize   int
	cause     error
}

// recordingDiagnostics records every report for assertions.
type recordingDiagnostics struct {
	mu      sync.Mutex
	entries []diagnostic
}

func (d *recordingDiagnostics) BufferGrown(oldSize, newSize int, cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, diagnostic{oldSize: oldSize, newSize: newSize, cause: cause})
}

func (d *recordingDiagnostics) BufferExhausted(oldSize, newSize int, cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, diagnostic{exhausted: true, oldSize: oldSize, newSize: newSize, cause: cause})
}

func (d *recordingDiagnostics) snapshot() []diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

// drainQueue pops every pending signal.
func drainQueue(q *signalQueue) []signal {
	var out []signal
	for {
		s, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}
