package watcher

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/listenupapp/changefeed/internal/errors"
)

// Buffer size bounds, in bytes.
const (
	MinBufferSize     = 4096
	MaxBufferSize     = 65536
	DefaultBufferSize = MinBufferSize
)

// ErrQueueOverflow is reported on ChannelError when the native notification
// queue dropped events.
var ErrQueueOverflow = errors.Overflow("native notification queue overflow")

// Channel identifies one native notification channel.
type Channel uint8

const (
	ChannelCreated Channel = iota
	ChannelDeleted
	ChannelChanged
	ChannelRenamed
	ChannelError
)

func (c Channel) String() string {
	switch c {
	case ChannelCreated:
		return "created"
	case ChannelDeleted:
		return "deleted"
	case ChannelChanged:
		return "changed"
	case ChannelRenamed:
		return "renamed"
	case ChannelError:
		return "error"
	default:
		return "unknown"
	}
}

// Native is one raw notification as the backend reports it.
// Err is only set on ChannelError; OldName and OldFullPath only on
// ChannelRenamed.
type Native struct {
	Name        string
	FullPath    string
	OldName     string
	OldFullPath string
	Err         error
}

// Token identifies one registered callback.
type Token uint64

// NativeWatch is the platform watch capability a Session drives.
// Callbacks may be invoked from any goroutine owned by the implementation.
type NativeWatch interface {
	// Subscribe registers fn on one channel.
	Subscribe(ch Channel, fn func(Native)) (Token, error)

	// Unsubscribe releases a registration. Unknown tokens are ignored.
	Unsubscribe(t Token) error

	// BufferSize returns the current notification buffer size in bytes.
	BufferSize() int

	// SetBufferSize changes the notification buffer size.
	SetBufferSize(size int) error

	// Close releases the native watch and every registration.
	Close() error
}

// isOverflow reports whether a native error means the notification queue
// overflowed, the only failure a feed recovers from by itself.
func isOverflow(err error) bool {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		return true
	}
	var domainErr *errors.Error
	return errors.As(err, &domainErr) && domainErr.Code.Recoverable()
}

// clampBufferSize bounds size to [MinBufferSize, MaxBufferSize].
func clampBufferSize(size int) int {
	switch {
	case size < MinBufferSize:
		return MinBufferSize
	case size > MaxBufferSize:
		return MaxBufferSize
	default:
		return size
	}
}

// registry holds the per-channel callbacks of a backend. Backends embed it so
// that every implementation shares one subscribe/dispatch code path.
type registry struct {
	mu        sync.RWMutex
	nextToken Token
	channels  map[Token]Channel
	callbacks [ChannelError + 1]map[Token]func(Native)
}

func (r *registry) subscribe(ch Channel, fn func(Native)) (Token, error) {
	if ch > ChannelError {
		return 0, errors.InvalidArgumentf("unknown channel %d", uint8(ch))
	}
	if fn == nil {
		return 0, errors.InvalidArgument("callback must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels == nil {
		r.channels = make(map[Token]Channel)
	}
	if r.callbacks[ch] == nil {
		r.callbacks[ch] = make(map[Token]func(Native))
	}
	r.nextToken++
	token := r.nextToken
	r.channels[token] = ch
	r.callbacks[ch][token] = fn
	return token, nil
}

func (r *registry) unsubscribe(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[t]
	if !ok {
		return
	}
	delete(r.channels, t)
	delete(r.callbacks[ch], t)
}

func (r *registry) dispatch(ch Channel, n Native) {
	r.mu.RLock()
	fns := make([]func(Native), 0, len(r.callbacks[ch]))
	for _, fn := range r.callbacks[ch] {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(n)
	}
}

func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = nil
	for i := range r.callbacks {
		r.callbacks[i] = nil
	}
}
