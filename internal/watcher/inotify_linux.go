//go:build linux

package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/listenupapp/changefeed/internal/errors"
)

// inotifyMask is the set of inotify events every watch asks for.
// IN_MOVED_FROM and IN_MOVED_TO share a cookie and are paired into renames.
const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MODIFY | unix.IN_ATTRIB | unix.IN_MOVED_FROM | unix.IN_MOVED_TO

// pollTimeoutMillis bounds how long the reader waits before checking for
// Close.
const pollTimeoutMillis = 100

// moveWaitMillis is how long an IN_MOVED_FROM that ended a read waits for
// its IN_MOVED_TO in the next read.
const moveWaitMillis = 10

// InotifyWatch implements NativeWatch using Linux inotify directly. The read
// buffer follows BufferSize.
type InotifyWatch struct {
	registry

	logger *slog.Logger
	opts   Options
	root   string
	fd     int

	mu         sync.RWMutex // protects watches, wdPaths and bufferSize
	watches    map[string]int
	wdPaths    map[int]string
	bufferSize int

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// rawEvent is one decoded inotify record.
type rawEvent struct {
	wd     int
	mask   uint32
	cookie uint32
	path   string
}

// NewInotifyWatch watches the directory root with inotify.
func NewInotifyWatch(logger *slog.Logger, root string, opts Options) (*InotifyWatch, error) {
	opts.setDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root, err := watchRoot(root)
	if err != nil {
		return nil, err
	}

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	w := &InotifyWatch{
		logger:     logger,
		opts:       opts,
		root:       root,
		fd:         fd,
		watches:    make(map[string]int),
		wdPaths:    make(map[int]string),
		bufferSize: opts.BufferSize,
		done:       make(chan struct{}),
	}

	if err := w.watchDir(root); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	w.wg.Add(1)
	go w.readEvents()

	return w, nil
}

func newInotifyWatch(logger *slog.Logger, root string, opts Options) (NativeWatch, error) {
	w, err := NewInotifyWatch(logger, root, opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// watchDir adds dir and, when recursive, every directory below it.
func (w *InotifyWatch) watchDir(dir string) error {
	if !w.opts.IncludeSubdirectories {
		return w.addWatch(dir)
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.opts.shouldIgnore(w.root, p) {
			return filepath.SkipDir
		}
		if err := w.addWatch(p); err != nil {
			if p == dir {
				return err
			}
			w.logger.Error("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
}

// addWatch adds an inotify watch for a path.
func (w *InotifyWatch) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.watches[path]; exists {
		return nil
	}

	wd, err := unix.InotifyAddWatch(w.fd, path, uint32(inotifyMask))
	if err != nil {
		return fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	w.watches[path] = wd
	w.wdPaths[wd] = path
	w.logger.Debug("added watch", "path", path, "wd", wd)

	return nil
}

// forgetWatch drops the bookkeeping of a watch the kernel already removed.
func (w *InotifyWatch) forgetWatch(wd int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, exists := w.wdPaths[wd]
	if !exists {
		return
	}
	delete(w.wdPaths, wd)
	delete(w.watches, path)
	w.logger.Debug("removed watch", "path", path, "wd", wd)
}

// removeWatch removes the watch for dir and every watch below it.
func (w *InotifyWatch) removeWatch(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prefix := dir + string(filepath.Separator)
	for path, wd := range w.watches {
		if path != dir && !strings.HasPrefix(path, prefix) {
			continue
		}
		// The kernel may already have dropped it along with the directory.
		//nolint:gosec // G115: wd is always a small non-negative int from inotify
		_, _ = unix.InotifyRmWatch(w.fd, uint32(wd))

		delete(w.watches, path)
		delete(w.wdPaths, wd)
		w.logger.Debug("removed watch", "path", path, "wd", wd)
	}
}

// readEvents reads events from inotify until Close.
func (w *InotifyWatch) readEvents() {
	defer w.wg.Done()

	var buf []byte
	var carry []rawEvent
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}} //nolint:gosec // G115: fd is a small non-negative int

	for {
		select {
		case <-w.done:
			return
		default:
		}

		timeout := pollTimeoutMillis
		if len(carry) > 0 {
			timeout = moveWaitMillis
		}

		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			w.registry.dispatch(ChannelError, Native{Err: fmt.Errorf("failed to poll inotify: %w", err)})
			return
		}
		if n == 0 {
			w.flushMoves(carry)
			carry = nil
			continue
		}

		if size := w.BufferSize(); len(buf) != size {
			buf = make([]byte, size)
		}

		n, err = unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			w.registry.dispatch(ChannelError, Native{Err: fmt.Errorf("failed to read inotify events: %w", err)})
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}

		carry = w.dispatchEvents(append(carry, w.parseEvents(buf[:n])...))
	}
}

// parseEvents decodes a read buffer.
func (w *InotifyWatch) parseEvents(buf []byte) []rawEvent {
	events := make([]rawEvent, 0, len(buf)/unix.SizeofInotifyEvent)
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent + int(event.Len)

		name := ""
		if event.Len > 0 && offset <= len(buf) {
			nameBytes := buf[offset-int(event.Len) : offset]
			name = string(nameBytes[:clen(nameBytes)])
		}

		raw := rawEvent{wd: int(event.Wd), mask: event.Mask, cookie: event.Cookie}
		if event.Mask&unix.IN_Q_OVERFLOW == 0 {
			w.mu.RLock()
			dir, ok := w.wdPaths[int(event.Wd)]
			w.mu.RUnlock()
			if !ok {
				continue
			}
			raw.path = filepath.Join(dir, name)
		}
		events = append(events, raw)
	}
	return events
}

// dispatchEvents translates decoded events in order. A move is reported as
// a rename when the IN_MOVED_TO with the same cookie follows directly. An
// IN_MOVED_FROM that ends the batch is returned so that it can be paired
// with the first event of the next read.
func (w *InotifyWatch) dispatchEvents(events []rawEvent) (carry []rawEvent) {
	for i := 0; i < len(events); i++ {
		ev := events[i]

		switch {
		case ev.mask&unix.IN_Q_OVERFLOW != 0:
			w.registry.dispatch(ChannelError, Native{Err: ErrQueueOverflow})
			continue
		case ev.mask&unix.IN_IGNORED != 0:
			w.forgetWatch(ev.wd)
			continue
		}

		if w.opts.shouldIgnore(w.root, ev.path) {
			continue
		}

		switch {
		case ev.mask&unix.IN_MOVED_FROM != 0:
			if i+1 == len(events) {
				return []rawEvent{ev}
			}
			if to := events[i+1]; to.mask&unix.IN_MOVED_TO != 0 && to.cookie == ev.cookie {
				i++
				w.dispatchRename(ev, to)
				continue
			}
			w.moveOut(ev)
		case ev.mask&unix.IN_MOVED_TO != 0:
			w.watchNewDir(ev)
			w.emit(ChannelCreated, ev.path)
		case ev.mask&unix.IN_CREATE != 0:
			w.watchNewDir(ev)
			w.emit(ChannelCreated, ev.path)
		case ev.mask&unix.IN_DELETE != 0:
			w.emit(ChannelDeleted, ev.path)
		case ev.mask&unix.IN_DELETE_SELF != 0:
			if ev.path == w.root {
				w.registry.dispatch(ChannelError, Native{Err: fmt.Errorf("watched directory %s was removed", w.root)})
			}
		case ev.mask&(unix.IN_MODIFY|unix.IN_ATTRIB) != 0:
			w.emit(ChannelChanged, ev.path)
		}
	}
	return nil
}

// dispatchRename reports a paired move inside the tree. A moved directory
// is watched again under its new path.
func (w *InotifyWatch) dispatchRename(from, to rawEvent) {
	w.unwatchDir(from)
	if w.opts.shouldIgnore(w.root, to.path) {
		w.emit(ChannelDeleted, from.path)
		return
	}
	w.watchNewDir(to)
	w.registry.dispatch(ChannelRenamed, Native{
		Name:        relativeName(w.root, to.path),
		FullPath:    to.path,
		OldName:     relativeName(w.root, from.path),
		OldFullPath: from.path,
	})
}

// moveOut reports an IN_MOVED_FROM without a matching IN_MOVED_TO: the
// entry left the tree.
func (w *InotifyWatch) moveOut(ev rawEvent) {
	w.unwatchDir(ev)
	w.emit(ChannelDeleted, ev.path)
}

// flushMoves reports carried moves whose IN_MOVED_TO never arrived.
func (w *InotifyWatch) flushMoves(carry []rawEvent) {
	for _, ev := range carry {
		w.moveOut(ev)
	}
}

// unwatchDir drops the watches of a directory that moved away.
func (w *InotifyWatch) unwatchDir(ev rawEvent) {
	if ev.mask&unix.IN_ISDIR == 0 {
		return
	}
	w.removeWatch(ev.path)
}

// watchNewDir starts watching a directory that appeared in the tree.
func (w *InotifyWatch) watchNewDir(ev rawEvent) {
	if !w.opts.IncludeSubdirectories || ev.mask&unix.IN_ISDIR == 0 {
		return
	}
	if err := w.watchDir(ev.path); err != nil {
		w.logger.Warn("failed to watch new directory", "path", ev.path, "error", err)
	}
}

func (w *InotifyWatch) emit(ch Channel, path string) {
	w.registry.dispatch(ch, Native{
		Name:     relativeName(w.root, path),
		FullPath: path,
	})
}

// Subscribe implements NativeWatch.
func (w *InotifyWatch) Subscribe(ch Channel, fn func(Native)) (Token, error) {
	select {
	case <-w.done:
		return 0, errors.Closed("inotify watch is closed")
	default:
	}
	return w.registry.subscribe(ch, fn)
}

// Unsubscribe implements NativeWatch.
func (w *InotifyWatch) Unsubscribe(t Token) error {
	w.registry.unsubscribe(t)
	return nil
}

// BufferSize implements NativeWatch.
func (w *InotifyWatch) BufferSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bufferSize
}

// SetBufferSize resizes the read buffer. The reader picks the new size up
// before its next read.
func (w *InotifyWatch) SetBufferSize(size int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bufferSize = clampBufferSize(size)
	return nil
}

// Close stops the reader and closes the inotify descriptor.
func (w *InotifyWatch) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		closeErr = unix.Close(w.fd)
		w.registry.reset()
	})
	return closeErr
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
