package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/listenupapp/changefeed/internal/errors"
)

// FSNotifyWatch implements NativeWatch with fsnotify.
type FSNotifyWatch struct {
	registry

	logger  *slog.Logger
	opts    Options
	root    string
	watcher *fsnotify.Watcher

	mu         sync.Mutex // protects dirs and bufferSize
	dirs       map[string]struct{}
	bufferSize int

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// pendingRename is the old half of a rename waiting for its create.
type pendingRename struct {
	path  string
	timer *time.Timer
}

// NewFSNotifyWatch watches the directory root with fsnotify.
func NewFSNotifyWatch(logger *slog.Logger, root string, opts Options) (*FSNotifyWatch, error) {
	opts.setDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root, err := watchRoot(root)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &FSNotifyWatch{
		logger:     logger,
		opts:       opts,
		root:       root,
		watcher:    fw,
		dirs:       make(map[string]struct{}),
		bufferSize: opts.BufferSize,
		done:       make(chan struct{}),
	}

	if err := w.watchDir(root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// watchRoot cleans root and checks that it is a directory.
func watchRoot(root string) (string, error) {
	if root == "" {
		return "", errors.InvalidArgument("watch path must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve watch path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return "", errors.InvalidArgumentf("watch path %s is not a directory", abs)
	}
	return abs, nil
}

// watchDir adds dir and, when recursive, every directory below it.
func (w *FSNotifyWatch) watchDir(dir string) error {
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

func (w *FSNotifyWatch) addWatch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.dirs[dir]; exists {
		return nil
	}
	if err := w.watcher.AddWith(dir, fsnotify.WithBufferSize(w.bufferSize)); err != nil {
		return fmt.Errorf("failed to add watch for %s: %w", dir, err)
	}
	w.dirs[dir] = struct{}{}
	w.logger.Debug("added watch", "path", dir, "buffer_size", w.bufferSize)
	return nil
}

func (w *FSNotifyWatch) forgetDir(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.dirs[dir]; !exists {
		return
	}
	delete(w.dirs, dir)
	w.logger.Debug("removed watch", "path", dir)
}

// processEvents is the only goroutine that dispatches, so notifications
// leave the backend in the order fsnotify reported them.
func (w *FSNotifyWatch) processEvents() {
	defer w.wg.Done()

	var pending *pendingRename
	var expired <-chan time.Time

	flush := func() {
		if pending == nil {
			return
		}
		pending.timer.Stop()
		w.emit(ChannelDeleted, pending.path)
		pending, expired = nil, nil
	}

	for {
		select {
		case <-w.done:
			return
		case <-expired:
			flush()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.opts.shouldIgnore(w.root, event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				w.handleCreate(event.Name, pending)
				if pending != nil {
					pending.timer.Stop()
					pending, expired = nil, nil
				}
				continue
			}

			flush()

			if event.Has(fsnotify.Rename) {
				timer := time.NewTimer(w.opts.RenameWindow)
				pending = &pendingRename{path: event.Name, timer: timer}
				expired = timer.C
				w.forgetDir(event.Name)
				continue
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			flush()
			w.registry.dispatch(ChannelError, Native{Err: err})
		}
	}
}

// handleCreate reports a create, or completes a rename when one is pending.
func (w *FSNotifyWatch) handleCreate(path string, pending *pendingRename) {
	if w.opts.IncludeSubdirectories {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.watchDir(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
		}
	}

	if pending != nil {
		w.registry.dispatch(ChannelRenamed, Native{
			Name:        relativeName(w.root, path),
			FullPath:    path,
			OldName:     relativeName(w.root, pending.path),
			OldFullPath: pending.path,
		})
		return
	}
	w.emit(ChannelCreated, path)
}

func (w *FSNotifyWatch) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove):
		w.forgetDir(event.Name)
		w.emit(ChannelDeleted, event.Name)
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		w.emit(ChannelChanged, event.Name)
	}
}

func (w *FSNotifyWatch) emit(ch Channel, path string) {
	w.registry.dispatch(ch, Native{
		Name:     relativeName(w.root, path),
		FullPath: path,
	})
}

// Subscribe implements NativeWatch.
func (w *FSNotifyWatch) Subscribe(ch Channel, fn func(Native)) (Token, error) {
	select {
	case <-w.done:
		return 0, errors.Closed("fsnotify watch is closed")
	default:
	}
	return w.registry.subscribe(ch, fn)
}

// Unsubscribe implements NativeWatch.
func (w *FSNotifyWatch) Unsubscribe(t Token) error {
	w.registry.unsubscribe(t)
	return nil
}

// BufferSize implements NativeWatch.
func (w *FSNotifyWatch) BufferSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bufferSize
}

// SetBufferSize re-adds every watched directory with the new size.
// fsnotify only applies the size when a path is added. The lock is not held
// across fsnotify calls: AddWith waits for the fsnotify reader, which may be
// waiting for processEvents.
func (w *FSNotifyWatch) SetBufferSize(size int) error {
	size = clampBufferSize(size)

	w.mu.Lock()
	if size == w.bufferSize {
		w.mu.Unlock()
		return nil
	}
	w.bufferSize = size
	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	w.mu.Unlock()

	var errs []error
	for _, dir := range dirs {
		if err := w.watcher.Remove(dir); err != nil {
			if errors.Is(err, fsnotify.ErrNonExistentWatch) || !dirExists(dir) {
				w.forgetDir(dir)
				continue
			}
			errs = append(errs, fmt.Errorf("failed to remove watch for %s: %w", dir, err))
			continue
		}
		if err := w.watcher.AddWith(dir, fsnotify.WithBufferSize(size)); err != nil {
			w.forgetDir(dir)
			if !dirExists(dir) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to re-add watch for %s: %w", dir, err))
		}
	}
	w.logger.Debug("notification buffer resized", "buffer_size", size, "watches", len(dirs))
	return errors.Join(errs...)
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Close implements NativeWatch.
func (w *FSNotifyWatch) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
		w.registry.reset()
	})
	return err
}
