// Package watcher turns native file system notifications into one ordered
// feed of Records and recovers the feed from notification buffer overflow.
package watcher

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/listenupapp/changefeed/internal/errors"
)

// New creates a native watch on root.
// The backend is selected by opts.Backend:
// - inotify: Linux only, reads the kernel queue directly with a read buffer of BufferSize bytes.
// - fsnotify: portable, BufferSize is passed to the platform watch (ReadDirectoryChangesW on Windows).
// - auto: inotify on Linux, fsnotify everywhere else.
func New(logger *slog.Logger, root string, opts Options) (NativeWatch, error) {
	opts.setDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	backend := opts.Backend
	if backend == BackendAuto {
		backend = BackendFSNotify
		if runtime.GOOS == "linux" {
			backend = BackendInotify
		}
	}

	var (
		watch NativeWatch
		err   error
	)
	switch backend {
	case BackendInotify:
		watch, err = newInotifyWatch(logger, root, opts)
	case BackendFSNotify:
		var fw *FSNotifyWatch
		fw, err = NewFSNotifyWatch(logger, root, opts)
		if err == nil {
			watch = fw
		}
	default:
		return nil, errors.InvalidConfigurationf("unknown watch backend %q", opts.Backend)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	logger.Info("using "+backend+" backend", "path", root, "platform", runtime.GOOS)
	return watch, nil
}
