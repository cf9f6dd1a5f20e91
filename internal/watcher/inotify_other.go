//go:build !linux

package watcher

import (
	"fmt"
	"log/slog"
	"runtime"
)

// newInotifyWatch fails: inotify only exists on Linux.
func newInotifyWatch(_ *slog.Logger, _ string, _ Options) (NativeWatch, error) {
	return nil, fmt.Errorf("inotify backend not available on %s", runtime.GOOS)
}
