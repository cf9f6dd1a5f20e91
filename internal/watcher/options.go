package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendAuto     = "auto"
	BackendFSNotify = "fsnotify"
	BackendInotify  = "inotify"
)

// Options configures a native watch backend.
type Options struct {
	// Backend selects the implementation. Empty means BackendAuto.
	Backend string

	// IncludeSubdirectories watches the whole tree under the root.
	IncludeSubdirectories bool

	IgnorePatterns []string
	IgnoreHidden   bool

	// RenameWindow is how long an fsnotify rename waits for the matching
	// create before it is reported as a delete.
	RenameWindow time.Duration

	// BufferSize is the initial notification buffer size in bytes.
	BufferSize int
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Backend == "" {
		o.Backend = BackendAuto
	}
	if o.RenameWindow == 0 {
		o.RenameWindow = 50 * time.Millisecond
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	o.BufferSize = clampBufferSize(o.BufferSize)

	// Default ignore patterns only when none were given (nil, not empty).
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.swp",
			"*~",
			"Thumbs.db",
		}
	}
}

// shouldIgnore checks if a path below root matches ignore patterns.
func (o *Options) shouldIgnore(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}

	if o.IgnoreHidden {
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(path)
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// relativeName is the name reported for path: its path relative to root.
func relativeName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return rel
}
