package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/changefeed/internal/config"
	"github.com/listenupapp/changefeed/internal/logger"
	"github.com/listenupapp/changefeed/internal/watcher"
)

// ProvideDiagnostics provides the sink for buffer recovery reports.
func ProvideDiagnostics(i do.Injector) (watcher.Diagnostics, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return watcher.NewLogDiagnostics(log.WithField("component", "buffer").Logger), nil
}

// SessionHandle wraps the watch session with shutdown capability.
type SessionHandle struct {
	*watcher.Session
}

// Shutdown implements do.Shutdownable.
func (h *SessionHandle) Shutdown() error {
	return h.Session.Close()
}

// ProvideSession opens the native watch on the configured path and wraps it
// in a session.
func ProvideSession(i do.Injector) (*SessionHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	diag := do.MustInvoke[watcher.Diagnostics](i)

	watchLog := log.WithField("component", "watcher")
	watch, err := watcher.New(watchLog.Logger, cfg.Watch.Path, cfg.Watch.Options())
	if err != nil {
		return nil, err
	}

	session := watcher.NewSession(watch, watcher.SessionOptions{
		BufferSize:  cfg.Watch.BufferSize,
		Logger:      watchLog.Logger,
		Diagnostics: diag,
	})

	return &SessionHandle{Session: session}, nil
}

// FeedHandle is the started feed of the session.
type FeedHandle struct {
	*watcher.Stream
	session *SessionHandle
	cancel  context.CancelFunc
}

// Shutdown implements do.Shutdownable. It stops the feed and waits for it
// to release its subscriptions.
func (h *FeedHandle) Shutdown() error {
	h.cancel()
	select {
	case <-h.Done():
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("feed did not stop within %s", shutdownTimeout)
	}
	return h.session.Stop()
}

// ProvideFeed starts the session with the configured change mask.
func ProvideFeed(i do.Injector) (*FeedHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	session := do.MustInvoke[*SessionHandle](i)

	mask, err := cfg.Watch.ChangeMask()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := session.Start(ctx, mask)
	if err != nil {
		cancel()
		return nil, err
	}

	log.Info("Feed started",
		"session_id", session.ID(),
		"path", cfg.Watch.Path,
		"changes", mask.String(),
	)

	return &FeedHandle{Stream: stream, session: session, cancel: cancel}, nil
}
