// Package di provides dependency injection configuration for the changefeed
// command.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/changefeed/internal/config"
	"github.com/listenupapp/changefeed/internal/di/providers"
	"github.com/listenupapp/changefeed/internal/logger"
)

// NewContainer creates and configures the DI container. args are the
// command-line arguments without the program name.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Feed
	do.Provide(injector, providers.ProvideDiagnostics)
	do.Provide(injector, providers.ProvideSession)
	do.Provide(injector, providers.ProvideFeed)

	return injector
}

// Bootstrap resolves every service, which opens the native watch and
// starts the feed.
func Bootstrap(injector *do.RootScope) (*providers.FeedHandle, error) {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return nil, err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	feed, err := do.Invoke[*providers.FeedHandle](injector)
	if err != nil {
		return nil, err
	}
	return feed, nil
}
