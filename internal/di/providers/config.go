// Package providers contains dependency injection providers for the
// changefeed command.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/changefeed/internal/config"
	"github.com/listenupapp/changefeed/internal/logger"
)

// Args are the command-line arguments, without the program name.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	// Validated by config.LoadConfig.
	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:       level,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting changefeed",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"watch_path", cfg.Watch.Path,
		"changes", cfg.Watch.Changes,
		"backend", cfg.Watch.Backend,
	)

	return log, nil
}
