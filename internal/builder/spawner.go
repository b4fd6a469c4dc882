package builder

import (
	"fmt"

	"github.com/Iron-Ham/bundlr/internal/config"
	"github.com/Iron-Ham/bundlr/internal/errors"
	"github.com/Iron-Ham/bundlr/internal/logging"
)

// NewSpawner returns the Spawner selected by cfg.Build.Mode.
func NewSpawner(cfg *config.Config, logger *logging.Logger, onLog LogFunc) (Spawner, error) {
	if err := cfg.ReadyFor(); err != nil {
		return nil, err
	}

	switch cfg.Build.Mode {
	case config.ModeWorker:
		w := cfg.Build.Worker
		return NewWorkerSpawner(WorkerOptions{
			Command: w.Command,
			Args:    w.Args,
			Dir:     cfg.Project.Root,
			Codec:   w.Codec,
			Verbose: w.Verbose,
			Logger:  logger,
			OnLog:   onLog,
		}), nil

	case config.ModeCommand:
		return NewCommandSpawner(CommandOptions{
			Root:    cfg.Project.Root,
			Command: cfg.Build.Command,
			Logger:  logger,
			OnLog:   onLog,
		}), nil

	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown build mode %q", cfg.Build.Mode)).
			WithField("build.mode").WithValue(cfg.Build.Mode)
	}
}
