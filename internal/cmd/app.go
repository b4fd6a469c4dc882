package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/bundlr/internal/builder"
	"github.com/Iron-Ham/bundlr/internal/compiler"
	"github.com/Iron-Ham/bundlr/internal/config"
	"github.com/Iron-Ham/bundlr/internal/event"
	"github.com/Iron-Ham/bundlr/internal/logging"
	"github.com/Iron-Ham/bundlr/internal/report"
)

// app wires the configuration, logger, event bus and compiler shared by the
// build commands.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	compiler *compiler.Compiler
}

type appOption func(*config.Config)

// withoutWatch turns off rebuild-on-change for one-shot commands.
func withoutWatch() appOption {
	return func(c *config.Config) { c.Build.Command.Watch = false }
}

func newApp(opts ...appOption) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded",
		"config_file", viper.ConfigFileUsed(),
		"mode", cfg.Build.Mode,
		"root", cfg.Project.Root,
	)

	bus := event.NewBus(event.WithLogger(logger))

	spawner, err := builder.NewSpawner(cfg, logger, compiler.BuilderLogFunc(bus, logger))
	if err != nil {
		// Plain source reads work without a builder, so the error is
		// deferred to the first build request.
		spawnErr := err
		spawner = builder.SpawnerFunc(func(string) (builder.Process, error) {
			return nil, spawnErr
		})
	}

	c, err := compiler.New(compiler.Options{
		Root:    cfg.Project.Root,
		Spawner: spawner,
		Bus:     bus,
		Logger:  logger,
	})
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, bus: bus, compiler: c}, nil
}

// newLogger returns the rotating file logger, or a stderr logger limited to
// warnings when file logging is off.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NewWriterLogger(os.Stderr, logging.LevelWarn), nil
	}
	logger, err := logging.NewRotatingLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger.WithComponent("cli"), nil
}

// reporter attaches a terminal reporter writing to w.
func (a *app) reporter(w io.Writer) *report.Reporter {
	r := report.New(w, report.WithVerbose(viper.GetBool("verbose")))
	r.Attach(a.bus)
	return r
}

// Close stops every builder and releases the log file.
func (a *app) Close() error {
	err := a.compiler.Close()
	if lerr := a.logger.Close(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}
