package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/bundlr/internal/errors"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build every platform and rebuild on change",
	Long: `Start a builder for each platform by requesting the entry bundle, then
render build progress, errors and builder logs until interrupted.

Platforms default to build.platforms from the configuration.

Examples:
  bundlr watch
  bundlr watch -p ios -p android -v`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchPlatforms []string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVarP(&watchPlatforms, "platform", "p", nil, "Platform to build (repeatable; default: build.platforms)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	platforms := watchPlatforms
	if len(platforms) == 0 {
		platforms = a.cfg.Build.Platforms
	}
	if len(platforms) == 0 {
		return fmt.Errorf("no platforms to build: pass --platform or set build.platforms")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := a.reporter(cmd.ErrOrStderr())
	defer rep.Detach()

	var wg conc.WaitGroup
	for _, p := range platforms {
		wg.Go(func() { a.warm(ctx, cmd, p) })
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// warm requests the entry bundle so the platform's builder starts. Build
// failures are already rendered from the event stream; only outcomes the
// stream does not carry are printed here.
func (a *app) warm(ctx context.Context, cmd *cobra.Command, platform string) {
	entry := a.cfg.Project.Entry
	_, err := a.compiler.GetAsset(ctx, entry, platform, nil)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.IsBuildFailure(err):
		a.logger.WithPlatform(platform).Warn("initial build failed", "error", err)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", platform, err)
	}
}
