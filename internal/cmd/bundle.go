package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/bundlr/internal/errors"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Build the bundle for one platform and write it to disk",
	Long: `Build the entry bundle for a single platform and write the result.

The builder runs once (watch mode is turned off), the bundle is written to
--bundle-output, and its source map and build stats are written when the
matching flags are given.

Examples:
  bundlr bundle --platform ios --bundle-output dist/main.jsbundle
  bundlr bundle -p android --bundle-output dist/index.android.bundle \
    --sourcemap-output dist/index.android.bundle.map --json dist/stats.json`,
	Args: cobra.NoArgs,
	RunE: runBundle,
}

var (
	bundlePlatform        string
	bundleEntry           string
	bundleOutput          string
	bundleSourceMapOutput string
	bundleStatsOutput     string
)

func init() {
	rootCmd.AddCommand(bundleCmd)

	bundleCmd.Flags().StringVarP(&bundlePlatform, "platform", "p", "", "Target platform (required)")
	bundleCmd.Flags().StringVar(&bundleEntry, "entry", "", "Bundle filename to request (default: project.entry)")
	bundleCmd.Flags().StringVar(&bundleOutput, "bundle-output", "", "Path to write the bundle to (required)")
	bundleCmd.Flags().StringVar(&bundleSourceMapOutput, "sourcemap-output", "", "Path to write the source map to")
	bundleCmd.Flags().StringVar(&bundleStatsOutput, "json", "", "Path to write build stats as JSON")
	_ = bundleCmd.MarkFlagRequired("platform")
	_ = bundleCmd.MarkFlagRequired("bundle-output")
}

func runBundle(cmd *cobra.Command, args []string) error {
	a, err := newApp(withoutWatch())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	entry := bundleEntry
	if entry == "" {
		entry = a.cfg.Project.Entry
	}

	rep := a.reporter(cmd.ErrOrStderr())
	defer rep.Detach()

	ctx := cmd.Context()
	asset, err := a.compiler.GetAsset(ctx, entry, bundlePlatform, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s for %s: %w", entry, bundlePlatform, err)
	}
	if err := writeOutput(bundleOutput, asset.Data); err != nil {
		return err
	}
	a.logger.Info("bundle written", "path", bundleOutput, "bytes", asset.Size(), "digest", asset.Digest)

	if bundleSourceMapOutput != "" {
		sourceMap, err := a.compiler.GetSourceMap(ctx, entry, bundlePlatform)
		if err != nil {
			if errors.Classify(err) == errors.KindSourceMapMissing {
				return fmt.Errorf("%s has no source map; drop --sourcemap-output or enable source maps in the bundler", entry)
			}
			return err
		}
		if err := writeOutput(bundleSourceMapOutput, sourceMap); err != nil {
			return err
		}
	}

	if bundleStatsOutput != "" {
		stats, _ := a.compiler.Stats(bundlePlatform)
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode stats: %w", err)
		}
		if err := writeOutput(bundleStatsOutput, append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
