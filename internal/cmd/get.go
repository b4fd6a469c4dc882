package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/bundlr/internal/compiler"
)

var getCmd = &cobra.Command{
	Use:   "get <file>",
	Short: "Print a built asset or a project source file",
	Long: `Print the contents of a file to stdout.

Bundle filenames (containing ".bundle") are built for --platform and served
from the build output. Any other path is read from the project root.
With --map, the source map of the built asset is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var (
	getPlatform string
	getMap      bool
)

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getPlatform, "platform", "p", "", "Platform to build for")
	getCmd.Flags().BoolVar(&getMap, "map", false, "Print the asset's source map")
}

func runGet(cmd *cobra.Command, args []string) error {
	filename := args[0]
	if getMap && getPlatform == "" {
		return fmt.Errorf("--map requires --platform")
	}

	a, err := newApp(withoutWatch())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if compiler.IsBundle(filename) && getPlatform != "" {
		rep := a.reporter(cmd.ErrOrStderr())
		defer rep.Detach()
	}

	var data []byte
	if getMap {
		data, err = a.compiler.GetSourceMap(cmd.Context(), filename, getPlatform)
	} else {
		data, err = a.compiler.GetSource(cmd.Context(), filename, getPlatform)
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
