package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/bundlr/internal/compiler"
)

var mimeCmd = &cobra.Command{
	Use:   "mime <file>",
	Short: "Print the content type served for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), compiler.MimeType(args[0]))
		return err
	},
}

func init() {
	rootCmd.AddCommand(mimeCmd)
}
