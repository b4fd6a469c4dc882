package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/bundlr/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "bundlr",
	Short: "Multi-platform bundle build orchestrator",
	Long: `Bundlr builds an application bundle for several target platforms at
once. Each platform gets its own builder process, and finished assets
are served from an in-memory cache until the next rebuild replaces them.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/bundlr/config.yaml, then ./bundlr.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "show every builder log line")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug/info/warn/error)")
	bindGlobalFlags()
}

func bindGlobalFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BUNDLR")
	// e.g. BUNDLR_BUILD_COMMAND_RUN for build.command.run
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
		return
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(config.ConfigDir())
	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()

	// A project file in the working directory overrides the user config.
	if _, err := os.Stat(config.ProjectConfigName); err == nil {
		viper.SetConfigFile(config.ProjectConfigName)
		_ = viper.MergeInConfig()
	}
}
