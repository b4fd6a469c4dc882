package config

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the config and state directories.
const AppName = "bundlr"

// Build modes.
const (
	ModeWorker  = "worker"
	ModeCommand = "command"
)

// Worker wire codecs.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Placeholders expanded in build.command.run and build.command.output_dir.
const (
	PlaceholderPlatform = "{platform}"
	PlaceholderOutput   = "{output}"
)

// Config represents the complete bundlr configuration
type Config struct {
	Project ProjectConfig `mapstructure:"project" yaml:"project"`
	Build   BuildConfig   `mapstructure:"build" yaml:"build"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ProjectConfig locates the project being bundled
type ProjectConfig struct {
	// Root is the project directory. Non-bundle files are served from here
	// and the command builder watches it.
	Root string `mapstructure:"root" yaml:"root"`
	// Entry is the bundle filename requested by `bundle` and `watch`.
	Entry string `mapstructure:"entry" yaml:"entry"`
}

// BuildConfig selects and configures the builder process per platform
type BuildConfig struct {
	// Platforms lists the target platforms `watch` starts by default.
	Platforms []string `mapstructure:"platforms" yaml:"platforms"`
	// Mode is "worker" (long-lived worker process speaking the frame
	// protocol) or "command" (one-shot bundler command per build).
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Worker  WorkerConfig  `mapstructure:"worker" yaml:"worker"`
	Command CommandConfig `mapstructure:"command" yaml:"command"`
}

// WorkerConfig configures worker mode
type WorkerConfig struct {
	// Command is the worker executable.
	Command string `mapstructure:"command" yaml:"command"`
	// Args are passed to Command verbatim.
	Args []string `mapstructure:"args" yaml:"args"`
	// Codec is the frame encoding on the event pipe: "json" or "cbor".
	Codec string `mapstructure:"codec" yaml:"codec"`
	// Verbose asks the worker for detailed log output.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
}

// CommandConfig configures command mode
type CommandConfig struct {
	// Run is a shell command line. {platform} and {output} are expanded.
	Run string `mapstructure:"run" yaml:"run"`
	// OutputDir is where Run writes its assets, relative to the project
	// root unless absolute. {platform} is expanded.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// Watch rebuilds when files under the project root change.
	Watch bool `mapstructure:"watch" yaml:"watch"`
	// DebounceMs coalesces bursts of file changes into one rebuild.
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	// Ignore holds glob patterns (relative to the project root) whose
	// changes never trigger a rebuild.
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
}

// LoggingConfig controls the bundlr.log output
type LoggingConfig struct {
	// Enabled turns file logging on. When off, only warnings reach stderr.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is one of: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds bundlr.log. Empty means the XDG state directory.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB triggers rotation once bundlr.log grows past it
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress zstd-compresses rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Root:  ".",
			Entry: "index.bundle",
		},
		Build: BuildConfig{
			Platforms: []string{"ios", "android"},
			Mode:      ModeCommand,
			Worker: WorkerConfig{
				Codec: CodecJSON,
			},
			Command: CommandConfig{
				OutputDir:  filepath.Join(".bundlr", PlaceholderPlatform),
				Watch:      true,
				DebounceMs: 100,
				Ignore: []string{
					"**/.git/**",
					"**/node_modules/**",
					"**/.bundlr/**",
				},
			},
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Debounce returns DebounceMs as a time.Duration
func (c *CommandConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ExpandOutputDir returns OutputDir for platform, resolved against root.
func (c *CommandConfig) ExpandOutputDir(root, platform string) string {
	dir := strings.ReplaceAll(c.OutputDir, PlaceholderPlatform, platform)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// ExpandRun returns Run with both placeholders substituted.
func (c *CommandConfig) ExpandRun(platform, outputDir string) string {
	r := strings.NewReplacer(PlaceholderPlatform, platform, PlaceholderOutput, outputDir)
	return r.Replace(c.Run)
}

// ResolveDir returns the directory for bundlr.log.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(xdg.StateHome, AppName, "logs")
}

// HasPlatform reports whether p is listed in build.platforms.
func (c *BuildConfig) HasPlatform(p string) bool {
	return slices.Contains(c.Platforms, p)
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("project.root", defaults.Project.Root)
	viper.SetDefault("project.entry", defaults.Project.Entry)

	viper.SetDefault("build.platforms", defaults.Build.Platforms)
	viper.SetDefault("build.mode", defaults.Build.Mode)
	viper.SetDefault("build.worker.command", defaults.Build.Worker.Command)
	viper.SetDefault("build.worker.args", defaults.Build.Worker.Args)
	viper.SetDefault("build.worker.codec", defaults.Build.Worker.Codec)
	viper.SetDefault("build.worker.verbose", defaults.Build.Worker.Verbose)
	viper.SetDefault("build.command.run", defaults.Build.Command.Run)
	viper.SetDefault("build.command.output_dir", defaults.Build.Command.OutputDir)
	viper.SetDefault("build.command.watch", defaults.Build.Command.Watch)
	viper.SetDefault("build.command.debounce_ms", defaults.Build.Command.DebounceMs)
	viper.SetDefault("build.command.ignore", defaults.Build.Command.Ignore)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ProjectConfigName is the per-project config file looked up in the
// working directory.
const ProjectConfigName = "bundlr.yaml"
