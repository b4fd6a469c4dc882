package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "build.mode", Value: "daemon", Message: "must be one of: worker, command"}
	want := "build.mode: must be one of: worker, command (got: daemon)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	tests := []struct {
		name string
		errs ValidationErrors
		want string
	}{
		{"empty", nil, ""},
		{"single", ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}, "a: bad (got: 1)"},
		{
			"multiple",
			ValidationErrors{{Field: "a", Value: 1, Message: "bad"}, {Field: "b", Value: 2, Message: "worse"}},
			"2 validation errors:\n  1. a: bad (got: 1)\n  2. b: worse (got: 2)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.errs.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid, got: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty root", func(c *Config) { c.Project.Root = " " }, "project.root"},
		{"empty entry", func(c *Config) { c.Project.Entry = "" }, "project.entry"},
		{"uppercase platform", func(c *Config) { c.Build.Platforms = []string{"iOS"} }, "build.platforms[0]"},
		{"platform with slash", func(c *Config) { c.Build.Platforms = []string{"ios", "a/b"} }, "build.platforms[1]"},
		{"duplicate platform", func(c *Config) { c.Build.Platforms = []string{"ios", "ios"} }, "build.platforms[1]"},
		{"unknown mode", func(c *Config) { c.Build.Mode = "daemon" }, "build.mode"},
		{"empty mode", func(c *Config) { c.Build.Mode = "" }, "build.mode"},
		{"unknown codec", func(c *Config) { c.Build.Worker.Codec = "msgpack" }, "build.worker.codec"},
		{"negative debounce", func(c *Config) { c.Build.Command.DebounceMs = -1 }, "build.command.debounce_ms"},
		{"huge debounce", func(c *Config) { c.Build.Command.DebounceMs = 120_000 }, "build.command.debounce_ms"},
		{"run without output dir", func(c *Config) {
			c.Build.Command.Run = "make bundle"
			c.Build.Command.OutputDir = ""
		}, "build.command.output_dir"},
		{"bad ignore glob", func(c *Config) { c.Build.Command.Ignore = []string{"[unclosed"} }, "build.command.ignore[0]"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_EmptyCodecAllowed(t *testing.T) {
	cfg := Default()
	cfg.Build.Worker.Codec = ""
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("empty codec should default silently, got %v", errs)
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Build.Mode = "nope"
	cfg.Logging.Level = "loud"
	cfg.Logging.MaxBackups = -2

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
	if !strings.HasPrefix(ValidationErrors(errs).Error(), "3 validation errors:") {
		t.Errorf("unexpected aggregate message: %q", ValidationErrors(errs).Error())
	}
}

func TestConfig_ReadyFor(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"command mode without run", func(c *Config) {}, "build.command.run"},
		{"command mode ready", func(c *Config) { c.Build.Command.Run = "make" }, ""},
		{"worker mode without command", func(c *Config) { c.Build.Mode = ModeWorker }, "build.worker.command"},
		{"worker mode ready", func(c *Config) {
			c.Build.Mode = ModeWorker
			c.Build.Worker.Command = "node"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.ReadyFor()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("ReadyFor() = %v, want nil", err)
				}
				return
			}
			var verr ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.wantField {
				t.Errorf("ReadyFor() = %v, want error on %s", err, tt.wantField)
			}
		})
	}
}

func TestValidLists(t *testing.T) {
	if len(ValidLogLevels()) != 4 {
		t.Errorf("ValidLogLevels() = %v", ValidLogLevels())
	}
	if len(ValidModes()) != 2 || len(ValidCodecs()) != 2 {
		t.Errorf("ValidModes() = %v, ValidCodecs() = %v", ValidModes(), ValidCodecs())
	}
}
