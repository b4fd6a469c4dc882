package compiler

import (
	"github.com/Iron-Ham/bundlr/internal/builder"
	"github.com/Iron-Ham/bundlr/internal/event"
	"github.com/Iron-Ham/bundlr/internal/logging"
)

// BuilderLogFunc returns a builder.LogFunc that writes builder output to
// logger and publishes it on bus as builder.log events. Either may be nil.
func BuilderLogFunc(bus *event.Bus, logger *logging.Logger) builder.LogFunc {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return func(platform string, entry builder.LogEntry) {
		log := logger.WithPlatform(platform)
		args := []any{"issuer", entry.Issuer, "type", entry.Type}
		text := entry.Text()

		switch entry.Type {
		case builder.LogDebug, builder.LogProgress:
			log.Debug(text, args...)
		case builder.LogWarn:
			log.Warn(text, args...)
		case builder.LogError:
			log.Error(text, args...)
		default:
			log.Info(text, args...)
		}

		if bus != nil {
			bus.Publish(event.NewBuilderLogEvent(platform, entry.Type, entry.Issuer, entry.Message))
		}
	}
}
