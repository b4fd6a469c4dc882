// Package logging provides structured logging for bundlr.
//
// It wraps Go's log/slog to write JSON lines to {dir}/bundlr.log, with
// optional size-based rotation and zstd-compressed backups. Build output
// forwarded from builder processes is logged through the same Logger, tagged
// with the platform and builder kind it came from.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	ios := logger.WithPlatform("ios").WithBuilder("worker")
//	ios.Info("build started", "reason", "invalid")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"build started","platform":"ios","builder":"worker","reason":"invalid"}
//
// # Rotation
//
//	logger, err := logging.NewRotatingLogger(dir, "DEBUG", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// Backups are named bundlr.log.1 (newest) through bundlr.log.N; compressed
// backups carry a .zst suffix. [ReadLogs] reads the live file and all
// backups back into [LogEntry] values for the logs command.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created with With* share the parent's output.
package logging
