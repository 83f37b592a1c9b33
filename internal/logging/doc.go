// Package logging provides structured logging for usbipd-manager.
//
// It wraps log/slog to write JSON lines, either to stderr or to a size-rotated
// file in the configured log directory. The UI runs in the terminal's alternate
// screen, so interactive sessions always log to a file.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	sup := logger.WithComponent("supervisor")
//	sup.WithDevice("1-6").Info("auto-attach started", "pid", pid)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"auto-attach started","component":"supervisor","bus_id":"1-6","pid":4242}
//
// # Reading Logs
//
// [ReadEntries] decodes the active file and its rotated backups in order and
// applies a [Filter]; the `logs` command is built on it.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created with With* share the parent's writer.
package logging
