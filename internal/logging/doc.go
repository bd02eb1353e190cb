// Package logging provides structured debug logging for tosh.
//
// This package wraps Go's log/slog to write JSON records describing what the
// process orchestration core did: which stages were spawned with which process
// ids, which children were reaped, which sweeps ran. It never writes the
// user-facing job reports; those go to the shell's standard output.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logdir", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("stage spawned", "pid", pid)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	jobLogger := logger.WithSession(sessionID).WithJob(job.ID)
//	jobLogger.WithStage(1).Debug("pipe wired", "read_fd", r, "write_fd", w)
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"pipe wired","session_id":"...","job_id":"...","stage":1,"read_fd":5,"write_fd":6}
//
// # Log Levels
//
// The level of a logger and all loggers derived from it can be changed at
// runtime with [Logger.SetLevel], which is how a reloaded configuration file
// takes effect.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output.
package logging
