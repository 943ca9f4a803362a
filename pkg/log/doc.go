/*
Package log provides structured logging for gaggle using zerolog.

The log package wraps zerolog to provide JSON or console structured
logging with component-specific child loggers, a configurable level,
and package-level helpers for the common cases.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("gaggle starting")

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Int("users", 50).Msg("hatching users")

	runLog := log.WithRunID(runID)
	runLog.Error().Err(err).Msg("run aborted")

# Integration points

This package is used by pkg/scheduler, pkg/runner, pkg/gaggle,
pkg/dashboard and cmd/gaggle.
*/
package log
