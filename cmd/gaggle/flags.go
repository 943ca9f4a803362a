package main

import (
	"fmt"
	"os"

	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/statslog"
	"github.com/spf13/cobra"
)

// runFlags holds the run-controlling flags shared by `gaggle run` and
// `gaggle manager` (spec.md §6: host/users/hatch-rate/run-time/etc
// apply gaggle-wide when running as a manager).
type runFlags struct {
	host            string
	users           int
	hatchRate       float64
	runTime         string
	throttle        float64
	noStats         bool
	onlySummary     bool
	resetStats      bool
	statusCodes     []int
	stickyFollow    bool
	logFile         string
	logLevel        []string
	verbose         int
	list            bool
	statsLogFile    string
	statsLogFormat  string
	debugLogFile    string
	debugLogFormat  string
	webHost         string
	webPort         int
	historyFile     string
	skipHostCheck   bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.host, "host", "", "target host, e.g. http://example.com (required)")
	cmd.Flags().IntVarP(&f.users, "users", "u", 1, "number of users to hatch")
	cmd.Flags().Float64VarP(&f.hatchRate, "hatch-rate", "r", 1, "users to hatch per second")
	cmd.Flags().StringVarP(&f.runTime, "run-time", "t", "", "stop after this long, e.g. 300s, 20m, 1h30m")
	cmd.Flags().Float64Var(&f.throttle, "throttle-requests", 0, "cap aggregate requests/sec, 0 disables")
	cmd.Flags().BoolVar(&f.noStats, "no-stats", false, "disable periodic live reporting")
	cmd.Flags().BoolVar(&f.onlySummary, "only-summary", false, "suppress periodic reports, print only the final summary")
	cmd.Flags().BoolVar(&f.resetStats, "reset-stats", false, "clear the in-memory aggregator once hatching completes")
	cmd.Flags().IntSliceVar(&f.statusCodes, "status-codes", nil, "status codes counted as success (default: any code below 400)")
	cmd.Flags().BoolVar(&f.stickyFollow, "sticky-follow", false, "stick to a redirect's final URL for subsequent requests")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "write logs to this file instead of stdout")
	cmd.Flags().StringSliceVarP(&f.logLevel, "log-level", "g", nil, "log level (debug, info, warn, error); repeatable")
	cmd.Flags().CountVarP(&f.verbose, "verbose", "v", "step the log level down one notch per repetition")
	cmd.Flags().BoolVarP(&f.list, "list", "l", false, "list configured task sets and exit")
	cmd.Flags().StringVar(&f.statsLogFile, "stats-log-file", "", "write every request record to this file")
	cmd.Flags().StringVar(&f.statsLogFormat, "stats-log-format", "json", "stats log format: json, csv, or raw")
	cmd.Flags().StringVar(&f.debugLogFile, "debug-log-file", "", "write debug records to this file")
	cmd.Flags().StringVar(&f.debugLogFormat, "debug-log-format", "json", "debug log format: json or raw")
	cmd.Flags().StringVar(&f.webHost, "web-host", "", "dashboard bind host, empty disables the dashboard")
	cmd.Flags().IntVar(&f.webPort, "web-port", 8089, "dashboard bind port")
	cmd.Flags().StringVar(&f.historyFile, "history-file", "", "bbolt file to persist this run's summary into, empty disables history")
	cmd.Flags().BoolVar(&f.skipHostCheck, "skip-host-check", false, "skip the startup reachability check against --host")
}

// initLoggingFromFlags opens --log-file (if set) and applies
// --log-level/-g and repeated -v, the latter stepping the level down
// once per repetition from warn.
func initLoggingFromFlags(f *runFlags) (*os.File, error) {
	level := log.WarnLevel
	if len(f.logLevel) > 0 {
		level = log.Level(f.logLevel[len(f.logLevel)-1])
	}
	for i := 0; i < f.verbose; i++ {
		level = log.StepDown(level)
	}

	var out *os.File
	var err error
	if f.logFile != "" {
		out, err = os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open --log-file %s: %w", f.logFile, err)
		}
	}

	cfg := log.Config{Level: level}
	if out != nil {
		cfg.Output = out
	}
	log.Init(cfg)
	return out, nil
}

// openStatsLog opens --stats-log-file in --stats-log-format, returning
// nil if no file was requested.
func openStatsLog(f *runFlags) (*statslog.Writer, *os.File, error) {
	if f.statsLogFile == "" {
		return nil, nil, nil
	}
	format, err := statslog.ParseFormat(f.statsLogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("--stats-log-format: %w", err)
	}
	file, err := os.Create(f.statsLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open --stats-log-file %s: %w", f.statsLogFile, err)
	}
	w := statslog.New(file, format)
	w.Start()
	return w, file, nil
}

// openDebugLog opens --debug-log-file in --debug-log-format (json or
// raw; csv is not a valid debug-log-format per spec.md §6), returning
// a DebugWriter that consumes DebugRecords -- a distinct schema from
// the stats log's RawRequest stream opened by openStatsLog.
func openDebugLog(f *runFlags) (*statslog.DebugWriter, *os.File, error) {
	if f.debugLogFile == "" {
		return nil, nil, nil
	}
	if f.debugLogFormat != "json" && f.debugLogFormat != "raw" {
		return nil, nil, fmt.Errorf("--debug-log-format must be json or raw, got %q", f.debugLogFormat)
	}
	format, err := statslog.ParseFormat(f.debugLogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("--debug-log-format: %w", err)
	}
	file, err := os.Create(f.debugLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open --debug-log-file %s: %w", f.debugLogFile, err)
	}
	w := statslog.NewDebug(file, format)
	w.Start()
	return w, file, nil
}
