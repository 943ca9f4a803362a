package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/gaggle/pkg/dashboard"
	"github.com/cuemby/gaggle/pkg/history"
	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/cuemby/gaggle/pkg/scheduler"
	"github.com/cuemby/gaggle/pkg/throttle"
	"github.com/spf13/cobra"
)

var runFlagsVal runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test against --host in standalone mode",
	RunE:  runRun,
}

func init() {
	addRunFlags(runCmd, &runFlagsVal)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	f := &runFlagsVal

	sets := defaultTaskSets()
	if f.list {
		listTaskSets(sets)
		return nil
	}

	if f.host == "" {
		return fmt.Errorf("--host is required")
	}
	runTime, err := parseRunTime(f.runTime)
	if err != nil {
		return err
	}

	logFile, err := initLoggingFromFlags(f)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	if !f.skipHostCheck {
		checkHostReachable(f.host)
	}

	statsWriter, statsFile, err := openStatsLog(f)
	if err != nil {
		return err
	}
	if statsFile != nil {
		defer statsFile.Close()
	}
	debugWriter, debugFile, err := openDebugLog(f)
	if err != nil {
		return err
	}
	if debugFile != nil {
		defer debugFile.Close()
	}

	agg := metrics.NewAggregator()
	var sinks []interface {
		Send(metrics.RawRequest)
	}
	sinks = append(sinks, agg)
	if statsWriter != nil {
		sinks = append(sinks, statsWriter)
	}
	sink := newFanoutSink(sinks...)

	var histStore *history.Store
	if f.historyFile != "" {
		histStore, err = history.Open(f.historyFile)
		if err != nil {
			return fmt.Errorf("open --history-file: %w", err)
		}
		defer histStore.Close()
	}

	var dash *dashboard.Server
	if f.webHost != "" {
		dash = dashboard.New(f.webHost, f.webPort, agg.Snapshot)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runTime > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, runTime)
		defer timeoutCancel()
	}

	schedCfg := scheduler.Config{
		Host:         f.host,
		Users:        f.users,
		HatchRate:    f.hatchRate,
		Throttle:     throttle.New(f.throttle),
		Sink:         sink,
		TaskSets:     sets,
		StatusOK:     f.statusCodes,
		StickyFollow: f.stickyFollow,
	}
	if debugWriter != nil {
		// Assigning a nil *DebugWriter to the DebugSink interface
		// field directly would leave it non-nil-but-empty, so LogDebug
		// would try to call SendDebug on a nil receiver.
		schedCfg.DebugSink = debugWriter
	}
	sched := scheduler.New(schedCfg)

	if dash != nil {
		dashDone := make(chan error, 1)
		go func() { dashDone <- dash.Run(ctx) }()
		defer func() { <-dashDone }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	reportTicker := time.NewTicker(15 * time.Second)
	defer reportTicker.Stop()
	if f.noStats || f.onlySummary {
		reportTicker.Stop()
	}

	var hatchPoll <-chan time.Time
	if f.resetStats {
		hatchTicker := time.NewTicker(100 * time.Millisecond)
		defer hatchTicker.Stop()
		hatchPoll = hatchTicker.C
	}

	resetDone := false
	exitCode := 0

loop:
	for {
		select {
		case <-schedDone:
			break loop
		case <-hatchPoll:
		case <-reportTicker.C:
			printSummary(agg.Snapshot(), metrics.DroppedRecords())
		case sig := <-sigCh:
			log.Logger.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
			if sched.Hatched() == 0 {
				exitCode = 130
			}
			cancel()

			select {
			case <-schedDone:
			case <-sigCh:
				fmt.Fprintln(os.Stderr, "second interrupt, exiting without final summary")
				os.Exit(130)
			case <-time.After(3 * time.Second):
			}
			break loop
		}

		if f.resetStats && !resetDone && sched.Hatched() >= f.users {
			agg.Reset()
			resetDone = true
		}
	}

	<-schedDone
	final := agg.Snapshot()
	printSummary(final, metrics.DroppedRecords())

	if histStore != nil {
		summary := history.SummaryFromSnapshot("run", f.host, f.users, f.hatchRate, final)
		if _, err := histStore.Save(summary); err != nil {
			log.Logger.Error().Err(err).Msg("failed to persist run history")
		}
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
