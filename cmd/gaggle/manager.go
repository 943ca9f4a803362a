package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/gaggle/pkg/gaggle"
	"github.com/cuemby/gaggle/pkg/history"
	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	managerFlagsVal runFlags
	managerBindHost string
	managerBindPort int
	expectWorkers   int
	noHashCheck     bool
	managerConfigHash string
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run as the gaggle coordinator, waiting for workers to join",
	RunE:  runManager,
}

func init() {
	addRunFlags(managerCmd, &managerFlagsVal)
	managerCmd.Flags().StringVar(&managerBindHost, "manager-bind-host", "0.0.0.0", "address the manager listens on")
	managerCmd.Flags().IntVar(&managerBindPort, "manager-bind-port", 5115, "port the manager listens on")
	managerCmd.Flags().IntVar(&expectWorkers, "expect-workers", 0, "number of workers the user count is split across; each worker starts as soon as it joins (the manager does not hold workers back until this many have joined), and 0 splits by the number of workers joined so far")
	managerCmd.Flags().BoolVar(&noHashCheck, "no-hash-check", false, "accept workers regardless of config hash")
	managerCmd.Flags().StringVar(&managerConfigHash, "config-hash", "", "config hash workers must match unless --no-hash-check is set")
	rootCmd.AddCommand(managerCmd)
}

func runManager(cmd *cobra.Command, args []string) error {
	f := &managerFlagsVal
	if f.list {
		listTaskSets(defaultTaskSets())
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

	var histStore *history.Store
	if f.historyFile != "" {
		histStore, err = history.Open(f.historyFile)
		if err != nil {
			return fmt.Errorf("open --history-file: %w", err)
		}
		defer histStore.Close()
	}

	m := gaggle.NewManager(gaggle.ManagerConfig{
		BindHost:      managerBindHost,
		BindPort:      managerBindPort,
		ExpectWorkers: expectWorkers,
		NoHashCheck:   noHashCheck,
		ConfigHash:    managerConfigHash,
		Run: gaggle.RunConfig{
			Host:            f.host,
			Users:           f.users,
			HatchRate:       f.hatchRate,
			RunTime:         runTime,
			StatusOK:        f.statusCodes,
			StickyFollow:    f.stickyFollow,
			ResetStats:      f.resetStats,
			ThrottleRequest: f.throttle,
		},
	}, metrics.NewAggregator())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- m.Serve(ctx) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeoutCh <-chan time.Time
	if runTime > 0 {
		timer := time.NewTimer(runTime)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	reportTicker := time.NewTicker(15 * time.Second)
	defer reportTicker.Stop()
	if f.noStats || f.onlySummary {
		reportTicker.Stop()
	}

	exitCode := 0
	serverDone := false
stopWait:
	for {
		select {
		case err := <-serveErrCh:
			serverDone = true
			if err != nil {
				log.Logger.Error().Err(err).Msg("gaggle manager: listener failed")
				exitCode = 2
			}
			break stopWait
		case <-timeoutCh:
			log.Logger.Info().Msg("run-time elapsed, stopping gaggle")
			m.RequestStop()
			break stopWait
		case sig := <-sigCh:
			log.Logger.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
			m.RequestStop()
			break stopWait
		case <-reportTicker.C:
			printSummary(m.Snapshot(), metrics.DroppedRecords())
			if n := m.UnhealthyWorkerCount(); n > 0 {
				log.Logger.Warn().Int("unhealthy_workers", n).Msg("some workers have missed recent pushes")
			}
		}
	}

	if m.WorkerCount() > 0 {
		waitForWorkerDrain()
	}
	cancel()
	if !serverDone {
		<-serveErrCh
	}

	final := m.Snapshot()
	printSummary(final, metrics.DroppedRecords())

	if histStore != nil {
		summary := history.SummaryFromSnapshot("manager", f.host, f.users, f.hatchRate, final)
		if _, err := histStore.Save(summary); err != nil {
			log.Logger.Error().Err(err).Msg("failed to persist run history")
		}
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// waitForWorkerDrain gives connected workers a bounded window to push
// their final snapshot after a stop request, best-effort per spec.md's
// shutdown semantics.
func waitForWorkerDrain() {
	<-time.After(10 * time.Second)
}
