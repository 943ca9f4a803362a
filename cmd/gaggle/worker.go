package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/gaggle/pkg/gaggle"
	"github.com/cuemby/gaggle/pkg/health"
	"github.com/cuemby/gaggle/pkg/log"
	"github.com/spf13/cobra"
)

var (
	workerManagerHost string
	workerManagerPort int
	workerCapacity    int
	workerConfigHash  string
	workerLogFlags    runFlags
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Join a gaggle manager and run this process's assigned share of users",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerManagerHost, "manager-host", "127.0.0.1", "manager address to join")
	workerCmd.Flags().IntVar(&workerManagerPort, "manager-port", 5115, "manager port to join")
	workerCmd.Flags().IntVar(&workerCapacity, "capacity", 0, "max users this worker is willing to run, 0 means no limit")
	workerCmd.Flags().StringVar(&workerConfigHash, "config-hash", "", "config hash the manager must match unless it runs with --no-hash-check")
	workerCmd.Flags().StringVar(&workerLogFlags.logFile, "log-file", "", "write logs to this file instead of stdout")
	workerCmd.Flags().StringSliceVarP(&workerLogFlags.logLevel, "log-level", "g", nil, "log level (debug, info, warn, error); repeatable")
	workerCmd.Flags().CountVarP(&workerLogFlags.verbose, "verbose", "v", "step the log level down one notch per repetition")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	logFile, err := initLoggingFromFlags(&workerLogFlags)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	addr := fmt.Sprintf("%s:%d", workerManagerHost, workerManagerPort)
	tcpCheck := health.NewTCPChecker(addr).WithTimeout(5 * time.Second)
	if result := tcpCheck.Check(context.Background()); !result.Healthy {
		log.Logger.Warn().Str("manager", addr).Str("reason", result.Message).
			Msg("manager not reachable yet, attempting gRPC dial anyway")
	}

	w := gaggle.NewWorker(gaggle.WorkerConfig{
		ManagerHost: workerManagerHost,
		ManagerPort: workerManagerPort,
		Capacity:    workerCapacity,
		ConfigHash:  workerConfigHash,
		TaskSets:    defaultTaskSets(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Logger.Warn().Msg("shutdown signal received")
		cancel()
	}()

	if err := w.Run(ctx); err != nil {
		log.Logger.Error().Err(err).Msg("gaggle worker exited with error")
		os.Exit(2)
	}
	return nil
}
