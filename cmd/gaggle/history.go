package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/gaggle/pkg/history"
	"github.com/spf13/cobra"
)

var historyFile string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect runs recorded with --history-file",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run's final summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyFile, "history-file", "", "bbolt history file to read (required)")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistoryStore() (*history.Store, error) {
	if historyFile == "" {
		return nil, fmt.Errorf("--history-file is required")
	}
	return history.Open(historyFile)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List()
	if err != nil {
		return err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })

	fmt.Printf("%-6s %-10s %-30s %8s %10s %10s\n", "ID", "LABEL", "HOST", "USERS", "REQUESTS", "FAILURES")
	for _, r := range runs {
		fmt.Printf("%-6d %-10s %-30s %8d %10d %10d\n",
			r.ID, r.Label, r.Host, r.Users, r.Aggregate.NumRequests, r.Aggregate.NumFailures)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	run, err := store.Get(id)
	if err != nil {
		return err
	}

	fmt.Printf("run %d: %s against %s\n", run.ID, run.Label, run.Host)
	fmt.Printf("  started_at=%s duration=%s users=%d hatch_rate=%.2f\n",
		run.StartedAt.Format("2006-01-02T15:04:05Z07:00"), run.Duration, run.Users, run.HatchRate)
	fmt.Printf("  requests=%d failures=%d failure_ratio=%.4f mean=%s p95=%s\n",
		run.Aggregate.NumRequests, run.Aggregate.NumFailures, run.Aggregate.FailureRatio(),
		run.Aggregate.Mean(), run.Aggregate.Percentile(0.95))

	names := make([]string, 0, len(run.ByName))
	for name := range run.ByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := run.ByName[name]
		fmt.Printf("  %-30s requests=%-8d failures=%-8d mean=%-10s p95=%s\n",
			name, b.NumRequests, b.NumFailures, b.Mean(), b.Percentile(0.95))
	}
	return nil
}
