package main

import (
	"context"
	"time"

	"github.com/cuemby/gaggle/pkg/health"
	"github.com/cuemby/gaggle/pkg/log"
)

// checkHostReachable runs a single best-effort HTTP check against host
// before hatching any users. It never blocks a run: an unreachable
// host only logs a warning, since the target may come up once load
// starts (e.g. it's behind a scale-to-zero proxy) or only accept the
// specific paths the task sets exercise rather than host's bare root.
func checkHostReachable(host string) {
	checker := health.NewHTTPChecker(host).WithTimeout(5 * time.Second)
	result := checker.Check(context.Background())
	logger := log.WithComponent("preflight")
	if result.Healthy {
		logger.Info().Str("host", host).Dur("elapsed", result.Duration).Msg("host reachable")
		return
	}
	logger.Warn().Str("host", host).Str("reason", result.Message).Msg("host preflight check failed, continuing anyway")
}
