package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"appshot/internal/capture"
	"appshot/internal/history"
	"appshot/internal/monitor"
	"appshot/internal/plan"
	"appshot/internal/procinfo"
	"appshot/internal/readiness"
	"appshot/internal/report"
	"appshot/internal/scanner"
	"appshot/internal/watcher"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch for local web apps and capture them automatically",
	Long: `Starts the detection loop: scans the candidate ports on every tick,
resolves and classifies newly active apps, waits for them to respond,
and captures a screenshot session per app. Runs until interrupted.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	sc := scanner.New(logger, scanner.WithDialTimeout(cfg.GetDialTimeout()))
	waiter := readiness.New(logger,
		readiness.WithTimeout(cfg.GetReadinessTimeout()),
		readiness.WithPollInterval(cfg.GetPollInterval()))

	capCfg := capture.DefaultConfig()
	capCfg.OutputRoot = cfg.Capture.OutputDir
	capCfg.ChromeBin = cfg.Capture.ChromeBin
	capCfg.Headless = cfg.Capture.Headless
	capCfg.NavigationTimeoutMs = int(cfg.GetNavigationTimeout().Milliseconds())
	capturer := capture.New(capCfg, logger)

	plans := loadPlans()
	gen := report.New(logger)

	opts := []monitor.Option{
		monitor.WithInterval(cfg.GetCheckInterval()),
		monitor.WithCandidates(scanner.Candidates(cfg.Scan.AdditionalPorts, cfg.Scan.ExcludePorts)),
		monitor.WithWorkerLimit(cfg.Capture.Workers),
		monitor.WithSessionHook(func(s *capture.Session) {
			if path, err := gen.WriteForSession(s); err != nil {
				logger.Warn("report generation failed",
					zap.String("session", s.ID), zap.Error(err))
			} else {
				logger.Info("report written", zap.String("path", path))
			}
		}),
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DatabasePath, logger)
		if err != nil {
			logger.Warn("history store unavailable", zap.Error(err))
		} else {
			defer store.Close()
			opts = append(opts, monitor.WithHistory(store))
		}
	}

	if cfg.Watch.Enabled {
		debounce := cfg.GetWatchDebounce()
		opts = append(opts, monitor.WithChangeWatcher(
			func(dir string, patterns, ignore []string, onChange func([]string)) (monitor.ChangeWatcher, error) {
				return watcher.New(dir, patterns, ignore, debounce, onChange, logger)
			}))
	}

	m := monitor.New(sc, resolver(), waiter, capturer, plans, logger, opts...)
	return m.Run(ctx)
}

// resolver picks the process resolver for this platform. lsof-based
// resolution needs the binary on PATH; without it classification still
// works from HTTP probes alone.
func resolver() procinfo.Resolver {
	r := procinfo.NewLsofResolver(logger)
	if !r.Available() {
		logger.Info("lsof not found, process resolution disabled")
		return procinfo.NopResolver{}
	}
	return r
}

func loadPlans() *plan.Set {
	if cfg.Capture.PlansPath != "" {
		return plan.Load(cfg.Capture.PlansPath, logger)
	}
	return plan.NewSet()
}
