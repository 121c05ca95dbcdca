package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"appshot/internal/capture"
	"appshot/internal/classify"
	"appshot/internal/readiness"
	"appshot/internal/report"
)

var (
	captureFramework string
	captureURL       string
)

var captureCmd = &cobra.Command{
	Use:   "capture <port>",
	Short: "Capture one running app immediately",
	Long: `Runs a single capture session against an app already listening on the
given port: classifies it, waits briefly for readiness, screenshots
every page and viewport in its plan, and writes the session report.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureFramework, "framework", "", "skip detection and use this framework's plan")
	captureCmd.Flags().StringVar(&captureURL, "url", "", "capture this URL instead of http://localhost:<port>")
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var port int
	if _, err := fmt.Sscanf(args[0], "%d", &port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", args[0])
	}
	url := captureURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d", port)
	}

	fw := classify.Framework(captureFramework)
	if captureFramework == "" {
		var manifest *classify.Manifest
		if info, err := resolver().Resolve(ctx, port); err == nil && info.WorkingDir != "" {
			manifest = classify.ReadManifest(info.WorkingDir)
		}
		probe := classify.Probe(ctx, nil, url)
		fw = classify.Classify(manifest, probe, port)
	}
	logger.Info("capturing app",
		zap.Int("port", port), zap.String("framework", string(fw)))

	waiter := readiness.New(logger,
		readiness.WithTimeout(cfg.GetReadinessTimeout()),
		readiness.WithPollInterval(cfg.GetPollInterval()))
	res := waiter.Wait(ctx, url)
	if !res.Ready {
		logger.Warn("app never responded, capturing anyway",
			zap.Duration("waited", res.Elapsed))
	}

	capCfg := capture.DefaultConfig()
	capCfg.OutputRoot = cfg.Capture.OutputDir
	capCfg.ChromeBin = cfg.Capture.ChromeBin
	capCfg.Headless = cfg.Capture.Headless
	capCfg.NavigationTimeoutMs = int(cfg.GetNavigationTimeout().Milliseconds())

	capturer := capture.New(capCfg, logger)
	sess, err := capturer.Capture(ctx, capture.App{Port: port, URL: url, Framework: fw},
		loadPlans().For(fw), !res.Ready)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	gen := report.New(logger)
	path, err := gen.WriteForSession(sess)
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	fmt.Printf("session %s: %d pages, success=%v\n", sess.ID, len(sess.PagesVisited), sess.Success)
	fmt.Printf("report: %s\n", path)
	return nil
}
