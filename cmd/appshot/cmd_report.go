package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"appshot/internal/capture"
	"appshot/internal/report"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate an HTML report over all captured sessions",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "file", "", "write the combined report here (default <output_dir>/report.html)")
}

func runReport(cmd *cobra.Command, args []string) error {
	sessions, err := capture.LoadSessions(cfg.Capture.OutputDir)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no captured sessions found under", cfg.Capture.OutputDir)
		return nil
	}

	out := reportOut
	if out == "" {
		out = filepath.Join(cfg.Capture.OutputDir, report.FileName)
	}

	gen := report.New(logger)
	html, err := gen.RenderAt(sessions, filepath.Dir(out))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(out, html, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("report over %d sessions: %s\n", len(sessions), out)
	return nil
}
