package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"appshot/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent detections and capture sessions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries per section")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		fmt.Println("history is disabled in the configuration")
		return nil
	}

	store, err := history.Open(cfg.History.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()

	detections, err := store.RecentDetections(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("read detections: %w", err)
	}
	fmt.Println("Recent detections:")
	if len(detections) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range detections {
		fmt.Printf("  %s  port %-6d %-12s %s\n",
			d.DetectedAt.Format("2006-01-02 15:04:05"), d.Port, d.Framework, d.ProcessName)
	}

	sessions, err := store.RecentSessions(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("read sessions: %w", err)
	}
	fmt.Println("\nRecent capture sessions:")
	if len(sessions) == 0 {
		fmt.Println("  (none)")
	}
	for _, s := range sessions {
		status := "ok"
		if !s.Success {
			status = "failed"
		}
		if s.Degraded {
			status += " (degraded)"
		}
		fmt.Printf("  %s  port %-6d %-12s %-14s %s\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.Port, s.Framework, status, s.SessionID)
	}
	return nil
}
