package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"appshot/internal/classify"
	"appshot/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan candidate ports once and print what is running",
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc := scanner.New(logger, scanner.WithDialTimeout(cfg.GetDialTimeout()))
	candidates := scanner.Candidates(cfg.Scan.AdditionalPorts, cfg.Scan.ExcludePorts)

	active := sc.Scan(ctx, candidates)
	if len(active) == 0 {
		fmt.Println("no active web apps found")
		return nil
	}

	res := resolver()
	for _, port := range active {
		url := fmt.Sprintf("http://localhost:%d", port)

		var manifest *classify.Manifest
		procName := "-"
		if info, err := res.Resolve(ctx, port); err == nil {
			procName = info.Name
			if info.WorkingDir != "" {
				manifest = classify.ReadManifest(info.WorkingDir)
			}
		} else {
			logger.Debug("process resolution failed", zap.Int("port", port), zap.Error(err))
		}

		probe := classify.Probe(ctx, nil, url)
		fw := classify.Classify(manifest, probe, port)
		fmt.Printf("%-6d %-12s %-20s %s\n", port, fw, procName, url)
	}
	return nil
}
