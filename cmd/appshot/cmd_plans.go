package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"appshot/internal/classify"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the effective capture plan per framework",
	Long: `Shows the capture plan that would apply to each known framework after
merging the plan file (if configured) over the built-in defaults, and
reports structural problems in user-supplied plans.`,
	RunE: runPlans,
}

func runPlans(cmd *cobra.Command, args []string) error {
	set := loadPlans()
	frameworks := []classify.Framework{
		classify.React, classify.NextJS, classify.Vue, classify.Angular,
		classify.Vite, classify.Express, classify.Django, classify.Flask,
		classify.Unknown,
	}

	for _, fw := range frameworks {
		p := set.For(fw)
		if err := p.Validate(); err != nil && fw != classify.Unknown {
			fmt.Printf("# %s: INVALID: %v\n", fw, err)
			continue
		}
		out, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal plan for %s: %w", fw, err)
		}
		fmt.Printf("# %s\n%s\n", fw, out)
	}
	return nil
}
