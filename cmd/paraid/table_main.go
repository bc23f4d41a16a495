package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/paraid/paraid/internal/engine"
	"github.com/paraid/paraid/internal/refdata"
)

// runTableValidate loads the table and rule set, reports coverage and
// fails on structural problems.
func runTableValidate(cmd *cobra.Command, args []string) error {
	tablePath, _ := cmd.Flags().GetString("table")
	rulesPath, _ := cmd.Flags().GetString("rules")

	rules, err := loadRules(rulesPath)
	if err != nil {
		return err
	}
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("rule table invalid: %w", err)
	}

	source := refdata.NewCSVSource(tablePath)
	table, err := source.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load reference table: %w", err)
	}
	if len(table.Records) == 0 {
		return fmt.Errorf("reference table %s has no usable rows", tablePath)
	}

	fields := rules.MatchableFields()
	filled := make(map[string]int, len(fields))
	grouped := 0
	for _, rec := range table.Records {
		if rec.Group != refdata.GroupUnassigned {
			grouped++
		}
		for _, field := range fields {
			if len(rec.TokenSet(field)) > 0 {
				filled[field]++
			}
		}
	}

	fmt.Printf("Reference table: %s\n", table.Source)
	fmt.Printf("  rows: %d (%d with a group)\n", len(table.Records), grouped)
	fmt.Printf("  rule version: %s, total weight: %.0f\n", rules.Version, rules.TotalWeight())
	fmt.Println("  field coverage:")
	for _, field := range fields {
		fmt.Printf("    %-28s %d/%d\n", field, filled[field], len(table.Records))
		if filled[field] == 0 {
			log.Warn().Str("field", field).Msg("No reference row carries this field")
		}
	}

	log.Info().Msg("Reference table valid")
	return nil
}

// runTableOptions prints the distinct tokens the table carries per
// matchable field.
func runTableOptions(cmd *cobra.Command, args []string) error {
	tablePath, _ := cmd.Flags().GetString("table")
	field, _ := cmd.Flags().GetString("field")

	source := refdata.NewCSVSource(tablePath)
	table, err := source.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load reference table: %w", err)
	}

	fields := engine.DefaultRuleSet().MatchableFields()
	if field != "" {
		fields = []string{field}
	}

	options := table.Options(fields)
	for _, f := range fields {
		tokens := options[f]
		if len(tokens) == 0 {
			fmt.Printf("%s: (none)\n", f)
			continue
		}
		fmt.Printf("%s:\n  %s\n", f, strings.Join(tokens, "\n  "))
	}
	return nil
}
