package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paraid/paraid/internal/engine"
	"github.com/paraid/paraid/internal/refdata"
)

// runScore performs a one-shot scoring run: load the table and rules,
// read the findings file, score, print.
func runScore(cmd *cobra.Command, args []string) error {
	findingsPath, _ := cmd.Flags().GetString("findings")
	tablePath, _ := cmd.Flags().GetString("table")
	rulesPath, _ := cmd.Flags().GetString("rules")
	top, _ := cmd.Flags().GetInt("top")
	showGroups, _ := cmd.Flags().GetBool("groups")
	showReasons, _ := cmd.Flags().GetBool("reasons")
	asJSON, _ := cmd.Flags().GetBool("json")

	if findingsPath == "" {
		return fmt.Errorf("--findings is required")
	}

	rules, err := loadRules(rulesPath)
	if err != nil {
		return err
	}

	findings, err := loadFindings(findingsPath)
	if err != nil {
		return err
	}

	source := refdata.NewCSVSource(tablePath)
	table, err := source.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load reference table: %w", err)
	}

	scorer := engine.NewScorer(rules)

	start := time.Now()
	candidates := scorer.Score(table.Records, findings)
	elapsed := time.Since(start)

	log.Info().
		Int("records", len(table.Records)).
		Int("populated_fields", findings.Populated(scorer.Rules())).
		Dur("elapsed", elapsed).
		Msg("Scoring complete")

	if asJSON {
		return printScoreJSON(table, scorer, findings, candidates)
	}

	printCandidateTable(candidates, table, findings, top, showReasons)
	if showGroups {
		printGroupSummary(engine.GroupCandidates(candidates))
	}
	return nil
}

func loadRules(path string) (*engine.RuleSet, error) {
	if path == "" {
		return engine.DefaultRuleSet(), nil
	}
	rules, err := engine.LoadRuleSet(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule table: %w", err)
	}
	return rules, nil
}

// loadFindings reads a findings record from YAML or JSON. YAML is a
// superset of JSON here, so one decoder covers both.
func loadFindings(path string) (engine.FindingsRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read findings file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse findings file: %w", err)
	}

	findings, err := engine.NewFindings(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid findings: %w", err)
	}
	return findings, nil
}

func printCandidateTable(candidates []engine.ScoredCandidate, table *refdata.Table, findings engine.FindingsRecord, top int, showReasons bool) {
	fmt.Printf("RANKED CANDIDATES | Table: %s | Rows: %d\n", table.Source, len(table.Records))
	fmt.Println(strings.Repeat("=", 78))
	fmt.Printf("%-4s %-30s %-6s %9s %12s %12s\n", "#", "PARASITE", "GROUP", "SCORE", "LIKELIHOOD", "CONFIDENCE")

	for _, c := range candidates {
		if top > 0 && c.Rank > top {
			break
		}
		group := fmt.Sprintf("%d", c.Group)
		if c.Group == refdata.GroupUnassigned {
			group = "-"
		}
		fmt.Printf("%-4d %-30s %-6s %9.2f %11.2f%% %11.2f%%\n",
			c.Rank, c.Parasite, group, c.Score, c.Likelihood, c.Confidence)

		if showReasons {
			for _, reason := range engine.Reasons(table.Records[c.Row], findings) {
				fmt.Printf("     - %s\n", reason)
			}
		}
	}
}

func printGroupSummary(groups []engine.GroupSummary) {
	fmt.Println()
	fmt.Println("GROUPS")
	fmt.Println(strings.Repeat("=", 78))
	for _, g := range groups {
		name := fmt.Sprintf("group %d", g.Group)
		if g.Group == refdata.GroupUnassigned {
			name = "unassigned"
		}
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, m.Parasite)
		}
		fmt.Printf("%-12s %7.2f%%  %s\n", name, g.Likelihood, strings.Join(members, ", "))
	}
}

func printScoreJSON(table *refdata.Table, scorer *engine.Scorer, findings engine.FindingsRecord, candidates []engine.ScoredCandidate) error {
	type candidateOut struct {
		engine.ScoredCandidate
		Reasons []string `json:"reasons,omitempty"`
	}

	out := struct {
		GeneratedAt     time.Time             `json:"generated_at"`
		RuleVersion     string                `json:"rule_version"`
		ReferenceRows   int                   `json:"reference_rows"`
		PopulatedFields int                   `json:"populated_fields"`
		Candidates      []candidateOut        `json:"candidates"`
		Groups          []engine.GroupSummary `json:"groups"`
	}{
		GeneratedAt:     time.Now().UTC(),
		RuleVersion:     scorer.Rules().Version,
		ReferenceRows:   len(table.Records),
		PopulatedFields: findings.Populated(scorer.Rules()),
		Groups:          engine.GroupCandidates(candidates),
	}
	for _, c := range candidates {
		out.Candidates = append(out.Candidates, candidateOut{
			ScoredCandidate: c,
			Reasons:         engine.Reasons(table.Records[c.Row], findings),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
