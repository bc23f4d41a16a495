package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "ParAI-D"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "paraid",
		Short:   "Deterministic parasite likelihood scoring",
		Version: version,
		Long: `ParAI-D ranks parasitic diagnoses by comparing entered clinical
findings against a reference table of parasite profiles, using a fixed
weighted rule set. Every run over the same table and findings produces
the same ranking.`,
		Run: runDefaultEntry,
	}

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score a findings file against the reference table",
		Long:  "Reads a YAML or JSON findings record, scores it against the reference table and prints the ranked candidates",
		RunE:  runScore,
	}
	scoreCmd.Flags().String("findings", "", "Findings file (YAML or JSON, required)")
	scoreCmd.Flags().String("table", "data/parasites.csv", "Reference table CSV")
	scoreCmd.Flags().String("rules", "", "Rule table YAML (built-in default when empty)")
	scoreCmd.Flags().Int("top", 10, "Number of candidates to print (0 = all)")
	scoreCmd.Flags().Bool("groups", false, "Print the group summary after the ranking")
	scoreCmd.Flags().Bool("reasons", false, "Print reasoning notes per candidate")
	scoreCmd.Flags().Bool("json", false, "Emit the full result as JSON instead of a table")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring API server",
		Long:  "Starts the HTTP server with /v1/score, /v1/reference, /v1/options, /healthz, /metrics and the /v1/updates websocket feed",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Config file path (built-in defaults when empty)")

	tableCmd := &cobra.Command{
		Use:   "table",
		Short: "Reference table inspection commands",
		Long:  "Commands for validating the reference table and listing the token vocabulary per field",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the reference table and rule set",
		Long:  "Loads the reference table and rule table, reports row and field coverage, and fails on structural problems",
		RunE:  runTableValidate,
	}
	validateCmd.Flags().String("table", "data/parasites.csv", "Reference table CSV")
	validateCmd.Flags().String("rules", "", "Rule table YAML (built-in default when empty)")

	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "List the known tokens per matchable field",
		Long:  "Prints every distinct token the reference table carries for each matchable field, the vocabulary a findings form should offer",
		RunE:  runTableOptions,
	}
	optionsCmd.Flags().String("table", "data/parasites.csv", "Reference table CSV")
	optionsCmd.Flags().String("field", "", "Restrict output to one field")

	tableCmd.AddCommand(validateCmd)
	tableCmd.AddCommand(optionsCmd)

	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tableCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// runDefaultEntry routes a bare invocation: interactive terminals get
// usage help, pipelines get explicit automation guidance.
func runDefaultEntry(cmd *cobra.Command, args []string) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "%s requires a subcommand in non-interactive use:\n\n", appName)
		fmt.Fprintf(os.Stderr, "   paraid score --findings case.yaml --table data/parasites.csv\n")
		fmt.Fprintf(os.Stderr, "   paraid serve --config config/paraid.yaml\n")
		fmt.Fprintf(os.Stderr, "   paraid table validate --table data/parasites.csv\n\n")
		fmt.Fprintf(os.Stderr, "   paraid --help for the full reference.\n")
		os.Exit(2)
	}

	cmd.Help()
}
