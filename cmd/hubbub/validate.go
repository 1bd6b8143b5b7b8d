package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/hubbub/config"
)

// validateCmd validates a config file without starting the publisher.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a hubbub configuration file without contacting the feed.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  hubbub validate -c hubbub.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	http := "disabled"
	if port := cfg.ListenPort(); port != 0 {
		http = fmt.Sprintf("port %d", port)
	}
	console := "off"
	if cfg.Console {
		console = "all kinds"
		if len(cfg.ConsoleKinds) > 0 {
			console = strings.Join(cfg.ConsoleKinds, ", ")
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Feed:          %s\n", cfg.FeedURL)
	fmt.Fprintf(out, "  Poll interval: %s (when the feed sends none)\n", cfg.DefaultPollInterval.Duration())
	fmt.Fprintf(out, "  HTTP:          %s\n", http)
	fmt.Fprintf(out, "  Console:       %s\n", console)

	return nil
}
