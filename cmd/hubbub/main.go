// Package main is the entry point for the hubbub CLI.
//
// hubbub can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	hubbub serve -c config.yaml    # Poll the feed and publish events
//	hubbub validate -c config.yaml # Validate configuration
//	hubbub kinds                   # List known event kinds
//	hubbub version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "hubbub",
	Short: "Turn a polled event feed into a steady event stream",
	Long: `hubbub polls a GitHub-style events feed and republishes each batch
evenly over the poll interval the feed advertises, so consumers see a
steady stream instead of a burst every minute.

Quick start:
  1. Run: hubbub serve --console
  2. Or stream over HTTP: curl -N http://localhost:8080/api/events

Example config:
  feed_url: https://api.github.com/events
  headers:
    Authorization: Bearer ${GITHUB_TOKEN}
  port: 8080
  console: true
  console_kinds: [PushEvent, ReleaseEvent]`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this hubbub binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hubbub %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
