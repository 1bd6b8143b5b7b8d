package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/hubbub"
)

// kindsCmd lists every event kind the decoder accepts.
var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List known event kinds",
	Long: `List every event kind hubbub recognises, one per line.

These names are accepted by console_kinds in the config file and by the
kind query parameter of /api/events.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range hubbub.Kinds() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
