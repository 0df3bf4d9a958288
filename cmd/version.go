package cmd

import (
	"fmt"

	"github.com/OjusWiZard/triton-bot/internal/version"
	"github.com/spf13/cobra"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of triton",
	Run: func(cmd *cobra.Command, args []string) {
		v := version.GetVersion()
		commit := version.GetCommit()

		fmt.Fprintf(cmd.OutOrStdout(), "TritonVersion: %s\nCommit: %s\n", v, commit)
	},
}
