package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is injected at build time:
//
//	go build -ldflags "-X github.com/peakpoint/backend/cmd/peakctl/cmd.Version=1.2.3"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show peakctl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "peakctl %s\n", Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
