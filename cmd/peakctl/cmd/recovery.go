package cmd

import (
	"fmt"

	"github.com/peakpoint/backend/internal/services"
	"github.com/spf13/cobra"
)

var flagCount int

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Work with two-factor recovery codes",
}

var recoveryHashCmd = &cobra.Command{
	Use:   "hash <code>",
	Short: "Print the digest stored for a recovery code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		digest := services.HashRecoveryCode(args[0])
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"hash": digest})
		}
		fmt.Fprintln(cmd.OutOrStdout(), digest)
		return nil
	},
}

var recoveryGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a batch of recovery codes and their digests",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		codes, hashes, err := services.GenerateRecoveryCodes(flagCount)
		if err != nil {
			return err
		}

		if flagJSON {
			type pair struct {
				Code string `json:"code"`
				Hash string `json:"hash"`
			}
			out := make([]pair, len(codes))
			for i := range codes {
				out[i] = pair{Code: codes[i], Hash: hashes[i]}
			}
			return printJSON(cmd.OutOrStdout(), out)
		}
		for i := range codes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", codes[i], hashes[i])
		}
		return nil
	},
}

func init() {
	recoveryGenerateCmd.Flags().IntVar(&flagCount, "count", 10, "Number of codes")

	recoveryCmd.AddCommand(recoveryHashCmd, recoveryGenerateCmd)
	rootCmd.AddCommand(recoveryCmd)
}
