package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagJSON   bool
	flagSecret string
)

var rootCmd = &cobra.Command{
	Use:   "peakctl",
	Short: "PeakPoint operator tool for tokens and two-factor codes",
	Long: `peakctl helps operators look into PeakPoint authentication state
without going through the HTTP API.

Examples:
  peakctl token inspect eyJhbGciOi...   Show who a token belongs to
  peakctl totp code JBSWY3DPEHPK3PXP    Print the current TOTP code
  peakctl recovery hash abcd-1234       Print the stored digest of a code`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagSecret, "secret", "", "Token signing secret (default: $JWT_SECRET)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func signingSecret() (string, error) {
	if flagSecret != "" {
		return flagSecret, nil
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
