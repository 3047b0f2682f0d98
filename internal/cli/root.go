// Package cli defines the Cobra command tree for the hermod daemon.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "hermod",
	Short: "Multi-session messaging gateway with signed webhooks",
	Long: `Hermod keeps independent messaging-protocol sessions alive, mirrors
their connection state, and republishes session events (QR codes, connection
transitions, inbound messages, delivery statuses) to an HTTP consumer via
HMAC-signed webhook calls.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
}
