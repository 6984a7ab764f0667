// Package cmd provides the CLI commands for approval-gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/approvalgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "approval-gate",
	Short: "approval-gate - policy-gated forwarding gateway",
	Long: `approval-gate sits between an API client and an upstream HTTP API.

Every call posted to /webhook is classified by an ordered rule chain:
denied calls are refused, allowed calls are forwarded at once, and
everything else is held for a human decision before it is forwarded.

Quick start:
  1. Export the upstream credential: export UPSTREAM_TOKEN=...
  2. Run: approval-gate start

Configuration:
  Config is loaded from approval-gate.yaml in the current directory,
  $HOME/.approval-gate/, or /etc/approval-gate/.

  Environment variables override config values with the APPROVAL_GATE_ prefix.
  Example: APPROVAL_GATE_APPROVAL_TIMEOUT=45s

Commands:
  start        Start the gateway
  stop         Stop the running gateway
  rules        Print the effective rule sets
  hash-secret  Generate a hash for the gateway secret
  version      Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./approval-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
