// Package main is supportctl, a terminal client for support conversations.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	apiURL   string
	apiToken string
	interval time.Duration
	timeout  time.Duration
	verbose  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "Terminal client for the support platform",
	Long: `supportctl talks to the support API the same way the portal chat does.

Examples:
  # Issue a development token
  supportctl token participant-1 --secret dev-secret

  # Follow a conversation and chat from stdin
  supportctl watch 0192f1d4-... --token $TOKEN

  # Ask for a human specialist
  supportctl handoff 0192f1d4-... --token $TOKEN`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(tokenCmd)

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("SUPPORT_API_URL", "http://localhost:8080"), "Support API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("SUPPORT_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().DurationVar(&interval, "interval", 3*time.Second, "Reconciliation interval")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
