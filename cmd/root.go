package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "relaydesk",
	Short: "relaydesk — cross-channel customer support message routing core",
	Long:  "relaydesk routes customer messages from chat widget, messaging, and email channels\nthrough a central processing pipeline with layered conversation memory.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
