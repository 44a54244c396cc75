// Package commands implements the netctl CLI command tree.
package commands

import "github.com/spf13/cobra"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "netctl",
	Short:         "Operate and exercise an asyncnet server/client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree, returning any error a subcommand
// reported.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(respCallCmd)
}
