package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photobooth",
	Short: "Photobooth runs a countdown selfie booth",
	Long: `Photobooth takes a series of countdown photos from a camera and composes them
into a vertical strip. It runs in the terminal, as an HTTP API or as an MCP server.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file (defaults apply when empty)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
