package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/photobooth"
	"github.com/aretw0/photobooth/internal/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of photobooth",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "photobooth version %s\n", strings.TrimSpace(photobooth.Version))
		fmt.Fprintf(cmd.OutOrStdout(), "camera drivers: %s\n", strings.Join(cli.Drivers(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
