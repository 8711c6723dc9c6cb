package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/photobooth/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the booth API over HTTP. Each client creates its own session; surface
updates stream over SSE and /metrics exposes Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		port, _ := cmd.Flags().GetInt("port")

		return cli.Serve(cli.ServeOptions{
			ConfigPath: configPath,
			Debug:      debug,
			Port:       port,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
}
