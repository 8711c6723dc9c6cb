package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/photobooth/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the booth in the terminal",
	Long: `Starts an interactive booth in the terminal.

Keys:
  space/enter  start the session, then take the next photo
  r            restart
  d            save the strip
  q            quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		outDir, _ := cmd.Flags().GetString("out")

		return cli.Run(cli.RunOptions{
			ConfigPath: configPath,
			Debug:      debug,
			OutDir:     outDir,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("out", "o", ".", "Directory the strip is saved to")

	// 'run' is the default when no command is provided.
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
