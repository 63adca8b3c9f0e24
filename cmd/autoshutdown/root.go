package main

import (
	"github.com/fgeck/autoshutdown/internal/cli"
	"github.com/spf13/cobra"
)

var flags cli.Flags

var rootCmd = &cobra.Command{
	Use:   "autoshutdown server_list private_key [dry]",
	Short: "Shut down a list of Linux servers over SSH",
	Long: `autoshutdown powers off every reachable server in a list over SSH:
  - Reads a plaintext or encrypted server list (one hostname per line)
  - Pings each server and asks for confirmation
  - Logs in as root with the given private key and runs the shutdown command
  - Waits until every server that was shut down stops answering pings

Pass "dry" as the last argument to verify connectivity without shutting anything down.`,
	Args: cli.RangeArgs(2, 3),
	RunE: runShutdown,
}

func init() {
	flags.Bind(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
