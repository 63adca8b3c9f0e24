package main

import (
	"context"

	"github.com/fgeck/autoshutdown/internal/cli"
	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/fgeck/autoshutdown/internal/services/cipher"
	"github.com/fgeck/autoshutdown/internal/services/poller"
	"github.com/fgeck/autoshutdown/internal/services/probe"
	"github.com/fgeck/autoshutdown/internal/services/prompt"
	"github.com/fgeck/autoshutdown/internal/services/rpc"
	"github.com/fgeck/autoshutdown/internal/services/runner"
	"github.com/fgeck/autoshutdown/internal/services/serverlist"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var flags cli.Flags

var rootCmd = &cobra.Command{
	Use:   "autoshutdown-windows server_list [dry]",
	Short: "Shut down a list of Windows servers over remote administration",
	Long: `autoshutdown-windows powers off every reachable Windows server in a list
using Samba's "net rpc shutdown":
  - Reads a plaintext or encrypted server list ("hostname username password" per line)
  - Pings each server and asks for confirmation
  - Sends the shutdown request with each server's own credentials
  - Waits until every server that was shut down stops answering pings

Pass "dry" as the last argument to check credentials with "net rpc conf list" instead.`,
	Args: cli.RangeArgs(1, 2),
	RunE: runShutdown,
}

func init() {
	flags.Bind(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runShutdown(cmd *cobra.Command, args []string) error {
	dryRun, err := cli.ParseDryRun(args[1:])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg, err := cli.LoadConfig(flags.ConfigFile)
	if err != nil {
		log.Error().Err(err).Str("file", flags.ConfigFile).Msg("failed to load config")
		return err
	}

	opts := models.Options{
		ServerList: args[0],
		DryRun:     dryRun,
	}

	log.Debug().
		Str("server_list", opts.ServerList).
		Str("net", cfg.RPC.Binary).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := cli.SignalContext(context.Background())
	defer cancel()

	logger := log.Logger
	prompter := prompt.New()
	prober := probe.New(logger, cfg.Probe)

	runnerSvc := runner.New(logger, runner.Deps{
		Loader:    serverlist.NewLoader(logger, cipher.New(logger), prompter),
		Format:    serverlist.FormatCredentials,
		Prober:    prober,
		Transport: rpc.New(logger, cfg.RPC),
		Confirmer: prompter,
		Poller:    poller.New(logger, cfg.Poll, prober),
	})

	if _, err := runnerSvc.Run(ctx, opts); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		return err
	}

	return nil
}
