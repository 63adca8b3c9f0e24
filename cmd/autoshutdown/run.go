package main

import (
	"context"

	"github.com/fgeck/autoshutdown/internal/cli"
	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/fgeck/autoshutdown/internal/services/cipher"
	"github.com/fgeck/autoshutdown/internal/services/poller"
	"github.com/fgeck/autoshutdown/internal/services/probe"
	"github.com/fgeck/autoshutdown/internal/services/prompt"
	"github.com/fgeck/autoshutdown/internal/services/runner"
	"github.com/fgeck/autoshutdown/internal/services/serverlist"
	"github.com/fgeck/autoshutdown/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runShutdown(cmd *cobra.Command, args []string) error {
	dryRun, err := cli.ParseDryRun(args[2:])
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
		KeyPath:    args[1],
		DryRun:     dryRun,
	}
	cfg.SSH.KeyPath = opts.KeyPath

	log.Debug().
		Str("server_list", opts.ServerList).
		Str("key", opts.KeyPath).
		Str("user", cfg.SSH.User).
		Int("port", cfg.SSH.Port).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := cli.SignalContext(context.Background())
	defer cancel()

	logger := log.Logger
	prompter := prompt.New()
	prober := probe.New(logger, cfg.Probe)

	runnerSvc := runner.New(logger, runner.Deps{
		Loader:    serverlist.NewLoader(logger, cipher.New(logger), prompter),
		Format:    serverlist.FormatHostname,
		Prober:    prober,
		Transport: ssh.New(logger, cfg.SSH),
		Confirmer: prompter,
		Poller:    poller.New(logger, cfg.Poll, prober),
	})

	if _, err := runnerSvc.Run(ctx, opts); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		return err
	}

	return nil
}
