// Package cli holds the pieces shared by every autoshutdown binary:
// persistent flags, logging setup, config loading and signal handling.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fgeck/autoshutdown/internal/config"
	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// ErrUsage is returned for bad positional arguments.
var ErrUsage = errors.New("usage error")

// DryRunToken is the literal argument that enables dry-run mode.
const DryRunToken = "dry"

// Flags holds the persistent flags shared by all binaries.
type Flags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
	JSON       bool
}

// Bind registers the persistent flags on cmd and installs logging setup
// as its PersistentPreRun. Commands should set SilenceUsage once their
// arguments are validated so runtime failures do not print usage.
func (f *Flags) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.ConfigFile, "config", "c", "", "config file (optional)")
	cmd.PersistentFlags().BoolVarP(&f.Verbose, "verbose", "v", false, "enable verbose (debug) output")
	cmd.PersistentFlags().BoolVarP(&f.Quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	cmd.PersistentFlags().BoolVar(&f.JSON, "json", false, "output logs in JSON format")

	cmd.Version = Version
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		SetupLogging(os.Stdout, *f)
	}
}

// SetupLogging configures the global zerolog logger and level.
func SetupLogging(out io.Writer, f Flags) {
	// Set output format
	if f.JSON {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case f.Quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case f.Verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LoadConfig reads the optional config file. With no path the built-in
// defaults are used.
func LoadConfig(path string) (*models.Config, error) {
	if path == "" {
		return config.Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg, err := config.NewParser().LoadFile(path)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, nil
}

// ParseDryRun interprets an optional trailing argument. Anything other
// than "dry" (any case) is a usage error.
func ParseDryRun(args []string) (bool, error) {
	switch len(args) {
	case 0:
		return false, nil
	case 1:
		if strings.EqualFold(args[0], DryRunToken) {
			return true, nil
		}
		return false, fmt.Errorf("%w: unexpected argument %q, expected %q", ErrUsage, args[0], DryRunToken)
	default:
		return false, fmt.Errorf("%w: too many arguments", ErrUsage)
	}
}

// RangeArgs is cobra.RangeArgs with errors that wrap ErrUsage.
func RangeArgs(minArgs, maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(minArgs, maxArgs)(cmd, args); err != nil {
			return fmt.Errorf("%w: %s", ErrUsage, err.Error())
		}
		return nil
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
