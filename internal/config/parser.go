// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/spf13/viper"
)

// Defaults applied when a key is absent from the config file.
const (
	DefaultSSHUser      = "root"
	DefaultSSHPort      = 22
	DefaultSSHTimeout   = 10 * time.Second
	DefaultSSHCommand   = "shutdown -h now"
	DefaultRPCBinary    = "/usr/bin/net"
	DefaultPingBinary   = "/bin/ping"
	DefaultProbeTimeout = 2 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// Default returns the configuration used when no file is given.
func Default() *models.Config {
	cfg, _ := NewParser().parse()
	return cfg
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		SSH: models.SSHConfig{
			User:           p.v.GetString("ssh.user"),
			Port:           p.v.GetInt("ssh.port"),
			Timeout:        p.v.GetDuration("ssh.timeout"),
			Command:        p.v.GetString("ssh.command"),
			KnownHostsPath: p.expandEnv(p.v.GetString("ssh.known_hosts")),
		},
		RPC: models.RPCConfig{
			Binary: p.expandEnv(p.v.GetString("rpc.binary")),
		},
		Probe: models.ProbeConfig{
			Binary:  p.expandEnv(p.v.GetString("probe.binary")),
			Timeout: p.v.GetDuration("probe.timeout"),
		},
		Poll: models.PollConfig{
			Interval: p.v.GetDuration("poll.interval"),
			Timeout:  p.v.GetDuration("poll.timeout"),
		},
	}

	if cfg.SSH.User == "" {
		cfg.SSH.User = DefaultSSHUser
	}
	if !p.v.IsSet("ssh.port") {
		cfg.SSH.Port = DefaultSSHPort
	}
	if !p.v.IsSet("ssh.timeout") {
		cfg.SSH.Timeout = DefaultSSHTimeout
	}
	if cfg.SSH.Command == "" {
		cfg.SSH.Command = DefaultSSHCommand
	}
	if cfg.RPC.Binary == "" {
		cfg.RPC.Binary = DefaultRPCBinary
	}
	if cfg.Probe.Binary == "" {
		cfg.Probe.Binary = DefaultPingBinary
	}
	if !p.v.IsSet("probe.timeout") {
		cfg.Probe.Timeout = DefaultProbeTimeout
	}
	if !p.v.IsSet("poll.interval") {
		cfg.Poll.Interval = DefaultPollInterval
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.SSH.Port <= 0 || cfg.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535")
	}
	if cfg.SSH.Timeout <= 0 {
		return fmt.Errorf("ssh.timeout must be positive")
	}
	if cfg.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if cfg.Poll.Timeout < 0 {
		return fmt.Errorf("poll.timeout must not be negative")
	}

	return nil
}
