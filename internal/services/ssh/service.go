// Package ssh shuts hosts down over SSH with public-key authentication.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrPassphraseRequired is returned when the private key is encrypted.
var ErrPassphraseRequired = errors.New("private key requires a passphrase")

// Service defines the interface for SSH shutdown operations.
type Service interface {
	Prepare() error
	Attempt(ctx context.Context, host models.HostRecord, dryRun bool) models.Attempt
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client. config.Timeout bounds both the TCP
// dial and the SSH handshake, so a host that accepts the connection but
// never speaks cannot hold the caller.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	conn, err := net.DialTimeout(network, addr, config.Timeout)
	if err != nil {
		return nil, err
	}

	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	// The deadline only covers the handshake.
	_ = conn.SetDeadline(time.Time{})

	return &defaultSSHClient{client: ssh.NewClient(c, chans, reqs)}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

// Impl implements the SSH Service interface. One private key is loaded by
// Prepare and shared read-only by every Attempt.
type Impl struct {
	clientFactory ClientFactory
	cfg           models.SSHConfig
	clientConfig  *ssh.ClientConfig
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger, cfg models.SSHConfig) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		cfg:           cfg,
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, cfg models.SSHConfig, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		cfg:           cfg,
		logger:        logger,
	}
}

// Prepare loads the private key and host-key policy. It must succeed before
// any host is attempted.
func (s *Impl) Prepare() error {
	clientConfig, err := s.buildConfig()
	if err != nil {
		return err
	}
	s.clientConfig = clientConfig
	return nil
}

func (s *Impl) buildConfig() (*ssh.ClientConfig, error) {
	var key []byte
	var err error

	// Load private key from file or use provided key
	if len(s.cfg.PrivateKey) > 0 {
		key = s.cfg.PrivateKey
	} else if s.cfg.KeyPath != "" {
		key, err = os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", s.cfg.KeyPath, err)
		}
	} else {
		return nil, fmt.Errorf("no private key provided")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, ErrPassphraseRequired
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // closed fleet, unknown hosts are trusted
	if s.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(s.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts from %s: %w", s.cfg.KnownHostsPath, err)
		}
	}

	return &ssh.ClientConfig{
		User: s.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.cfg.Timeout,
	}, nil
}

type dialResult struct {
	client SSHClient
	err    error
}

func (s *Impl) dial(ctx context.Context, addr string) (SSHClient, error) {
	clientChan := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, s.clientConfig)
		clientChan <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		return res.client, res.err
	}
}

// Attempt connects to host as the configured user. In dry-run mode a
// successful connection is enough to mark the host touched; otherwise the
// shutdown command is sent. Failures are returned as skipped attempts.
func (s *Impl) Attempt(ctx context.Context, host models.HostRecord, dryRun bool) models.Attempt {
	if s.clientConfig == nil {
		if err := s.Prepare(); err != nil {
			return models.Skipped(host, classify(err), err)
		}
	}

	addr := net.JoinHostPort(host.Hostname, strconv.Itoa(s.cfg.Port))

	s.logger.Info().
		Str("host", host.Hostname).
		Str("user", s.cfg.User).
		Bool("dry_run", dryRun).
		Msg("connecting")

	dialCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.Timeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
	}
	client, err := s.dial(dialCtx, addr)
	cancel()
	if err != nil {
		reason := classify(err)
		s.logger.Warn().
			Err(err).
			Str("host", host.Hostname).
			Str("reason", string(reason)).
			Msg("skipping host")
		return models.Skipped(host, reason, err)
	}
	defer func() { _ = client.Close() }()

	if dryRun {
		s.logger.Info().Str("host", host.Hostname).Msg("connection verified (dry run)")
		return models.Touched(host, "")
	}

	session, err := client.NewSession()
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("host", host.Hostname).
			Str("reason", string(models.ReasonSession)).
			Msg("skipping host")
		return models.Skipped(host, models.ReasonSession, fmt.Errorf("failed to create session: %w", err))
	}
	defer func() { _ = session.Close() }()

	s.logger.Debug().Str("host", host.Hostname).Str("command", s.cfg.Command).Msg("executing shutdown command")

	output, err := session.CombinedOutput(s.cfg.Command)
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			s.logger.Warn().
				Err(err).
				Str("host", host.Hostname).
				Str("output", string(output)).
				Msg("shutdown command was rejected")
			a := models.Skipped(host, models.ReasonCommandFailed, err)
			a.Output = string(output)
			return a
		}
		// The host usually drops the connection while going down.
		s.logger.Warn().Err(err).Str("host", host.Hostname).Msg("shutdown command returned error (may be expected)")
	}

	s.logger.Info().
		Str("host", host.Hostname).
		Str("output", strings.TrimSpace(string(output))).
		Msg("shutdown command sent")

	return models.Touched(host, string(output))
}

// classify maps a connection error to a skip reason.
func classify(err error) models.SkipReason {
	var dnsErr *net.DNSError
	var keyErr *knownhosts.KeyError
	var netErr net.Error

	switch {
	case errors.Is(err, ErrPassphraseRequired):
		return models.ReasonPassphraseRequired
	case errors.As(err, &dnsErr):
		return models.ReasonUnresolvable
	case errors.Is(err, context.Canceled):
		return models.ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return models.ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return models.ReasonTimeout
	case errors.As(err, &keyErr):
		return models.ReasonHostKey
	case strings.Contains(err.Error(), "unable to authenticate"):
		return models.ReasonAuthRejected
	default:
		return models.ReasonConnect
	}
}
