package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Mock implementations
type mockSSHSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
	closeFunc          func() error
}

func (m *mockSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSSHSession) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
	closeFunc      func() error
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey generates a valid ed25519 key for testing using crypto/ed25519.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.SSHConfig {
	return models.SSHConfig{
		User:       "root",
		Port:       22,
		Timeout:    10 * time.Second,
		Command:    "shutdown -h now",
		PrivateKey: generateTestKey(t),
	}
}

func host(name string) models.HostRecord {
	return models.HostRecord{Hostname: name}
}

func failingFactory(err error) *mockClientFactory {
	return &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, err
		},
	}
}

func TestAttempt_Success(t *testing.T) {
	var capturedCommand, capturedAddr, capturedUser string
	var capturedTimeout time.Duration

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			capturedUser = config.User
			capturedTimeout = config.Timeout
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							capturedCommand = cmd
							return []byte("Shutdown scheduled"), nil
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	attempt := svc.Attempt(context.Background(), host("host1"), false)

	assert.True(t, attempt.Touched)
	assert.Equal(t, "host1", attempt.Host.Hostname)
	assert.Contains(t, attempt.Output, "Shutdown scheduled")
	assert.Equal(t, "shutdown -h now", capturedCommand)
	assert.Equal(t, "host1:22", capturedAddr)
	assert.Equal(t, "root", capturedUser)
	assert.Equal(t, 10*time.Second, capturedTimeout)
}

func TestAttempt_DryRunSendsNothing(t *testing.T) {
	sessionOpened := false

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					sessionOpened = true
					return &mockSSHSession{}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	attempt := svc.Attempt(context.Background(), host("host1"), true)

	assert.True(t, attempt.Touched)
	assert.False(t, sessionOpened)
}

func TestAttempt_ClosesClient(t *testing.T) {
	closed := false

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				closeFunc: func() error {
					closed = true
					return nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	svc.Attempt(context.Background(), host("host1"), false)

	assert.True(t, closed)
}

func TestAttempt_ConnectionFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason models.SkipReason
	}{
		{
			name:   "refused",
			err:    &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			reason: models.ReasonConnect,
		},
		{
			name:   "does not resolve",
			err:    &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "ghost", IsNotFound: true}},
			reason: models.ReasonUnresolvable,
		},
		{
			name:   "timeout",
			err:    &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}},
			reason: models.ReasonTimeout,
		},
		{
			name:   "auth rejected",
			err:    errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none publickey], no supported methods remain"),
			reason: models.ReasonAuthRejected,
		},
		{
			name:   "host key mismatch",
			err:    fmt.Errorf("ssh: handshake failed: %w", &knownhosts.KeyError{}),
			reason: models.ReasonHostKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewWithClientFactory(testLogger(), testConfig(t), failingFactory(tt.err))
			require.NoError(t, svc.Prepare())

			attempt := svc.Attempt(context.Background(), host("host1"), false)

			assert.False(t, attempt.Touched)
			assert.Equal(t, tt.reason, attempt.Reason)
			assert.NotEmpty(t, attempt.Detail)
		})
	}
}

func TestAttempt_SessionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return nil, errors.New("session creation failed")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	attempt := svc.Attempt(context.Background(), host("host1"), false)

	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonSession, attempt.Reason)
	assert.Contains(t, attempt.Detail, "failed to create session")
}

func TestAttempt_ConnectionDroppedCountsAsTouched(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							return nil, &ssh.ExitMissingError{}
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	attempt := svc.Attempt(context.Background(), host("host1"), false)

	assert.True(t, attempt.Touched)
}

func TestAttempt_CommandRejected(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							return []byte("must be superuser"), &ssh.ExitError{}
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	attempt := svc.Attempt(context.Background(), host("host1"), false)

	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonCommandFailed, attempt.Reason)
	assert.Equal(t, "must be superuser", attempt.Output)
}

func TestAttempt_ContextTimeout(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			// Simulate slow connection
			time.Sleep(100 * time.Millisecond)
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	require.NoError(t, svc.Prepare())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempt := svc.Attempt(ctx, host("host1"), false)

	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonTimeout, attempt.Reason)
}

func TestAttempt_ConnectBoundedByConfigTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			<-release
			return &mockSSHClient{}, nil
		},
	}

	cfg := testConfig(t)
	cfg.Timeout = 50 * time.Millisecond
	svc := NewWithClientFactory(testLogger(), cfg, factory)
	require.NoError(t, svc.Prepare())

	start := time.Now()
	attempt := svc.Attempt(context.Background(), host("host1"), false)

	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonTimeout, attempt.Reason)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAttempt_SilentServerTimesOut(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	// Accept connections and never send a banner.
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-accepted:
			_ = conn.Close()
		default:
		}
	}()

	tcpAddr := listener.Addr().(*net.TCPAddr)
	cfg := testConfig(t)
	cfg.Port = tcpAddr.Port
	cfg.Timeout = 300 * time.Millisecond

	svc := New(testLogger(), cfg)
	require.NoError(t, svc.Prepare())

	start := time.Now()
	attempt := svc.Attempt(context.Background(), host("127.0.0.1"), true)

	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonTimeout, attempt.Reason)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestDefaultClientFactory_HandshakeDeadline(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	go func() {
		conn, err := listener.Accept()
		if err == nil {
			defer func() { _ = conn.Close() }()
			time.Sleep(2 * time.Second)
		}
	}()

	signer, err := ssh.ParsePrivateKey(generateTestKey(t))
	require.NoError(t, err)

	factory := &DefaultClientFactory{}
	start := time.Now()
	client, err := factory.NewClient("tcp", listener.Addr().String(), &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // test server
		Timeout:         200 * time.Millisecond,
	})

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAttempt_ContextCancelled(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), testConfig(t), &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			time.Sleep(50 * time.Millisecond)
			return &mockSSHClient{}, nil
		},
	})
	require.NoError(t, svc.Prepare())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempt := svc.Attempt(ctx, host("host1"), false)

	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonCancelled, attempt.Reason)
}

func TestAttempt_PreparesLazily(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), testConfig(t), &mockClientFactory{})

	attempt := svc.Attempt(context.Background(), host("host1"), true)

	assert.True(t, attempt.Touched)
}

func TestPrepare_NoPrivateKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = nil

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})
	err := svc.Prepare()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no private key")
}

func TestPrepare_InvalidPrivateKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = []byte("invalid key")

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})
	err := svc.Prepare()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse private key")
}

func TestPrepare_PassphraseProtectedKey(t *testing.T) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKeyWithPassphrase(privateKey, "", []byte("secret"))
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.PrivateKey = pem.EncodeToMemory(block)

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})

	assert.ErrorIs(t, svc.Prepare(), ErrPassphraseRequired)

	attempt := svc.Attempt(context.Background(), host("host1"), false)
	assert.False(t, attempt.Touched)
	assert.Equal(t, models.ReasonPassphraseRequired, attempt.Reason)
}

func TestPrepare_WithKeyPath(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	cfg := testConfig(t)
	cfg.PrivateKey = nil
	cfg.KeyPath = keyPath

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})

	require.NoError(t, svc.Prepare())
	assert.Equal(t, "root", svc.clientConfig.User)
}

func TestPrepare_KeyPathNotFound(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = nil
	cfg.KeyPath = "/nonexistent/path/id_rsa"

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})
	err := svc.Prepare()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")
}

func TestPrepare_KnownHosts(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHostsPath, nil, 0o600))

	cfg := testConfig(t)
	cfg.KnownHostsPath = knownHostsPath

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})

	require.NoError(t, svc.Prepare())
	assert.NotNil(t, svc.clientConfig.HostKeyCallback)
}

func TestPrepare_KnownHostsMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.KnownHostsPath = "/nonexistent/known_hosts"

	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})
	err := svc.Prepare()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load known hosts")
}
