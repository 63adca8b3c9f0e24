//go:build e2e

package e2e

import (
	"io"
	"os"
	"strconv"
	"testing"

	"github.com/fgeck/autoshutdown/internal/config"
	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func getSSHConfig(t *testing.T) (models.SSHConfig, models.HostRecord) {
	t.Helper()

	host := os.Getenv("TEST_SSH_HOST")
	if host == "" {
		t.Skip("TEST_SSH_HOST not set")
	}

	keyPath := os.Getenv("TEST_SSH_KEY_PATH")
	if keyPath == "" {
		t.Skip("TEST_SSH_KEY_PATH not set")
	}

	cfg := config.Default().SSH
	cfg.KeyPath = keyPath

	if portStr := os.Getenv("TEST_SSH_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		cfg.Port = port
	}

	if user := os.Getenv("TEST_SSH_USER"); user != "" {
		cfg.User = user
	}

	return cfg, models.HostRecord{Hostname: host}
}
