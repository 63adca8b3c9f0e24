package serverlist

import (
	"fmt"
	"os"

	"github.com/fgeck/autoshutdown/internal/services/cipher"
	"github.com/rs/zerolog"
)

// PassphraseSource supplies the passphrase for an encrypted list.
type PassphraseSource interface {
	Passphrase(label string) (string, error)
}

// Loader reads a server list from disk, decrypting it first when the file
// holds a Fernet token.
type Loader struct {
	cipher     cipher.Service
	passphrase PassphraseSource
	logger     zerolog.Logger
}

// NewLoader creates a new server-list loader.
func NewLoader(logger zerolog.Logger, cipherSvc cipher.Service, passphrase PassphraseSource) *Loader {
	return &Loader{
		cipher:     cipherSvc,
		passphrase: passphrase,
		logger:     logger,
	}
}

// Load reads path and parses it in format. Read and decryption failures are
// returned as errors; malformed lines are reported in the result.
func (l *Loader) Load(path string, format Format) (*Result, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}

	// Anything shaped like a token is decrypted, so a damaged file fails
	// authentication instead of being read as hostnames.
	if cipher.IsToken(data) {
		l.logger.Info().Str("file", path).Msg("server list is encrypted")

		pass, err := l.passphrase.Passphrase("Enter passphrase")
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}

		data, err = l.cipher.Decrypt(pass, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt server list: %w", err)
		}
	}

	res := Parse(l.logger, data, format)

	l.logger.Debug().
		Str("file", path).
		Stringer("format", format).
		Int("hosts", len(res.Hosts)).
		Int("discarded", len(res.Malformed)).
		Msg("server list parsed")

	return &res, nil
}
