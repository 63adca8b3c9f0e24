// Package cipher encrypts server lists at rest with a passphrase-derived
// Fernet key.
//
// The key is SHA-256 of the passphrase, URL-safe base64 encoded. There is no
// salt and no stretching, so the same passphrase always yields the same key
// and a list encrypted on one machine opens on any other. Key strength is
// exactly passphrase strength.
package cipher

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/fernet/fernet-go"
	"github.com/rs/zerolog"
)

// ErrInvalidToken is returned when a blob fails authentication: either the
// passphrase is wrong or the file was tampered with.
var ErrInvalidToken = errors.New("invalid signature: either the file was tampered with or you have entered the wrong password")

// minTokenLen is version + timestamp + IV + one AES block + HMAC.
const minTokenLen = 1 + 8 + 16 + 16 + 32

// minEncodedLen is the base64 length of the shortest token.
var minEncodedLen = base64.URLEncoding.EncodedLen(minTokenLen)

// tokenEncoding is strict so every byte string has exactly one accepted text
// form and a flipped padding bit cannot decode to the original token.
var tokenEncoding = base64.URLEncoding.Strict()

// Service defines the interface for server-list encryption.
type Service interface {
	Encrypt(passphrase string, plaintext []byte) ([]byte, error)
	Decrypt(passphrase string, blob []byte) ([]byte, error)
	EncryptFile(passphrase, input, output string) error
	DecryptFile(passphrase, input, output string) error
}

// Impl implements the cipher Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new cipher service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// EncodedKey derives the URL-safe base64 key string for passphrase.
func EncodedKey(passphrase string) string {
	digest := sha256.Sum256([]byte(passphrase))
	return base64.URLEncoding.EncodeToString(digest[:])
}

// DeriveKey turns passphrase into a Fernet key.
func DeriveKey(passphrase string) (*fernet.Key, error) {
	key, err := fernet.DecodeKey(EncodedKey(passphrase))
	if err != nil {
		return nil, fmt.Errorf("decode derived key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with key. Every call embeds a fresh IV and
// timestamp, so identical inputs produce different tokens.
func Seal(key *fernet.Key, plaintext []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return tok, nil
}

// Open authenticates and decrypts blob with key. Tokens never expire.
func Open(key *fernet.Key, blob []byte) ([]byte, error) {
	tok := trimNewline(blob)
	if !canonical(tok) {
		return nil, ErrInvalidToken
	}

	msg := fernet.VerifyAndDecrypt(tok, 0, []*fernet.Key{key})
	if msg == nil {
		return nil, ErrInvalidToken
	}
	return msg, nil
}

// IsToken reports whether data should be treated as an encrypted list
// rather than plaintext. It does not authenticate anything: a blob of token
// length made of base64 characters, with at most one stray byte, counts as a
// token so that a corrupted file fails in Open instead of being parsed.
func IsToken(data []byte) bool {
	tok := trimNewline(data)
	if len(tok) < minEncodedLen {
		return false
	}

	stray := 0
	for _, c := range tok {
		if !isTokenChar(c) {
			stray++
			if stray > 1 {
				return false
			}
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '=':
		return true
	default:
		return false
	}
}

// canonical reports whether tok is strict URL-safe base64 with no embedded
// line breaks, which the base64 decoder would otherwise skip.
func canonical(tok []byte) bool {
	if bytes.ContainsAny(tok, "\r\n") {
		return false
	}
	_, err := tokenEncoding.DecodeString(string(tok))
	return err == nil
}

// trimNewline removes a single trailing "\n" or "\r\n" left by editors.
func trimNewline(data []byte) []byte {
	if bytes.HasSuffix(data, []byte("\r\n")) {
		return data[:len(data)-2]
	}
	return bytes.TrimSuffix(data, []byte("\n"))
}

// Encrypt derives a key from passphrase and encrypts plaintext.
func (s *Impl) Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return Seal(key, plaintext)
}

// Decrypt derives a key from passphrase and decrypts blob.
func (s *Impl) Decrypt(passphrase string, blob []byte) ([]byte, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return Open(key, blob)
}

// EncryptFile encrypts input into output.
func (s *Impl) EncryptFile(passphrase, input, output string) error {
	return s.transformFile(input, output, func(data []byte) ([]byte, error) {
		return s.Encrypt(passphrase, data)
	})
}

// DecryptFile decrypts input into output. The output file is not created
// when authentication fails.
func (s *Impl) DecryptFile(passphrase, input, output string) error {
	return s.transformFile(input, output, func(data []byte) ([]byte, error) {
		return s.Decrypt(passphrase, data)
	})
}

func (s *Impl) transformFile(input, output string, fn func([]byte) ([]byte, error)) error {
	data, err := os.ReadFile(input) //nolint:gosec // path is operator supplied
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	out, err := fn(data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	s.logger.Debug().
		Str("input", input).
		Str("output", output).
		Int("bytes_in", len(data)).
		Int("bytes_out", len(out)).
		Msg("file transformed")

	return nil
}
