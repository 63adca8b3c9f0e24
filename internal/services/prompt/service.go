// Package prompt talks to the operator: yes/no confirmation before
// destructive work and hidden passphrase entry.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// ErrPassphraseMismatch is returned when the verification entry differs.
var ErrPassphraseMismatch = errors.New("passphrases do not match")

// Prompter defines the interface for operator interaction.
type Prompter interface {
	Confirm(label string) (bool, error)
	Passphrase(label string) (string, error)
	NewPassphrase(label, verifyLabel string) (string, error)
}

// promptUIRunner is a variable for testing purposes to allow mocking prompt.Run()
var promptUIRunner = func(prompt promptui.Prompt) (string, error) {
	return prompt.Run()
}

// Impl implements the Prompter interface.
type Impl struct {
	in         io.Reader
	confirmIn  io.ReadCloser // promptui stdin, nil for the process stdin
	out        io.Writer
	fd         int
	isTerminal func(fd int) bool
	readSecret func(fd int) ([]byte, error)
}

// New creates a prompter bound to the process stdin/stdout.
func New() *Impl {
	return &Impl{
		in:         os.Stdin,
		out:        os.Stdout,
		fd:         int(os.Stdin.Fd()), //nolint:gosec // fd fits in int
		isTerminal: term.IsTerminal,
		readSecret: term.ReadPassword,
	}
}

// NewWithIO creates a prompter that reads secrets line by line from in
// (for testing and piped input).
func NewWithIO(in io.Reader, out io.Writer) *Impl {
	return &Impl{
		in:         in,
		confirmIn:  io.NopCloser(in),
		out:        out,
		fd:         -1,
		isTerminal: func(int) bool { return false },
		readSecret: term.ReadPassword,
	}
}

// Confirm asks a y/N question. Declining, Ctrl-C and end of input all
// count as "no".
func (p *Impl) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.confirmIn,
	}

	_, err := promptUIRunner(prompt)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort),
		errors.Is(err, promptui.ErrInterrupt),
		errors.Is(err, promptui.ErrEOF):
		return false, nil
	default:
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
}

// Passphrase reads a secret without echoing it when stdin is a terminal.
func (p *Impl) Passphrase(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)

	if p.isTerminal(p.fd) {
		secret, err := p.readSecret(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(secret), nil
	}

	line, err := readLine(p.in)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return line, nil
}

// readLine reads up to and including the next '\n' one byte at a time.
// Nothing past the newline is consumed, so a later prompt reading the same
// stream still sees its answer.
func readLine(r io.Reader) (string, error) {
	var line bytes.Buffer
	buf := make([]byte, 1)

	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && line.Len() > 0 {
				break
			}
			return "", err
		}
	}

	return strings.TrimRight(line.String(), "\r"), nil
}

// NewPassphrase reads a secret twice and fails if the entries differ.
func (p *Impl) NewPassphrase(label, verifyLabel string) (string, error) {
	first, err := p.Passphrase(label)
	if err != nil {
		return "", err
	}

	second, err := p.Passphrase(verifyLabel)
	if err != nil {
		return "", err
	}

	if first != second {
		return "", ErrPassphraseMismatch
	}
	return first, nil
}
