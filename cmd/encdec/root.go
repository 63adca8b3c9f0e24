package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fgeck/autoshutdown/internal/cli"
	"github.com/fgeck/autoshutdown/internal/services/cipher"
	"github.com/fgeck/autoshutdown/internal/services/prompt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	modeEncrypt = "enc"
	modeDecrypt = "dec"
)

var flags cli.Flags

// newPrompter is a variable so tests can supply passphrases.
var newPrompter = func() prompt.Prompter {
	return prompt.New()
}

var rootCmd = &cobra.Command{
	Use:   "encdec {enc|dec} input output",
	Short: "Encrypt or decrypt a server list with a passphrase",
	Long: `encdec protects server lists at rest. The output of "enc" is a Fernet
token that autoshutdown and autoshutdown-windows decrypt on the fly after
asking for the same passphrase.`,
	Args:      cli.RangeArgs(3, 3),
	ValidArgs: []string{modeEncrypt, modeDecrypt},
	RunE:      runEncDec,
}

func init() {
	flags.Bind(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runEncDec(cmd *cobra.Command, args []string) error {
	mode, input, output := strings.ToLower(args[0]), args[1], args[2]
	if mode != modeEncrypt && mode != modeDecrypt {
		return fmt.Errorf("%w: unknown mode %q, expected %q or %q", cli.ErrUsage, mode, modeEncrypt, modeDecrypt)
	}
	cmd.SilenceUsage = true

	svc := cipher.New(log.Logger)
	prompter := newPrompter()

	var err error
	switch mode {
	case modeEncrypt:
		err = encrypt(svc, prompter, input, output)
	case modeDecrypt:
		err = decrypt(svc, prompter, input, output)
	}
	if err != nil {
		log.Error().Err(err).Str("mode", mode).Str("input", input).Msg("operation failed")
		return err
	}

	fmt.Println("Completed successfully!")
	return nil
}

func encrypt(svc cipher.Service, prompter prompt.Prompter, input, output string) error {
	passphrase, err := prompter.NewPassphrase("Enter passphrase", "Verify passphrase")
	if err != nil {
		if errors.Is(err, prompt.ErrPassphraseMismatch) {
			fmt.Println("Passphrases do not match!")
		}
		return err
	}
	return svc.EncryptFile(passphrase, input, output)
}

func decrypt(svc cipher.Service, prompter prompt.Prompter, input, output string) error {
	passphrase, err := prompter.Passphrase("Enter passphrase")
	if err != nil {
		return err
	}
	return svc.DecryptFile(passphrase, input, output)
}
