package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"golang.org/x/term"
)

// test seams
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// ErrNoPassphrase means the encryption passphrase is unset and cannot be
// prompted for.
var ErrNoPassphrase = errors.New("encryption passphrase is not set")

// EnsurePassphrase prompts on the terminal behind in when the encryption
// passphrase is empty. Without a terminal it returns ErrNoPassphrase.
func (c *Config) EnsurePassphrase(in *os.File, w io.Writer) error {
	if c.EncryptionPassphrase != "" {
		return nil
	}

	fd := int(in.Fd())
	if !isTerminal(fd) {
		return ErrNoPassphrase
	}

	if _, err := fmt.Fprint(w, "Enter encryption passphrase: "); err != nil {
		return err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}

	p := strings.TrimSpace(string(pw))
	common.WipeByteArray(pw)
	if p == "" {
		return ErrNoPassphrase
	}
	c.EncryptionPassphrase = p
	return nil
}
