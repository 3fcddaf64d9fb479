package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/messaging"
	"github.com/codefionn/webmessaging/internal/secrets"
	"github.com/codefionn/webmessaging/internal/vault"
	"golang.org/x/term"
)

const maxPasswordAttempts = 3

// passwordEnv lets scripts unlock the vault without a prompt.
const passwordEnv = "WEBMESSAGING_VAULT_PASSWORD"

// openVault returns the vault configured for the session. An encrypted
// vault asks for its password on the terminal.
func openVault() (vault.Vault, func(), error) {
	if !appConfig.EncryptedVault {
		mem := vault.NewMemory()
		return mem, mem.Wipe, nil
	}

	if err := os.MkdirAll(filepath.Dir(appConfig.VaultPath), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	if pw, ok := os.LookupEnv(passwordEnv); ok {
		f, err := vault.OpenFile(appConfig.VaultPath, pw)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}

	for attempt := 0; attempt < maxPasswordAttempts; attempt++ {
		pw, err := promptForPassword("Vault password: ")
		if err != nil {
			return nil, nil, err
		}
		f, err := vault.OpenFile(appConfig.VaultPath, pw)
		if err != nil {
			if errors.Is(err, secrets.ErrInvalidPassword) {
				fmt.Fprintln(os.Stderr, "Invalid password, try again.")
				continue
			}
			return nil, nil, err
		}
		return f, f.Close, nil
	}
	return nil, nil, errors.New("too many invalid password attempts")
}

func promptForPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// newClient builds a client on the configured vault. The returned func
// closes both.
func newClient() (*messaging.Client, func(), error) {
	v, closeVault, err := openVault()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vault: %w", err)
	}

	client, err := messaging.NewClient(appConfig,
		messaging.WithVault(v),
		messaging.WithLogger(logger.Global()),
	)
	if err != nil {
		closeVault()
		return nil, nil, err
	}

	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close client: %v", err)
		}
		closeVault()
	}, nil
}
