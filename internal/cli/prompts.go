package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrz1836/satchel/internal/keycrypt"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// minPasswordLength is the shortest accepted wallet password.
const minPasswordLength = 8

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests
var (
	promptPasswordFn              = promptPassword
	promptNewPasswordFn           = promptNewPassword
	promptPassphraseFn            = promptPassphrase
	promptMnemonicFn              = promptMnemonic
	promptConfirmFn               = promptConfirm
	promptIn            io.Reader = os.Stdin
	promptOut           io.Writer = os.Stderr
)

// out is a helper for CLI output that ignores write errors.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

// promptPassword reads a password without echo. The caller zeroes the
// returned bytes.
func promptPassword(prompt string) ([]byte, error) {
	out(promptOut, "%s", prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() fits in int
	outln(promptOut)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

// promptNewPassword reads a password twice and checks both match.
func promptNewPassword() ([]byte, error) {
	password, err := promptPasswordFn("Enter encryption password: ")
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		keycrypt.Wipe(password)
		return nil, walleterr.WithSuggestion(walleterr.ErrInvalidInput,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	confirm, err := promptPasswordFn("Confirm password: ")
	if err != nil {
		keycrypt.Wipe(password)
		return nil, err
	}
	defer keycrypt.Wipe(confirm)

	if string(password) != string(confirm) {
		keycrypt.Wipe(password)
		return nil, walleterr.WithSuggestion(walleterr.ErrInvalidInput, "passwords do not match")
	}
	return password, nil
}

// promptPassphrase reads an optional BIP39 passphrase, confirmed.
func promptPassphrase() (string, error) {
	outln(promptOut, "\nBIP39 passphrase (optional extra word added to the seed):")
	outln(promptOut, "WARNING: without it the wallet cannot be restored.")

	passphrase, err := promptPasswordFn("Enter passphrase: ")
	if err != nil {
		return "", err
	}
	defer keycrypt.Wipe(passphrase)
	if len(passphrase) == 0 {
		return "", nil
	}

	confirm, err := promptPasswordFn("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	defer keycrypt.Wipe(confirm)

	if string(passphrase) != string(confirm) {
		return "", walleterr.WithSuggestion(walleterr.ErrInvalidInput, "passphrases do not match")
	}
	return string(passphrase), nil
}

// promptMnemonic reads a mnemonic typed or pasted on one or more lines,
// ending at an empty line or EOF.
func promptMnemonic() (string, error) {
	outln(promptOut, "Enter your mnemonic phrase, then an empty line:")

	var lines []string
	scanner := bufio.NewScanner(promptIn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading mnemonic: %w", err)
	}
	if len(lines) == 0 {
		return "", walleterr.WithSuggestion(walleterr.ErrInvalidInput, "no mnemonic provided")
	}
	return strings.Join(lines, "\n"), nil
}

// promptConfirm asks a yes/no question, defaulting to no.
func promptConfirm(question string) bool {
	out(promptOut, "%s [y/N]: ", question)
	reader := bufio.NewReader(promptIn)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
