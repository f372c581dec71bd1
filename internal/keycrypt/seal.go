// Package keycrypt guards wallet secrets: passphrase sealing with age,
// pinned wipeable buffers for decrypted material, and the entropy source.
package keycrypt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// ErrEmptyPassphrase is returned when sealing with an empty passphrase.
var ErrEmptyPassphrase = walleterr.WithSuggestion(
	walleterr.New("EMPTY_PASSPHRASE", "encryption passphrase must not be empty"),
	"Choose a password when creating the wallet",
)

// Seal encrypts secret to an scrypt recipient derived from passphrase.
func Seal(secret, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	recipient, err := age.NewScryptRecipient(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("scrypt recipient: %w", err)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return nil, fmt.Errorf("starting age stream: %w", err)
	}
	if _, err = w.Write(secret); err == nil {
		err = w.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("sealing secret: %w", err)
	}
	return sealed.Bytes(), nil
}

// Unseal decrypts sealed into a pinned Buffer. A wrong passphrase and a
// damaged blob both report DECRYPTION_FAILED.
func Unseal(sealed, passphrase []byte) (*Buffer, error) {
	identity, err := age.NewScryptIdentity(string(passphrase))
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrDecryptionFailed, err)
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, walleterr.ErrDecryptionFailed
		}
		return nil, walleterr.WithCause(walleterr.ErrDecryptionFailed, err)
	}

	plain, err := io.ReadAll(r)
	defer Wipe(plain)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrDecryptionFailed, err)
	}
	return Copy(plain), nil
}
