package wallet

import (
	"regexp"
	"time"

	"github.com/mrz1836/go-sanitize"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// FileVersion is the current wallet file format version.
const FileVersion = 1

var (
	// ErrInvalidWalletName indicates the wallet name is invalid.
	ErrInvalidWalletName = walleterr.WithSuggestion(walleterr.ErrInvalidInput,
		"wallet name must be 1-64 alphanumeric characters, underscores, or hyphens")

	// walletNameRegex validates wallet names: alphanumeric + underscore + hyphen, 1-64 chars.
	walletNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// Wallet is the public metadata of a wallet. It never holds key material;
// descriptors are stored in their public form.
type Wallet struct {
	Name              string    `json:"name"`
	ID                string    `json:"id"`
	Network           string    `json:"network"`
	Account           uint32    `json:"account"`
	MasterFingerprint string    `json:"master_fingerprint"`
	ReceiveDescriptor string    `json:"receive_descriptor"`
	ChangeDescriptor  string    `json:"change_descriptor"`
	CreatedAt         time.Time `json:"created_at"`
	Version           int       `json:"version"`
}

// Summary is a lightweight wallet representation for listing.
type Summary struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Network   string    `json:"network"`
	CreatedAt time.Time `json:"created_at"`
}

// ToSummary creates a summary representation of the wallet.
func (w *Wallet) ToSummary() Summary {
	return Summary{
		Name:      w.Name,
		ID:        w.ID,
		Network:   w.Network,
		CreatedAt: w.CreatedAt,
	}
}

// ValidateWalletName checks if a wallet name is valid.
func ValidateWalletName(name string) error {
	if !walletNameRegex.MatchString(name) {
		return walleterr.WithDetails(ErrInvalidWalletName, map[string]string{"name": name})
	}
	return nil
}

// SuggestWalletName provides a sanitized version of an invalid wallet name,
// or "" when nothing usable remains.
func SuggestWalletName(name string) string {
	suggested := sanitize.PathName(name)
	if len(suggested) > 64 {
		suggested = suggested[:64]
	}
	return suggested
}
