package wallet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mrz1836/satchel/internal/fileutil"
	"github.com/mrz1836/satchel/internal/keycrypt"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

const (
	walletFileExtension   = ".wallet"
	walletFilePermissions = 0o600
)

// secretSeparator splits mnemonic and passphrase inside the encrypted blob.
const secretSeparator = '\n'

// Secret holds a decrypted mnemonic and passphrase in locked memory.
type Secret struct {
	buf *keycrypt.Buffer
}

// NewSecret copies mnemonic and passphrase into locked memory.
func NewSecret(mnemonic, passphrase string) *Secret {
	raw := make([]byte, 0, len(mnemonic)+len(passphrase)+1)
	raw = append(raw, NormalizeMnemonicInput(mnemonic)...)
	raw = append(raw, secretSeparator)
	raw = append(raw, passphrase...)
	defer keycrypt.Wipe(raw)

	return &Secret{buf: keycrypt.Copy(raw)}
}

// Mnemonic returns the mnemonic words.
func (s *Secret) Mnemonic() string {
	m, _, _ := bytes.Cut(s.buf.Bytes(), []byte{secretSeparator})
	return string(m)
}

// Passphrase returns the BIP39 passphrase, possibly empty.
func (s *Secret) Passphrase() string {
	_, p, _ := bytes.Cut(s.buf.Bytes(), []byte{secretSeparator})
	return string(p)
}

// Destroy wipes the secret.
func (s *Secret) Destroy() {
	s.buf.Wipe()
}

// Storage defines wallet file persistence.
type Storage interface {
	// Save encrypts secret with password and writes a new wallet file.
	Save(w *Wallet, secret *Secret, password []byte) error

	// Load reads metadata and decrypts the secret.
	Load(name string, password []byte) (*Wallet, *Secret, error)

	// LoadMetadata reads metadata without decrypting.
	LoadMetadata(name string) (*Wallet, error)

	Exists(name string) (bool, error)
	List() ([]string, error)
	Delete(name string) error
}

// walletFile is the on-disk JSON layout.
type walletFile struct {
	Wallet          *Wallet `json:"wallet"`
	EncryptedSecret []byte  `json:"encrypted_secret"`
}

// FileStorage implements Storage with one JSON file per wallet.
type FileStorage struct {
	basePath string
}

// NewFileStorage creates a new file-based storage rooted at basePath.
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{basePath: basePath}
}

// Save encrypts and writes a wallet. It refuses to overwrite an existing file.
func (s *FileStorage) Save(w *Wallet, secret *Secret, password []byte) error {
	if err := ValidateWalletName(w.Name); err != nil {
		return err
	}

	exists, err := s.Exists(w.Name)
	if err != nil {
		return fmt.Errorf("checking wallet existence: %w", err)
	}
	if exists {
		return walleterr.WithDetails(walleterr.ErrWalletExists, map[string]string{"name": w.Name})
	}

	if err := fileutil.EnsurePrivateDir(s.basePath); err != nil {
		return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}

	encrypted, err := keycrypt.Seal(secret.buf.Bytes(), password)
	if err != nil {
		return fmt.Errorf("encrypting secret: %w", err)
	}

	data, err := json.MarshalIndent(walletFile{Wallet: w, EncryptedSecret: encrypted}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling wallet: %w", err)
	}

	if err := fileutil.WriteAtomic(s.walletPath(w.Name), data, walletFilePermissions); err != nil {
		return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return nil
}

// Load reads and decrypts a wallet.
func (s *FileStorage) Load(name string, password []byte) (*Wallet, *Secret, error) {
	wf, err := s.read(name)
	if err != nil {
		return nil, nil, err
	}

	buf, err := keycrypt.Unseal(wf.EncryptedSecret, password)
	if err != nil {
		return nil, nil, walleterr.WithDetails(walleterr.ErrDecryptionFailed, map[string]string{"name": name})
	}

	return wf.Wallet, &Secret{buf: buf}, nil
}

// LoadMetadata reads wallet metadata without decrypting the secret.
func (s *FileStorage) LoadMetadata(name string) (*Wallet, error) {
	wf, err := s.read(name)
	if err != nil {
		return nil, err
	}
	return wf.Wallet, nil
}

func (s *FileStorage) read(name string) (*walletFile, error) {
	if err := ValidateWalletName(name); err != nil {
		return nil, err
	}

	//nolint:gosec // G304: Path validated by ValidateWalletName + walletPath
	data, err := os.ReadFile(s.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, walleterr.WithDetails(walleterr.ErrWalletNotFound, map[string]string{"name": name})
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet file: %w", err)
	}

	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing wallet file: %w", err)
	}
	if wf.Wallet == nil {
		return nil, fmt.Errorf("parsing wallet file: missing metadata")
	}
	return &wf, nil
}

// Exists checks if a wallet exists.
func (s *FileStorage) Exists(name string) (bool, error) {
	if err := ValidateWalletName(name); err != nil {
		return false, err
	}

	_, err := os.Stat(s.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns all wallet names, sorted.
func (s *FileStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), walletFileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), walletFileExtension))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a wallet file.
func (s *FileStorage) Delete(name string) error {
	if err := ValidateWalletName(name); err != nil {
		return err
	}

	err := os.Remove(s.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return walleterr.WithDetails(walleterr.ErrWalletNotFound, map[string]string{"name": name})
	}
	if err != nil {
		return fmt.Errorf("removing wallet file: %w", err)
	}
	return nil
}

// walletPath returns the full path for a wallet file. name has already
// been validated against [a-zA-Z0-9_-]{1,64}.
func (s *FileStorage) walletPath(name string) string {
	return filepath.Join(s.basePath, name+walletFileExtension)
}
