package wallet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

func testWallet(name string) *Wallet {
	return &Wallet{
		Name:              name,
		ID:                "9f2c",
		Network:           NetworkTestnet,
		MasterFingerprint: "73c5da0a",
		ReceiveDescriptor: "wpkh([73c5da0a/84'/1'/0']tpub.../0/*)",
		ChangeDescriptor:  "wpkh([73c5da0a/84'/1'/0']tpub.../1/*)",
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:           FileVersion,
	}
}

func TestFileStorage_SaveAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewFileStorage(dir)
	password := []byte("test-password-123")

	secret := NewSecret(testMnemonic, "extra words")
	defer secret.Destroy()

	w := testWallet("main")
	require.NoError(t, store.Save(w, secret, password))

	info, err := os.Stat(filepath.Join(dir, "main.wallet"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(filepath.Join(dir, "main.wallet")) //nolint:gosec // test path
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abandon")

	loaded, loadedSecret, err := store.Load("main", password)
	require.NoError(t, err)
	defer loadedSecret.Destroy()
	assert.Equal(t, w, loaded)
	assert.Equal(t, testMnemonic, loadedSecret.Mnemonic())
	assert.Equal(t, "extra words", loadedSecret.Passphrase())

	meta, err := store.LoadMetadata("main")
	require.NoError(t, err)
	assert.Equal(t, w.ID, meta.ID)
}

func TestFileStorage_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewFileStorage(dir)
	secret := NewSecret(testMnemonic, "")
	defer secret.Destroy()

	require.NoError(t, store.Save(testWallet("main"), secret, []byte("password-1")))

	err := store.Save(testWallet("main"), secret, []byte("password-1"))
	require.ErrorIs(t, err, walleterr.ErrWalletExists)

	_, _, err = store.Load("main", []byte("wrong-password"))
	require.ErrorIs(t, err, walleterr.ErrDecryptionFailed)

	_, _, err = store.Load("missing", []byte("password-1"))
	require.ErrorIs(t, err, walleterr.ErrWalletNotFound)

	_, err = store.LoadMetadata("../etc/passwd")
	require.ErrorIs(t, err, walleterr.ErrInvalidInput)

	require.ErrorIs(t, store.Delete("missing"), walleterr.ErrWalletNotFound)
}

func TestFileStorage_ListAndDelete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewFileStorage(filepath.Join(dir, "wallets"))

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	secret := NewSecret(testMnemonic, "")
	defer secret.Destroy()
	require.NoError(t, store.Save(testWallet("beta"), secret, []byte("password-1")))
	require.NoError(t, store.Save(testWallet("alpha"), secret, []byte("password-1")))

	names, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	require.NoError(t, store.Delete("alpha"))
	exists, err := store.Exists("alpha")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestValidateWalletName(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateWalletName("my_wallet-1"))
	require.ErrorIs(t, ValidateWalletName(""), walleterr.ErrInvalidInput)
	require.ErrorIs(t, ValidateWalletName("has space"), walleterr.ErrInvalidInput)

	assert.Equal(t, "haspace", SuggestWalletName("has pace"))
	assert.Empty(t, SuggestWalletName("!!!"))
}
