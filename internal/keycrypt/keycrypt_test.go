package keycrypt_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/keycrypt"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

const seedPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about\n"

func TestSealUnseal(t *testing.T) {
	t.Parallel()
	pass := []byte("correct horse battery") // gitleaks:allow

	sealed, err := keycrypt.Seal([]byte(seedPhrase), pass)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abandon")
	assert.True(t, bytes.HasPrefix(sealed, []byte("age-encryption.org/v1")))

	buf, err := keycrypt.Unseal(sealed, pass)
	require.NoError(t, err)
	defer buf.Wipe()
	assert.Equal(t, seedPhrase, string(buf.Bytes()))
}

func TestUnseal_Failures(t *testing.T) {
	t.Parallel()
	sealed, err := keycrypt.Seal([]byte("seed words"), []byte("pw-12345678"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		sealed []byte
		pass   string
	}{
		{"wrong passphrase", sealed, "pw-87654321"},
		{"truncated blob", sealed[:len(sealed)/2], "pw-12345678"},
		{"not age data", []byte(`{"mnemonic":"x"}`), "pw-12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf, err := keycrypt.Unseal(tt.sealed, []byte(tt.pass))
			require.ErrorIs(t, err, walleterr.ErrDecryptionFailed)
			assert.Nil(t, buf)
			assert.Equal(t, walleterr.ExitAuth, walleterr.ExitCode(err))
		})
	}
}

func TestSeal_EmptyPassphrase(t *testing.T) {
	t.Parallel()
	_, err := keycrypt.Seal([]byte("seed"), nil)
	require.ErrorIs(t, err, keycrypt.ErrEmptyPassphrase)
}

func TestBuffer(t *testing.T) {
	t.Parallel()

	t.Run("copy does not alias", func(t *testing.T) {
		t.Parallel()
		src := []byte{0x04, 0x88, 0xb2, 0x1e}
		buf := keycrypt.Copy(src)
		defer buf.Wipe()

		src[0] = 0
		assert.Equal(t, []byte{0x04, 0x88, 0xb2, 0x1e}, buf.Bytes())
		assert.Equal(t, 4, buf.Len())
	})

	t.Run("wipe clears backing array once", func(t *testing.T) {
		t.Parallel()
		buf := keycrypt.NewBuffer(32)
		backing := buf.Bytes()
		for i := range backing {
			backing[i] = 0xff
		}

		buf.Wipe()
		buf.Wipe()

		assert.Nil(t, buf.Bytes())
		assert.Zero(t, buf.Len())
		assert.False(t, buf.Pinned())
		assert.Equal(t, make([]byte, 32), backing)
	})

	t.Run("empty buffer is never pinned", func(t *testing.T) {
		t.Parallel()
		buf := keycrypt.NewBuffer(0)
		defer buf.Wipe()
		assert.False(t, buf.Pinned())
	})
}

func TestWipe(t *testing.T) {
	t.Parallel()
	key := bytes.Repeat([]byte{0xab}, 32)
	keycrypt.Wipe(key)
	assert.Equal(t, make([]byte, 32), key)
	keycrypt.Wipe(nil)
}

//nolint:paralleltest // swaps keycrypt.Reader
func TestEntropy(t *testing.T) {
	orig := keycrypt.Reader
	t.Cleanup(func() { keycrypt.Reader = orig })

	keycrypt.Reader = bytes.NewReader(bytes.Repeat([]byte{0x7f}, 32))
	e, err := keycrypt.Entropy(256)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x7f}, 32), e)

	_, err = keycrypt.Entropy(128)
	require.Error(t, err, "reader is drained")

	for _, bits := range []int{0, 96, 130, 288} {
		_, err = keycrypt.Entropy(bits)
		require.Error(t, err, "bits=%d", bits)
	}

	keycrypt.Reader = orig
	a, err := keycrypt.Entropy(128)
	require.NoError(t, err)
	b, err := keycrypt.Entropy(128)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
