package keycrypt

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Reader feeds mnemonic generation. Tests swap in fixed bytes.
//
//nolint:gochecknoglobals // swappable for deterministic mnemonics
var Reader io.Reader = rand.Reader

// Entropy reads bits/8 bytes from Reader. bits must be a multiple of 32
// between 128 and 256, the BIP39 entropy sizes.
func Entropy(bits int) ([]byte, error) {
	if bits < 128 || bits > 256 || bits%32 != 0 {
		return nil, fmt.Errorf("entropy size %d bits is not a BIP39 size", bits)
	}
	out := make([]byte, bits/8)
	if _, err := io.ReadFull(Reader, out); err != nil {
		Wipe(out)
		return nil, fmt.Errorf("reading entropy: %w", err)
	}
	return out, nil
}
