package wallet

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/satchel/internal/keycrypt"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Fingerprint is the first four bytes of HASH160 of a compressed public key.
type Fingerprint [4]byte

// String returns the fingerprint as 8 lowercase hex characters.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Uint32 returns the fingerprint in the big-endian form used by BIP32
// serialization and PSBT key origins.
func (f Fingerprint) Uint32() uint32 {
	return binary.BigEndian.Uint32(f[:])
}

// LittleEndianUint32 returns the fingerprint in the byte order btcutil/psbt
// expects for Bip32Derivation.MasterKeyFingerprint.
func (f Fingerprint) LittleEndianUint32() uint32 {
	return binary.LittleEndian.Uint32(f[:])
}

// ParseFingerprint decodes 8 hex characters.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(fp) {
		return fp, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"fingerprint": s,
		})
	}
	copy(fp[:], raw)
	return fp, nil
}

// ExtendedKey is a BIP32 key bound to the path that produced it.
type ExtendedKey struct {
	key  *hdkeychain.ExtendedKey
	path Path
}

// NewMasterKey validates mnemonic, stretches it with passphrase into a
// seed, and returns the master extended key for net. The seed is zeroed
// before returning.
func NewMasterKey(mnemonic, passphrase string, net *chaincfg.Params) (*ExtendedKey, error) {
	seed, err := MnemonicToSeed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	defer keycrypt.Wipe(seed)

	return NewMasterKeyFromSeed(seed, net)
}

// NewMasterKeyFromSeed builds the master key from a BIP39 seed.
func NewMasterKeyFromSeed(seed []byte, net *chaincfg.Params) (*ExtendedKey, error) {
	key, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		if errors.Is(err, hdkeychain.ErrUnusableSeed) {
			return nil, walleterr.WithCause(walleterr.ErrDerivationOverflow, err)
		}
		return nil, walleterr.Wrap(err, "creating master key")
	}
	return &ExtendedKey{key: key, path: Path{}}, nil
}

// ParseExtendedKey reads a serialized xprv/xpub/tprv/tpub. The key is
// checked against net and tagged with path.
func ParseExtendedKey(s string, path Path, net *chaincfg.Params) (*ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(s)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrInvalidDescriptor, err)
	}
	if !key.IsForNet(net) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidNetwork, map[string]string{
			"network": NetworkName(net),
			"reason":  "extended key belongs to another network",
		})
	}
	if int(key.Depth()) != len(path) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidPath, map[string]string{
			"path":   path.String(),
			"depth":  strconv.Itoa(int(key.Depth())),
			"reason": "key depth does not match origin path",
		})
	}
	return &ExtendedKey{key: key, path: path}, nil
}

// DerivePrivate walks path from master. Purpose, coin type and account
// levels must be hardened. Calling it twice with the same inputs yields
// identical keys.
func DerivePrivate(master *ExtendedKey, path Path) (*ExtendedKey, error) {
	if err := path.validateAccountLevels(); err != nil {
		return nil, err
	}
	if len(master.path) != 0 {
		return nil, invalidPath(path.String(), "derivation must start at the master key")
	}
	return DeriveChild(master, path)
}

// DeriveChild walks the relative path rel from parent. A hardened step on
// a public parent fails with INVALID_PATH.
func DeriveChild(parent *ExtendedKey, rel Path) (*ExtendedKey, error) {
	full := parent.path.Extend(rel...)
	cur := parent.key

	for i, step := range rel {
		if step.Index >= hdkeychain.HardenedKeyStart {
			return nil, overflow(full, i, step)
		}
		if step.Hardened && !cur.IsPrivate() {
			return nil, walleterr.WithDetails(walleterr.ErrInvalidPath, map[string]string{
				"path":   full.String(),
				"step":   step.String(),
				"reason": "hardened derivation requires a private key",
			})
		}

		next, err := cur.Derive(step.ChildIndex())
		if cur != parent.key {
			cur.Zero()
		}
		if err != nil {
			switch {
			case errors.Is(err, hdkeychain.ErrDeriveHardFromPublic):
				return nil, walleterr.WithCause(walleterr.ErrInvalidPath, err)
			case errors.Is(err, hdkeychain.ErrInvalidChild),
				errors.Is(err, hdkeychain.ErrDeriveBeyondMaxDepth):
				return nil, walleterr.WithCause(overflow(full, i, step), err)
			default:
				return nil, walleterr.Wrap(err, "deriving %s", full.String())
			}
		}
		cur = next
	}

	if cur == parent.key {
		return &ExtendedKey{key: parent.key, path: full}, nil
	}
	return &ExtendedKey{key: cur, path: full}, nil
}

// DerivePublic walks rel from the public half of key. Any hardened step
// fails with INVALID_PATH.
func DerivePublic(key *ExtendedKey, rel Path) (*ExtendedKey, error) {
	pub := key
	if key.IsPrivate() {
		var err error
		if pub, err = key.Neuter(); err != nil {
			return nil, err
		}
	}
	return DeriveChild(pub, rel)
}

func overflow(path Path, level int, step Step) error {
	return walleterr.WithDetails(walleterr.ErrDerivationOverflow, map[string]string{
		"path":  path.String(),
		"level": strconv.Itoa(level),
		"index": strconv.FormatUint(uint64(step.Index), 10),
	})
}

// Path returns the absolute path of the key.
func (k *ExtendedKey) Path() Path {
	return k.path.Extend()
}

// IsPrivate reports whether the key holds private material.
func (k *ExtendedKey) IsPrivate() bool {
	return k.key.IsPrivate()
}

// Depth returns the BIP32 depth.
func (k *ExtendedKey) Depth() uint8 {
	return k.key.Depth()
}

// ParentFingerprint returns the parent fingerprint recorded in the key.
func (k *ExtendedKey) ParentFingerprint() uint32 {
	return k.key.ParentFingerprint()
}

// ChainCode returns a copy of the chain code.
func (k *ExtendedKey) ChainCode() []byte {
	return append([]byte(nil), k.key.ChainCode()...)
}

// String serializes the key (xprv/tprv when private, xpub/tpub otherwise).
func (k *ExtendedKey) String() string {
	return k.key.String()
}

// Neuter returns the public half of the key.
func (k *ExtendedKey) Neuter() (*ExtendedKey, error) {
	pub, err := k.key.Neuter()
	if err != nil {
		return nil, walleterr.Wrap(err, "neutering key")
	}
	return &ExtendedKey{key: pub, path: k.Path()}, nil
}

// PublicKey returns the secp256k1 public key.
func (k *ExtendedKey) PublicKey() (*btcec.PublicKey, error) {
	pub, err := k.key.ECPubKey()
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrMissingKey, err)
	}
	return pub, nil
}

// PrivateKey returns the secp256k1 private key. Callers must Zero it
// when done.
func (k *ExtendedKey) PrivateKey() (*btcec.PrivateKey, error) {
	priv, err := k.key.ECPrivKey()
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrMissingKey, err)
	}
	return priv, nil
}

// Zero wipes private material from the key.
func (k *ExtendedKey) Zero() {
	k.key.Zero()
}

// Fingerprint returns the first 4 bytes of HASH160 of the compressed
// public key.
func (k *ExtendedKey) Fingerprint() (Fingerprint, error) {
	var fp Fingerprint
	pub, err := k.PublicKey()
	if err != nil {
		return fp, err
	}
	copy(fp[:], btcutil.Hash160(pub.SerializeCompressed())[:4])
	return fp, nil
}
