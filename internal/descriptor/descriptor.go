// Package descriptor builds output script descriptors over a BIP84
// account key and derives the scripts and addresses they describe.
package descriptor

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Type is the script template of a descriptor.
type Type string

// TypeWPKH is pay-to-witness-public-key-hash.
const TypeWPKH Type = "wpkh"

// Origin records where the descriptor key came from.
type Origin struct {
	Fingerprint wallet.Fingerprint
	Path        wallet.Path
}

func (o Origin) String() string {
	if len(o.Path) == 0 {
		return o.Fingerprint.String()
	}
	return o.Fingerprint.String() + "/" + o.Path.Relative()
}

// Descriptor is a ranged wpkh descriptor over one branch of an account
// key: wpkh([fp/84'/1'/0']tpub.../0/*).
type Descriptor struct {
	Type   Type
	Origin Origin
	Branch uint32

	key     *wallet.ExtendedKey
	pubText string
	net     *chaincfg.Params
}

// Build creates a descriptor for branch under accountKey. accountKey must
// sit at origin.Path.
func Build(accountKey *wallet.ExtendedKey, origin Origin, branch uint32, net *chaincfg.Params) (*Descriptor, error) {
	if accountKey == nil {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"reason": "missing account key",
		})
	}
	if branch != wallet.ReceiveBranch && branch != wallet.ChangeBranch {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidPath, map[string]string{
			"branch": strconv.FormatUint(uint64(branch), 10),
			"reason": "branch must be 0 (receive) or 1 (change)",
		})
	}
	if !accountKey.Path().Equal(origin.Path) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"origin": origin.Path.String(),
			"key":    accountKey.Path().String(),
			"reason": "key path does not match origin",
		})
	}
	// Neutering also fills the key's cached public key, so concurrent
	// derivations afterwards only read it.
	pub, err := accountKey.Neuter()
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrInvalidDescriptor, err)
	}
	return &Descriptor{
		Type:    TypeWPKH,
		Origin:  origin,
		Branch:  branch,
		key:     accountKey,
		pubText: pub.String(),
		net:     net,
	}, nil
}

// Network returns the chain parameters the descriptor was built for.
func (d *Descriptor) Network() *chaincfg.Params {
	return d.net
}

// HasPrivate reports whether the descriptor can sign.
func (d *Descriptor) HasPrivate() bool {
	return d.key.IsPrivate()
}

func (d *Descriptor) body(keyText string) string {
	return fmt.Sprintf("%s([%s]%s/%d/*)", d.Type, d.Origin, keyText, d.Branch)
}

// String renders the descriptor with checksum, using the private key when
// the descriptor holds one.
func (d *Descriptor) String() string {
	return withChecksum(d.body(d.key.String()))
}

// Public renders the descriptor with checksum over the account xpub.
func (d *Descriptor) Public() string {
	return withChecksum(d.body(d.pubText))
}

// Neuter returns a watch-only copy of the descriptor.
func (d *Descriptor) Neuter() (*Descriptor, error) {
	pub, err := d.key.Neuter()
	if err != nil {
		return nil, err
	}
	return &Descriptor{Type: d.Type, Origin: d.Origin, Branch: d.Branch, key: pub, pubText: d.pubText, net: d.net}, nil
}

// ChildPath returns the full derivation path of the key at index.
func (d *Descriptor) ChildPath(index uint32) wallet.Path {
	return d.Origin.Path.Extend(wallet.Step{Index: d.Branch}, wallet.Step{Index: index})
}

// PublicKeyAt derives the public key at index.
func (d *Descriptor) PublicKeyAt(index uint32) (*wallet.ExtendedKey, error) {
	return wallet.DerivePublic(d.key, wallet.Path{{Index: d.Branch}, {Index: index}})
}

// PrivateKeyAt derives the private key at index. Callers must Zero it.
func (d *Descriptor) PrivateKeyAt(index uint32) (*wallet.ExtendedKey, error) {
	if !d.key.IsPrivate() {
		return nil, walleterr.WithDetails(walleterr.ErrMissingKey, map[string]string{
			"path": d.ChildPath(index).String(),
		})
	}
	return wallet.DeriveChild(d.key, wallet.Path{{Index: d.Branch}, {Index: index}})
}

// AddressAt returns the P2WPKH address at index.
func (d *Descriptor) AddressAt(index uint32) (*btcutil.AddressWitnessPubKeyHash, error) {
	child, err := d.PublicKeyAt(index)
	if err != nil {
		return nil, err
	}
	pub, err := child.PublicKey()
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), d.net)
	if err != nil {
		return nil, walleterr.Wrap(err, "encoding address at %s", d.ChildPath(index))
	}
	return addr, nil
}

// ScriptAt returns the P2WPKH pkScript at index.
func (d *Descriptor) ScriptAt(index uint32) ([]byte, error) {
	addr, err := d.AddressAt(index)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// Zero wipes private key material held by the descriptor.
func (d *Descriptor) Zero() {
	d.key.Zero()
}

//nolint:gochecknoglobals // compiled once
var descriptorRegex = regexp.MustCompile(
	`^(wpkh)\(\[([0-9a-fA-F]{8})((?:/[0-9]+['hH]?)*)\]([1-9A-HJ-NP-Za-km-z]+)/([0-9]+)/\*\)$`)

// Parse reads the textual form produced by String or Public. A checksum,
// when present, must match.
func Parse(text string, net *chaincfg.Params) (*Descriptor, error) {
	body, _, err := SplitChecksum(text)
	if err != nil {
		return nil, err
	}

	m := descriptorRegex.FindStringSubmatch(body)
	if m == nil {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"reason": "expected wpkh([fingerprint/path]key/branch/*)",
		})
	}

	fp, err := wallet.ParseFingerprint(m[2])
	if err != nil {
		return nil, err
	}
	path, err := wallet.ParsePath("m" + m[3])
	if err != nil {
		return nil, err
	}
	key, err := wallet.ParseExtendedKey(m[4], path, net)
	if err != nil {
		return nil, err
	}
	branch, err := strconv.ParseUint(m[5], 10, 32)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrInvalidDescriptor, err)
	}

	return Build(key, Origin{Fingerprint: fp, Path: path}, uint32(branch), net)
}

func withChecksum(body string) string {
	s, err := AddChecksum(body)
	if err != nil {
		return body
	}
	return s
}
