package wallet

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Branches of a BIP84 account.
const (
	ReceiveBranch uint32 = 0
	ChangeBranch  uint32 = 1
)

// PurposeBIP84 is the purpose level for native segwit (P2WPKH) accounts.
const PurposeBIP84 uint32 = 84

// accountDepth is the number of leading path levels that must be hardened:
// purpose, coin type and account.
const accountDepth = 3

// Step is one level of a BIP32 path. Index excludes the hardened offset.
type Step struct {
	Index    uint32
	Hardened bool
}

// ChildIndex returns the index passed to BIP32 child derivation.
func (s Step) ChildIndex() uint32 {
	if s.Hardened {
		return s.Index + hdkeychain.HardenedKeyStart
	}
	return s.Index
}

func (s Step) String() string {
	str := strconv.FormatUint(uint64(s.Index), 10)
	if s.Hardened {
		str += "'"
	}
	return str
}

// Path is an ordered sequence of derivation steps from the master key.
type Path []Step

// ParsePath parses "m/84'/1'/0'/0". Both ' and h mark a hardened step.
// The leading "m" is optional.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidPath(s, "empty path")
	}

	parts := strings.Split(s, "/")
	if parts[0] == "m" || parts[0] == "M" {
		parts = parts[1:]
	}

	path := make(Path, 0, len(parts))
	for _, part := range parts {
		step := Step{}
		switch {
		case strings.HasSuffix(part, "'"), strings.HasSuffix(part, "h"), strings.HasSuffix(part, "H"):
			step.Hardened = true
			part = part[:len(part)-1]
		}

		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, invalidPath(s, "bad index "+strconv.Quote(part))
		}
		if idx >= hdkeychain.HardenedKeyStart {
			return nil, walleterr.WithDetails(walleterr.ErrDerivationOverflow, map[string]string{
				"path":  s,
				"index": part,
			})
		}
		step.Index = uint32(idx)
		path = append(path, step)
	}

	return path, nil
}

// MustParsePath is ParsePath for constant paths. It panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path as "m/84'/1'/0'/0".
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, step := range p {
		b.WriteByte('/')
		b.WriteString(step.String())
	}
	return b.String()
}

// Relative renders the path without the leading "m/".
func (p Path) Relative() string {
	return strings.TrimPrefix(strings.TrimPrefix(p.String(), "m"), "/")
}

// Child returns a copy of p extended by one non-hardened step.
func (p Path) Child(index uint32) Path {
	return p.Extend(Step{Index: index})
}

// Extend returns a copy of p with steps appended.
func (p Path) Extend(steps ...Step) Path {
	out := make(Path, 0, len(p)+len(steps))
	out = append(out, p...)
	return append(out, steps...)
}

// Equal reports whether both paths have the same steps.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p starts with prefix.
func (p Path) HasPrefix(prefix Path) bool {
	return len(p) >= len(prefix) && p[:len(prefix)].Equal(prefix)
}

// ChildIndexes returns the BIP32 child numbers, hardened offset applied.
func (p Path) ChildIndexes() []uint32 {
	out := make([]uint32, len(p))
	for i, step := range p {
		out[i] = step.ChildIndex()
	}
	return out
}

// validateAccountLevels checks that purpose, coin type and account are
// hardened.
func (p Path) validateAccountLevels() error {
	for i := 0; i < len(p) && i < accountDepth; i++ {
		if !p[i].Hardened {
			return walleterr.WithDetails(walleterr.ErrInvalidPath, map[string]string{
				"path":   p.String(),
				"level":  strconv.Itoa(i + 1),
				"reason": "purpose, coin type and account levels must be hardened",
			})
		}
	}
	return nil
}

// AccountPath returns m/84'/coin'/account'.
func AccountPath(coinType, account uint32) Path {
	return Path{
		{Index: PurposeBIP84, Hardened: true},
		{Index: coinType, Hardened: true},
		{Index: account, Hardened: true},
	}
}

func invalidPath(path, reason string) error {
	return walleterr.WithDetails(walleterr.ErrInvalidPath, map[string]string{
		"path":   path,
		"reason": reason,
	})
}
