package descriptor

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// WalletID identifies a wallet by its public descriptors and network.
type WalletID string

// WalletIdentity hashes the network name and both public descriptors.
// The same descriptors on different networks yield different IDs.
func WalletIdentity(receive, change *Descriptor, net *chaincfg.Params) WalletID {
	h := sha256.New()
	h.Write([]byte(wallet.NetworkName(net)))
	h.Write([]byte{0})
	h.Write([]byte(receive.Public()))
	h.Write([]byte{0})
	h.Write([]byte(change.Public()))
	return WalletID(hex.EncodeToString(h.Sum(nil)))
}

// Short returns the first 8 characters, for display.
func (id WalletID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}

// Pair holds the receive and change descriptors of one account.
type Pair struct {
	Receive *Descriptor
	Change  *Descriptor
}

// NewPair derives the BIP84 account key for account from master and builds
// both descriptors.
func NewPair(master *wallet.ExtendedKey, account uint32, net *chaincfg.Params) (*Pair, error) {
	fp, err := master.Fingerprint()
	if err != nil {
		return nil, err
	}
	path := wallet.AccountPath(wallet.CoinType(net), account)
	accountKey, err := wallet.DerivePrivate(master, path)
	if err != nil {
		return nil, err
	}
	origin := Origin{Fingerprint: fp, Path: path}

	receive, err := Build(accountKey, origin, wallet.ReceiveBranch, net)
	if err != nil {
		return nil, err
	}
	change, err := Build(accountKey, origin, wallet.ChangeBranch, net)
	if err != nil {
		return nil, err
	}
	return &Pair{Receive: receive, Change: change}, nil
}

// ParsePair reads both descriptors and checks they share one account.
func ParsePair(receiveText, changeText string, net *chaincfg.Params) (*Pair, error) {
	receive, err := Parse(receiveText, net)
	if err != nil {
		return nil, err
	}
	change, err := Parse(changeText, net)
	if err != nil {
		return nil, err
	}
	if receive.Branch != wallet.ReceiveBranch || change.Branch != wallet.ChangeBranch {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"reason": "expected receive branch 0 and change branch 1",
		})
	}
	if receive.Origin.Fingerprint != change.Origin.Fingerprint || !receive.Origin.Path.Equal(change.Origin.Path) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"reason": "receive and change descriptors belong to different accounts",
		})
	}
	return &Pair{Receive: receive, Change: change}, nil
}

// Branch returns the descriptor for branch.
func (p *Pair) Branch(branch uint32) *Descriptor {
	if branch == wallet.ChangeBranch {
		return p.Change
	}
	return p.Receive
}

// ID returns the wallet identity of the pair.
func (p *Pair) ID() WalletID {
	return WalletIdentity(p.Receive, p.Change, p.Receive.Network())
}

// Neuter returns a watch-only copy of the pair.
func (p *Pair) Neuter() (*Pair, error) {
	receive, err := p.Receive.Neuter()
	if err != nil {
		return nil, err
	}
	change, err := p.Change.Neuter()
	if err != nil {
		return nil, err
	}
	return &Pair{Receive: receive, Change: change}, nil
}

// Zero wipes the shared account key.
func (p *Pair) Zero() {
	p.Receive.Zero()
	p.Change.Zero()
}
