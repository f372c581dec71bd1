// Package utxostore tracks the wallet's unspent outputs. It discovers
// addresses with a gap-limit scan, persists its state through a
// storage.KeyValueStore and guards outpoints while a spend is being built.
package utxostore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// UTXO is an unspent output owned by the wallet.
type UTXO struct {
	OutPoint wire.OutPoint
	Value    int64
	Branch   uint32
	Index    uint32
	PkScript []byte
	// Height is the confirming block height, 0 while unconfirmed.
	Height int32
}

// Confirmed reports whether the output is in a block.
func (u UTXO) Confirmed() bool {
	return u.Height > 0
}

// IsChange reports whether the output pays to the change branch.
func (u UTXO) IsChange() bool {
	return u.Branch == wallet.ChangeBranch
}

// Balance splits the wallet balance by confirmation state. Outpoints
// spent by a pending transaction are reported separately.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
	Pending     int64 `json:"pending"`
}

// Total returns the spendable total.
func (b Balance) Total(includeUnconfirmed bool) int64 {
	if includeUnconfirmed {
		return b.Confirmed + b.Unconfirmed
	}
	return b.Confirmed
}

// Frontier is the scan state of one branch.
type Frontier struct {
	// Next is the next index NextAddress hands out.
	Next uint32 `json:"next"`
	// HighestUsed is the highest index with on-chain history, -1 if none.
	HighestUsed int64 `json:"highest_used"`
}

func newFrontier() Frontier {
	return Frontier{HighestUsed: -1}
}

// scanEnd is the exclusive upper bound of a scan over this branch.
func (f Frontier) scanEnd(gapLimit uint32) uint32 {
	end := uint32(f.HighestUsed+1) + gapLimit //nolint:gosec // HighestUsed >= -1
	if f.Next > end {
		end = f.Next
	}
	return end
}

// Storage keys.
const (
	keyUTXOs    = "utxos"
	keyFrontier = "frontier"
	keyPending  = "pending"
)

const recordVersion = 1

type utxoRecord struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Branch uint32 `json:"branch"`
	Index  uint32 `json:"index"`
	Script string `json:"script"`
	Height int32  `json:"height"`
}

type utxoFile struct {
	Version int          `json:"version"`
	UTXOs   []utxoRecord `json:"utxos"`
}

type frontierFile struct {
	Version int      `json:"version"`
	Receive Frontier `json:"receive"`
	Change  Frontier `json:"change"`
}

type pendingRecord struct {
	TxID      string   `json:"txid"`
	OutPoints []string `json:"outpoints"`
}

type pendingFile struct {
	Version int             `json:"version"`
	Pending []pendingRecord `json:"pending"`
}

func encodeUTXOs(utxos []UTXO) ([]byte, error) {
	f := utxoFile{Version: recordVersion, UTXOs: make([]utxoRecord, len(utxos))}
	for i, u := range utxos {
		f.UTXOs[i] = utxoRecord{
			TxID:   u.OutPoint.Hash.String(),
			Vout:   u.OutPoint.Index,
			Value:  u.Value,
			Branch: u.Branch,
			Index:  u.Index,
			Script: hex.EncodeToString(u.PkScript),
			Height: u.Height,
		}
	}
	return json.Marshal(f)
}

func decodeUTXOs(data []byte) ([]UTXO, error) {
	var f utxoFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding utxos: %w", err)
	}
	out := make([]UTXO, 0, len(f.UTXOs))
	for _, r := range f.UTXOs {
		h, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			return nil, fmt.Errorf("decoding utxo txid: %w", err)
		}
		script, err := hex.DecodeString(r.Script)
		if err != nil {
			return nil, fmt.Errorf("decoding utxo script: %w", err)
		}
		out = append(out, UTXO{
			OutPoint: wire.OutPoint{Hash: *h, Index: r.Vout},
			Value:    r.Value,
			Branch:   r.Branch,
			Index:    r.Index,
			PkScript: script,
			Height:   r.Height,
		})
	}
	return out, nil
}

func encodePending(pending map[chainhash.Hash][]wire.OutPoint) ([]byte, error) {
	f := pendingFile{Version: recordVersion, Pending: make([]pendingRecord, 0, len(pending))}
	for txid, ops := range pending {
		rec := pendingRecord{TxID: txid.String(), OutPoints: make([]string, len(ops))}
		for i, op := range ops {
			rec.OutPoints[i] = op.String()
		}
		f.Pending = append(f.Pending, rec)
	}
	return json.Marshal(f)
}

func decodePending(data []byte) (map[chainhash.Hash][]wire.OutPoint, error) {
	var f pendingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding pending: %w", err)
	}
	out := make(map[chainhash.Hash][]wire.OutPoint, len(f.Pending))
	for _, rec := range f.Pending {
		txid, err := chainhash.NewHashFromStr(rec.TxID)
		if err != nil {
			return nil, fmt.Errorf("decoding pending txid: %w", err)
		}
		ops := make([]wire.OutPoint, 0, len(rec.OutPoints))
		for _, s := range rec.OutPoints {
			op, err := ParseOutPoint(s)
			if err != nil {
				return nil, fmt.Errorf("decoding pending outpoint: %w", err)
			}
			ops = append(ops, op)
		}
		out[*txid] = ops
	}
	return out, nil
}

// ParseOutPoint reads "txid:vout".
func ParseOutPoint(s string) (wire.OutPoint, error) {
	txid, vout, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return wire.OutPoint{}, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"outpoint": s,
			"reason":   "expected txid:vout",
		})
	}
	h, err := chainhash.NewHashFromStr(txid)
	if err != nil || len(txid) != 2*chainhash.HashSize {
		return wire.OutPoint{}, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"outpoint": s,
			"reason":   "bad txid",
		})
	}
	idx, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return wire.OutPoint{}, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"outpoint": s,
			"reason":   "bad output index",
		})
	}
	return wire.OutPoint{Hash: *h, Index: uint32(idx)}, nil
}
