// Package chaintest provides an in-memory chain.Source for tests.
package chaintest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/chain"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Fake is a tiny chain: outputs keyed by script, broadcasts applied to
// the mempool.
type Fake struct {
	mu      sync.Mutex
	outputs map[string][]chain.Output
	seq     uint64

	// FetchErr, when set, fails every FetchOutputs call.
	FetchErr error
	// BroadcastErr, when set, fails every Broadcast call.
	BroadcastErr error
	// BroadcastTxID, when set, is returned by accepted broadcasts in place
	// of the computed txid.
	BroadcastTxID chainhash.Hash

	FetchCalls int
	Broadcasts [][]byte
}

// New returns an empty chain.
func New() *Fake {
	return &Fake{outputs: make(map[string][]chain.Output)}
}

// Pay creates an output of value paying to script at height.
func (f *Fake) Pay(script []byte, value int64, height int32) wire.OutPoint {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], f.seq)
	op := wire.OutPoint{Hash: chainhash.Hash(sha256.Sum256(buf[:])), Index: 0}
	f.outputs[string(script)] = append(f.outputs[string(script)], chain.Output{
		OutPoint: op,
		Value:    value,
		Height:   height,
		PkScript: append([]byte(nil), script...),
	})
	return op
}

// Spend marks op spent.
func (f *Fake) Spend(op wire.OutPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spendLocked(op)
}

func (f *Fake) spendLocked(op wire.OutPoint) {
	for script, outs := range f.outputs {
		for i := range outs {
			if outs[i].OutPoint == op {
				f.outputs[script][i].Spent = true
			}
		}
	}
}

// Confirm sets the height of every unconfirmed output.
func (f *Fake) Confirm(height int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for script, outs := range f.outputs {
		for i := range outs {
			if outs[i].Height == 0 {
				f.outputs[script][i].Height = height
			}
		}
	}
}

// FetchOutputs implements chain.Source.
func (f *Fake) FetchOutputs(ctx context.Context, scripts [][]byte) ([]chain.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchCalls++
	if err := ctx.Err(); err != nil {
		return nil, walleterr.WithCause(walleterr.ErrChainUnavailable, err)
	}
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []chain.Output
	for _, s := range scripts {
		out = append(out, f.outputs[string(s)]...)
	}
	chain.SortOutputs(out)
	return out, nil
}

// Broadcast implements chain.Source. Accepted transactions spend their
// inputs and add their outputs unconfirmed.
func (f *Fake) Broadcast(ctx context.Context, rawTx []byte) (chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Broadcasts = append(f.Broadcasts, append([]byte(nil), rawTx...))
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, walleterr.WithCause(walleterr.ErrChainUnavailable, err)
	}
	if f.BroadcastErr != nil {
		return chainhash.Hash{}, f.BroadcastErr
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return chainhash.Hash{}, walleterr.WithDetails(walleterr.ErrBroadcastRejected, map[string]string{
			"reason": "TX decode failed",
		})
	}
	txid := tx.TxHash()
	for _, in := range tx.TxIn {
		f.spendLocked(in.PreviousOutPoint)
	}
	for i, out := range tx.TxOut {
		f.outputs[string(out.PkScript)] = append(f.outputs[string(out.PkScript)], chain.Output{
			OutPoint: wire.OutPoint{Hash: txid, Index: uint32(i)}, //nolint:gosec // output count is small
			Value:    out.Value,
			PkScript: append([]byte(nil), out.PkScript...),
		})
	}
	if f.BroadcastTxID != (chainhash.Hash{}) {
		return f.BroadcastTxID, nil
	}
	return txid, nil
}

var _ chain.Source = (*Fake)(nil)
