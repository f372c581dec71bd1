// Package chain defines the chain-data source used to sync and broadcast,
// plus the retry, rate limiting and circuit breaking shared by its
// implementations.
package chain

import (
	"context"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Output is one transaction output paying to a watched script, as seen by
// the chain source.
type Output struct {
	OutPoint wire.OutPoint
	Value    int64
	// Height is the confirming block height, 0 while unconfirmed.
	Height   int32
	Spent    bool
	PkScript []byte
}

// Confirmed reports whether the output is in a block.
func (o Output) Confirmed() bool {
	return o.Height > 0
}

// Source is the remote chain-data collaborator.
type Source interface {
	// FetchOutputs returns every output, spent or not, ever paid to one of
	// scripts. An empty result means the scripts have no history.
	FetchOutputs(ctx context.Context, scripts [][]byte) ([]Output, error)

	// Broadcast submits a serialized transaction. A rejection is reported
	// as BROADCAST_REJECTED with the reason and is never retried.
	Broadcast(ctx context.Context, rawTx []byte) (chainhash.Hash, error)
}

// SortOutputs orders outputs by outpoint.
func SortOutputs(outs []Output) {
	sort.Slice(outs, func(i, j int) bool {
		return LessOutPoint(outs[i].OutPoint, outs[j].OutPoint)
	})
}

// LessOutPoint orders outpoints by txid bytes then index.
func LessOutPoint(a, b wire.OutPoint) bool {
	if a.Hash != b.Hash {
		for i := chainhash.HashSize - 1; i >= 0; i-- {
			if a.Hash[i] != b.Hash[i] {
				return a.Hash[i] < b.Hash[i]
			}
		}
	}
	return a.Index < b.Index
}
