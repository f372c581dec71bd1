// Package txbuilder assembles, signs and broadcasts one spend at a time.
//
// A Builder moves through Empty, InputsSelected, OutputsSet, Signed and
// Broadcast. Only an Empty builder accepts a new selection, which keeps a
// wallet to one in-flight spend.
package txbuilder

import (
	"bytes"
	"context"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/coinselect"
	"github.com/mrz1836/satchel/internal/descriptor"
	"github.com/mrz1836/satchel/internal/utxostore"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// State is a step of the build.
type State int

// Build states.
const (
	StateEmpty State = iota
	StateInputsSelected
	StateOutputsSet
	StateSigned
	StateBroadcast
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInputsSelected:
		return "inputs-selected"
	case StateOutputsSet:
		return "outputs-set"
	case StateSigned:
		return "signed"
	case StateBroadcast:
		return "broadcast"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Ledger is the UTXO bookkeeping a build needs.
type Ledger interface {
	Lookup(op wire.OutPoint) (utxostore.UTXO, bool)
	Release(lease utxostore.Lease)
	MarkPending(txid chainhash.Hash, lease utxostore.Lease) error
}

// KeySource yields the descriptor of each branch. A *descriptor.Pair
// holding private keys satisfies it.
type KeySource interface {
	Branch(branch uint32) *descriptor.Descriptor
}

// Builder holds one spend.
type Builder struct {
	mu sync.Mutex

	net    *chaincfg.Params
	ledger Ledger

	state  State
	sel    *coinselect.Selection
	lease  utxostore.Lease
	inputs []utxostore.UTXO
	packet *psbt.Packet
	final  *wire.MsgTx
}

// New returns an Empty builder for net.
func New(net *chaincfg.Params, ledger Ledger) *Builder {
	return &Builder{net: net, ledger: ledger}
}

// State returns the current state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) require(want State) error {
	if b.state == want {
		return nil
	}
	return walleterr.WithDetails(walleterr.ErrBuildInProgress, map[string]string{
		"state":    b.state.String(),
		"expected": want.String(),
	})
}

// ApplySelection takes ownership of lease and the selected inputs.
func (b *Builder) ApplySelection(sel *coinselect.Selection, lease utxostore.Lease) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.require(StateEmpty); err != nil {
		return err
	}
	if sel == nil || len(sel.Inputs) == 0 {
		return walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"reason": "empty selection",
		})
	}

	leased := make(map[wire.OutPoint]bool, len(lease.OutPoints))
	for _, op := range lease.OutPoints {
		leased[op] = true
	}
	inputs := make([]utxostore.UTXO, 0, len(sel.Inputs))
	for _, c := range sel.Inputs {
		if !leased[c.OutPoint] {
			return walleterr.WithDetails(walleterr.ErrOutpointLocked, map[string]string{
				"outpoint": c.OutPoint.String(),
				"reason":   "not covered by lease",
			})
		}
		u, ok := b.ledger.Lookup(c.OutPoint)
		if !ok {
			return walleterr.WithDetails(walleterr.ErrNotFound, map[string]string{
				"outpoint": c.OutPoint.String(),
			})
		}
		inputs = append(inputs, u)
	}

	b.sel = sel
	b.lease = lease
	b.inputs = inputs
	b.state = StateInputsSelected
	return nil
}

// SetOutputs pays amount to recipient and, when the selection left
// change, the change to changeScript.
func (b *Builder) SetOutputs(recipient string, amount int64, changeScript []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.require(StateInputsSelected); err != nil {
		return err
	}
	if amount != b.sel.Target {
		return walleterr.WithDetails(walleterr.ErrInvalidAmount, map[string]string{
			"amount":   strconv.FormatInt(amount, 10),
			"selected": strconv.FormatInt(b.sel.Target, 10),
			"reason":   "amount differs from the selection target",
		})
	}
	pkScript, err := RecipientScript(recipient, b.net)
	if err != nil {
		return err
	}
	if b.sel.HasChange() && len(changeScript) == 0 {
		return walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"reason": "change output needs a script",
		})
	}

	tx := wire.NewMsgTx(2)
	for _, u := range b.inputs {
		in := wire.NewTxIn(&u.OutPoint, nil, nil)
		in.Sequence = wire.MaxTxInSequenceNum - 2
		tx.AddTxIn(in)
	}
	tx.AddTxOut(wire.NewTxOut(amount, pkScript))
	if b.sel.HasChange() {
		tx.AddTxOut(wire.NewTxOut(b.sel.Change, changeScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return walleterr.Wrap(err, "creating psbt")
	}
	for i, u := range b.inputs {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(u.Value, u.PkScript)
		packet.Inputs[i].SighashType = txscript.SigHashAll
	}

	b.packet = packet
	b.state = StateOutputsSet
	return nil
}

// RecipientScript decodes a destination address for net.
func RecipientScript(recipient string, net *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(recipient, net)
	if err != nil {
		return nil, walleterr.WithDetails(walleterr.WithCause(walleterr.ErrInvalidRecipient, err),
			map[string]string{"address": recipient})
	}
	if !addr.IsForNet(net) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidRecipient, map[string]string{
			"address": recipient,
			"reason":  "address is for another network",
		})
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, walleterr.WithDetails(walleterr.WithCause(walleterr.ErrInvalidRecipient, err),
			map[string]string{"address": recipient})
	}
	return script, nil
}

// Finalize combines the signatures and checks every input script against
// the output it spends.
func (b *Builder) Finalize() (*wire.MsgTx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalizeLocked()
}

func (b *Builder) finalizeLocked() (*wire.MsgTx, error) {
	if err := b.require(StateSigned); err != nil {
		return nil, err
	}
	if b.final != nil {
		return b.final, nil
	}

	if err := psbt.MaybeFinalizeAll(b.packet); err != nil {
		return nil, walleterr.WithCause(walleterr.ErrSignatureFailed, err)
	}
	tx, err := psbt.Extract(b.packet)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrSignatureFailed, err)
	}
	if err := b.validate(tx); err != nil {
		return nil, err
	}
	b.final = tx
	return tx, nil
}

func (b *Builder) validate(tx *wire.MsgTx) error {
	fetcher := b.prevOutFetcher()
	hashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, u := range b.inputs {
		vm, err := txscript.NewEngine(u.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, hashes, u.Value, fetcher)
		if err == nil {
			err = vm.Execute()
		}
		if err != nil {
			return walleterr.WithDetails(walleterr.WithCause(walleterr.ErrScriptValidation, err),
				map[string]string{"input": strconv.Itoa(i), "outpoint": u.OutPoint.String()})
		}
	}
	return nil
}

func (b *Builder) prevOutFetcher() *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, u := range b.inputs {
		fetcher.AddPrevOut(u.OutPoint, wire.NewTxOut(u.Value, u.PkScript))
	}
	return fetcher
}

// Broadcast relays the signed transaction. On success the inputs become
// pending and the builder moves to Broadcast. A rejection also leaves them
// pending, returns the builder to Empty and is never retried. When the
// source is unreachable the builder stays Signed so the call can be
// repeated or the build aborted.
//
// A non-zero txid means the transaction was relayed. It can come with an
// error when the pending record could not be saved; the inputs are still
// excluded for the life of the tracker.
func (b *Builder) Broadcast(ctx context.Context, src chain.Source) (chainhash.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.finalizeLocked()
	if err != nil {
		return chainhash.Hash{}, err
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return chainhash.Hash{}, walleterr.Wrap(err, "serializing transaction")
	}

	txid := tx.TxHash()
	got, err := src.Broadcast(ctx, buf.Bytes())
	switch {
	case err == nil:
	case walleterr.Is(err, walleterr.ErrBroadcastRejected):
		markErr := b.ledger.MarkPending(txid, b.lease)
		b.resetLocked()
		if markErr != nil {
			return chainhash.Hash{}, walleterr.WithDetails(markErr, map[string]string{
				"txid":      txid.String(),
				"broadcast": err.Error(),
			})
		}
		return chainhash.Hash{}, walleterr.WithDetails(err, map[string]string{"txid": txid.String()})
	default:
		return chainhash.Hash{}, err
	}

	// The source accepted the transaction. Its inputs are spent from here on
	// whatever else fails.
	b.state = StateBroadcast
	details := map[string]string{}
	if got != txid {
		details["returned"] = got.String()
	}
	if err := b.ledger.MarkPending(txid, b.lease); err != nil {
		details["txid"] = txid.String()
		details["warning"] = "transaction relayed but its pending record was not saved"
		return txid, walleterr.WithDetails(err, details)
	}
	return txid, nil
}

// Abort releases the lease and returns to Empty. After a broadcast it
// only resets.
func (b *Builder) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateEmpty && b.state != StateBroadcast {
		b.ledger.Release(b.lease)
	}
	b.resetLocked()
}

// Reset returns a broadcast builder to Empty.
func (b *Builder) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.require(StateBroadcast); err != nil {
		return err
	}
	b.resetLocked()
	return nil
}

func (b *Builder) resetLocked() {
	b.state = StateEmpty
	b.sel = nil
	b.lease = utxostore.Lease{}
	b.inputs = nil
	b.packet = nil
	b.final = nil
}

// Selection returns the selection being spent, nil when Empty.
func (b *Builder) Selection() *coinselect.Selection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sel
}

// Packet returns the PSBT in base64.
func (b *Builder) Packet() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.packet == nil {
		return "", walleterr.WithDetails(walleterr.ErrBuildInProgress, map[string]string{
			"state":  b.state.String(),
			"reason": "no outputs set",
		})
	}
	return b.packet.B64Encode()
}
