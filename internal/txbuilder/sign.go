package txbuilder

import (
	"bytes"
	"context"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/satchel/internal/descriptor"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Sign adds a signature to every unsigned input. Keys are derived up
// front, then inputs are signed in parallel. Inputs that already carry a
// signature are left alone, so signing twice changes nothing. A crypto
// failure aborts the build and releases the lease.
func (b *Builder) Sign(ctx context.Context, keys KeySource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateSigned {
		return nil
	}
	if err := b.require(StateOutputsSet); err != nil {
		return err
	}

	jobs, err := b.signJobs(keys)
	defer func() {
		for _, j := range jobs {
			j.child.Zero()
		}
	}()
	if err != nil {
		b.ledger.Release(b.lease)
		b.resetLocked()
		return err
	}

	hashes := txscript.NewTxSigHashes(b.packet.UnsignedTx, b.prevOutFetcher())
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.signInput(j, hashes)
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			// Canceled: keep the build for another try.
			b.clearSigs()
			return walleterr.Wrap(ctx.Err(), "signing canceled")
		}
		b.ledger.Release(b.lease)
		b.resetLocked()
		return err
	}
	b.state = StateSigned
	return nil
}

// signJob is one input with its derived private key.
type signJob struct {
	in    *psbt.PInput
	idx   int
	utxo  utxostore.UTXO
	desc  *descriptor.Descriptor
	child *wallet.ExtendedKey
}

// signJobs derives the key of every unsigned input. Derivation reads the
// shared account key, so it runs before any goroutine starts.
func (b *Builder) signJobs(keys KeySource) ([]signJob, error) {
	var jobs []signJob
	for i, u := range b.inputs {
		in := &b.packet.Inputs[i]
		if len(in.PartialSigs) > 0 || in.FinalScriptWitness != nil {
			continue
		}
		desc := keys.Branch(u.Branch)
		if desc == nil {
			return jobs, walleterr.WithDetails(walleterr.ErrMissingKey, map[string]string{
				"input":  strconv.Itoa(i),
				"branch": strconv.FormatUint(uint64(u.Branch), 10),
			})
		}
		child, err := desc.PrivateKeyAt(u.Index)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, signJob{in: in, idx: i, utxo: u, desc: desc, child: child})
	}
	return jobs, nil
}

func (b *Builder) clearSigs() {
	for i := range b.packet.Inputs {
		b.packet.Inputs[i].PartialSigs = nil
		b.packet.Inputs[i].Bip32Derivation = nil
	}
}

func (b *Builder) signInput(j signJob, hashes *txscript.TxSigHashes) error {
	u := j.utxo
	path := j.desc.ChildPath(u.Index)

	priv, err := j.child.PrivateKey()
	if err != nil {
		return err
	}
	defer priv.Zero()

	pub := priv.PubKey().SerializeCompressed()
	program, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pub)).
		Script()
	if err != nil {
		return walleterr.WithCause(walleterr.ErrSignatureFailed, err)
	}
	if !bytes.Equal(program, u.PkScript) {
		return walleterr.WithDetails(walleterr.ErrMissingKey, map[string]string{
			"input":    strconv.Itoa(j.idx),
			"outpoint": u.OutPoint.String(),
			"path":     path.String(),
			"reason":   "derived key does not match the output script",
		})
	}

	sig, err := txscript.RawTxInWitnessSignature(b.packet.UnsignedTx, hashes, j.idx,
		u.Value, u.PkScript, txscript.SigHashAll, priv)
	if err != nil {
		return walleterr.WithDetails(walleterr.WithCause(walleterr.ErrSignatureFailed, err),
			map[string]string{"input": strconv.Itoa(j.idx), "path": path.String()})
	}

	j.in.Bip32Derivation = []*psbt.Bip32Derivation{{
		PubKey:               pub,
		MasterKeyFingerprint: j.desc.Origin.Fingerprint.LittleEndianUint32(),
		Bip32Path:            path.ChildIndexes(),
	}}
	j.in.PartialSigs = []*psbt.PartialSig{{PubKey: pub, Signature: sig}}
	return nil
}
