package utxostore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/descriptor"
	"github.com/mrz1836/satchel/internal/storage"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// DefaultGapLimit is the number of consecutive unused addresses scanned
// past the highest used one.
const DefaultGapLimit = 20

// Logger is the subset of the application logger used here.
type Logger interface {
	Debug(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Options configures a Tracker.
type Options struct {
	GapLimit uint32
	Logger   Logger
}

// Lease is an exclusive claim on outpoints for one transaction build.
type Lease struct {
	ID        string
	OutPoints []wire.OutPoint
}

// state is the part of the tracker replaced wholesale by Sync.
type state struct {
	utxos    map[wire.OutPoint]UTXO
	frontier [2]Frontier
}

func (s *state) clone() *state {
	c := &state{utxos: make(map[wire.OutPoint]UTXO, len(s.utxos)), frontier: s.frontier}
	for k, v := range s.utxos {
		c.utxos[k] = v
	}
	return c
}

// Tracker owns the UTXO set of one wallet.
type Tracker struct {
	walletID string
	store    storage.KeyValueStore
	gapLimit uint32
	logger   Logger

	// syncMu serialises Sync calls and guards scriptCache.
	syncMu      sync.Mutex
	scriptCache map[[2]uint32][]byte

	mu       sync.RWMutex
	state    *state
	reserved map[wire.OutPoint]string
	pending  map[chainhash.Hash][]wire.OutPoint
}

// Open loads the tracker state of walletID from store. A wallet with no
// stored state starts empty.
func Open(walletID string, store storage.KeyValueStore, opts Options) (*Tracker, error) {
	t := &Tracker{
		walletID:    walletID,
		store:       store,
		gapLimit:    opts.GapLimit,
		logger:      opts.Logger,
		scriptCache: make(map[[2]uint32][]byte),
		state: &state{
			utxos:    make(map[wire.OutPoint]UTXO),
			frontier: [2]Frontier{newFrontier(), newFrontier()},
		},
		reserved: make(map[wire.OutPoint]string),
		pending:  make(map[chainhash.Hash][]wire.OutPoint),
	}
	if t.gapLimit == 0 {
		t.gapLimit = DefaultGapLimit
	}
	if t.logger == nil {
		t.logger = nopLogger{}
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	if data, err := t.get(keyUTXOs); err != nil {
		return err
	} else if data != nil {
		utxos, err := decodeUTXOs(data)
		if err != nil {
			return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
		}
		for _, u := range utxos {
			t.state.utxos[u.OutPoint] = u
		}
	}

	if data, err := t.get(keyFrontier); err != nil {
		return err
	} else if data != nil {
		var f frontierFile
		if err := json.Unmarshal(data, &f); err != nil {
			return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
		}
		t.state.frontier = [2]Frontier{f.Receive, f.Change}
	}

	if data, err := t.get(keyPending); err != nil {
		return err
	} else if data != nil {
		pending, err := decodePending(data)
		if err != nil {
			return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
		}
		t.pending = pending
	}
	return nil
}

// get returns nil, nil for an absent key.
func (t *Tracker) get(key string) ([]byte, error) {
	data, err := t.store.Get(t.walletID, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
	}
	return data, nil
}

func (t *Tracker) put(key string, value []byte) error {
	if err := t.store.Put(t.walletID, key, value); err != nil {
		return storeErr(err)
	}
	return nil
}

func storeErr(err error) error {
	if walleterr.Is(err, walleterr.ErrStoreUnavailable) {
		return err
	}
	return walleterr.WithCause(walleterr.ErrStoreUnavailable, err)
}

// persistState writes the UTXO set and frontier, plus pending when
// non-nil, as one batch.
func (t *Tracker) persistState(s *state, pending map[chainhash.Hash][]wire.OutPoint) error {
	utxos, err := encodeUTXOs(sortedUTXOs(s.utxos))
	if err != nil {
		return walleterr.Wrap(err, "encoding utxos")
	}
	frontier, err := encodeFrontier(s.frontier)
	if err != nil {
		return err
	}
	entries := map[string][]byte{keyUTXOs: utxos, keyFrontier: frontier}
	if pending != nil {
		if entries[keyPending], err = encodePending(pending); err != nil {
			return walleterr.Wrap(err, "encoding pending")
		}
	}
	if err := t.store.PutBatch(t.walletID, entries); err != nil {
		return storeErr(err)
	}
	return nil
}

func encodeFrontier(f [2]Frontier) ([]byte, error) {
	data, err := json.Marshal(frontierFile{Version: recordVersion, Receive: f[0], Change: f[1]})
	if err != nil {
		return nil, walleterr.Wrap(err, "encoding frontier")
	}
	return data, nil
}

func (t *Tracker) persistFrontier(f [2]Frontier) error {
	data, err := encodeFrontier(f)
	if err != nil {
		return err
	}
	return t.put(keyFrontier, data)
}

func (t *Tracker) persistPending(pending map[chainhash.Hash][]wire.OutPoint) error {
	data, err := encodePending(pending)
	if err != nil {
		return walleterr.Wrap(err, "encoding pending")
	}
	return t.put(keyPending, data)
}

// SyncReport summarises one Sync.
type SyncReport struct {
	Scanned     [2]uint32
	HighestUsed [2]int64
	Added       int
	Removed     int
	Cleared     []chainhash.Hash
	Balance     Balance
}

// Sync rescans both branches of pair from index 0 up to the highest used
// index plus the gap limit, then replaces the UTXO set. Work happens on a
// copy: on any error the previous state is left untouched.
func (t *Tracker) Sync(ctx context.Context, src chain.Source, pair *descriptor.Pair) (*SyncReport, error) {
	t.syncMu.Lock()
	defer t.syncMu.Unlock()

	t.mu.RLock()
	next := t.state.clone()
	t.mu.RUnlock()

	report := &SyncReport{}
	fresh := make(map[wire.OutPoint]UTXO)

	for _, branch := range []uint32{wallet.ReceiveBranch, wallet.ChangeBranch} {
		scanned, highest, err := t.scanBranch(ctx, src, pair.Branch(branch), branch, next.frontier[branch], fresh)
		if err != nil {
			return nil, err
		}
		report.Scanned[branch] = scanned
		report.HighestUsed[branch] = highest

		f := next.frontier[branch]
		f.HighestUsed = highest
		if used := uint32(highest + 1); highest >= 0 && used > f.Next { //nolint:gosec // highest >= 0
			f.Next = used
		}
		next.frontier[branch] = f
	}

	for op := range fresh {
		if _, ok := next.utxos[op]; !ok {
			report.Added++
		}
	}
	for op := range next.utxos {
		if _, ok := fresh[op]; !ok {
			report.Removed++
		}
	}
	next.utxos = fresh

	t.mu.Lock()
	defer t.mu.Unlock()

	pending := make(map[chainhash.Hash][]wire.OutPoint, len(t.pending))
	for txid, ops := range t.pending {
		if anyPresent(fresh, ops) {
			pending[txid] = ops
			continue
		}
		report.Cleared = append(report.Cleared, txid)
	}

	changed := pending
	if len(report.Cleared) == 0 {
		changed = nil
	}
	if err := t.persistState(next, changed); err != nil {
		return nil, err
	}

	t.state = next
	t.pending = pending
	report.Balance = t.balanceLocked()
	t.logger.Debug("sync complete: receive scanned %d, change scanned %d, %d added, %d removed",
		report.Scanned[0], report.Scanned[1], report.Added, report.Removed)
	return report, nil
}

func anyPresent(utxos map[wire.OutPoint]UTXO, ops []wire.OutPoint) bool {
	for _, op := range ops {
		if _, ok := utxos[op]; ok {
			return true
		}
	}
	return false
}

// scanBranch queries the branch in batches until gapLimit consecutive
// indexes past the highest used one have no history. Unspent outputs are
// added to fresh.
func (t *Tracker) scanBranch(ctx context.Context, src chain.Source, desc *descriptor.Descriptor,
	branch uint32, prev Frontier, fresh map[wire.OutPoint]UTXO,
) (uint32, int64, error) {
	highest := int64(-1)
	from := uint32(0)

	for {
		end := Frontier{Next: prev.Next, HighestUsed: highest}.scanEnd(t.gapLimit)
		if from >= end {
			return from, highest, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, 0, walleterr.WithCause(walleterr.ErrChainUnavailable, err)
		}

		scripts := make([][]byte, 0, end-from)
		byScript := make(map[string]uint32, end-from)
		for i := from; i < end; i++ {
			script, err := t.script(desc, branch, i)
			if err != nil {
				return 0, 0, err
			}
			scripts = append(scripts, script)
			byScript[string(script)] = i
		}

		outs, err := src.FetchOutputs(ctx, scripts)
		if err != nil {
			return 0, 0, err
		}
		for _, o := range outs {
			idx, ok := byScript[string(o.PkScript)]
			if !ok {
				continue
			}
			if int64(idx) > highest {
				highest = int64(idx)
			}
			if o.Spent {
				continue
			}
			fresh[o.OutPoint] = UTXO{
				OutPoint: o.OutPoint,
				Value:    o.Value,
				Branch:   branch,
				Index:    idx,
				PkScript: o.PkScript,
				Height:   o.Height,
			}
		}
		from = end
	}
}

func (t *Tracker) script(desc *descriptor.Descriptor, branch, index uint32) ([]byte, error) {
	key := [2]uint32{branch, index}
	if s, ok := t.scriptCache[key]; ok {
		return s, nil
	}
	s, err := desc.ScriptAt(index)
	if err != nil {
		return nil, err
	}
	t.scriptCache[key] = s
	return s, nil
}

// Balance returns the current balance.
func (t *Tracker) Balance() Balance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked()
}

func (t *Tracker) balanceLocked() Balance {
	spending := t.pendingSetLocked()
	var b Balance
	for op, u := range t.state.utxos {
		switch {
		case spending[op]:
			b.Pending += u.Value
		case u.Confirmed():
			b.Confirmed += u.Value
		default:
			b.Unconfirmed += u.Value
		}
	}
	return b
}

func (t *Tracker) pendingSetLocked() map[wire.OutPoint]bool {
	set := make(map[wire.OutPoint]bool)
	for _, ops := range t.pending {
		for _, op := range ops {
			set[op] = true
		}
	}
	return set
}

// UTXOs returns every tracked output in outpoint order.
func (t *Tracker) UTXOs() []UTXO {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedUTXOs(t.state.utxos)
}

// Spendable returns outputs that are neither reserved nor pending, in
// outpoint order.
func (t *Tracker) Spendable(includeUnconfirmed bool) []UTXO {
	t.mu.RLock()
	defer t.mu.RUnlock()

	spending := t.pendingSetLocked()
	var out []UTXO
	for op, u := range t.state.utxos {
		if _, held := t.reserved[op]; held || spending[op] {
			continue
		}
		if !includeUnconfirmed && !u.Confirmed() {
			continue
		}
		out = append(out, u)
	}
	sortUTXOs(out)
	return out
}

// Lookup returns the tracked output at op.
func (t *Tracker) Lookup(op wire.OutPoint) (UTXO, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.state.utxos[op]
	return u, ok
}

// Reserve claims outpoints for one build. It fails without side effects
// if any outpoint is unknown, reserved or pending.
func (t *Tracker) Reserve(outpoints []wire.OutPoint) (Lease, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spending := t.pendingSetLocked()
	for _, op := range outpoints {
		if _, ok := t.state.utxos[op]; !ok {
			return Lease{}, walleterr.WithDetails(walleterr.ErrNotFound, map[string]string{
				"outpoint": op.String(),
			})
		}
		if holder, held := t.reserved[op]; held {
			return Lease{}, walleterr.WithDetails(walleterr.ErrOutpointLocked, map[string]string{
				"outpoint": op.String(),
				"lease":    holder,
			})
		}
		if spending[op] {
			return Lease{}, walleterr.WithDetails(walleterr.ErrOutpointLocked, map[string]string{
				"outpoint": op.String(),
				"reason":   "spent by a pending transaction",
			})
		}
	}

	lease := Lease{ID: uuid.NewString(), OutPoints: append([]wire.OutPoint(nil), outpoints...)}
	for _, op := range outpoints {
		t.reserved[op] = lease.ID
	}
	return lease, nil
}

// Release drops a lease. Releasing twice is harmless.
func (t *Tracker) Release(lease Lease) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(lease)
}

func (t *Tracker) releaseLocked(lease Lease) {
	for _, op := range lease.OutPoints {
		if t.reserved[op] == lease.ID {
			delete(t.reserved, op)
		}
	}
}

// MarkPending records that txid spends the lease's outpoints and drops
// the lease. The outpoints stay excluded until a sync observes them spent
// or ReleasePending is called. The record is kept in memory even when
// persisting it fails.
func (t *Tracker) MarkPending(txid chainhash.Hash, lease Lease) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := make(map[chainhash.Hash][]wire.OutPoint, len(t.pending)+1)
	for k, v := range t.pending {
		pending[k] = v
	}
	pending[txid] = append([]wire.OutPoint(nil), lease.OutPoints...)
	t.pending = pending
	t.releaseLocked(lease)
	return t.persistPending(pending)
}

// ReleasePending forgets a pending transaction, returning its inputs to
// the spendable set.
func (t *Tracker) ReleasePending(txid chainhash.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[txid]; !ok {
		return walleterr.WithDetails(walleterr.ErrNotFound, map[string]string{"txid": txid.String()})
	}
	pending := make(map[chainhash.Hash][]wire.OutPoint, len(t.pending))
	for k, v := range t.pending {
		if k != txid {
			pending[k] = v
		}
	}
	if err := t.persistPending(pending); err != nil {
		return err
	}
	t.pending = pending
	return nil
}

// Pending returns the pending transactions and the outpoints they spend.
func (t *Tracker) Pending() map[chainhash.Hash][]wire.OutPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[chainhash.Hash][]wire.OutPoint, len(t.pending))
	for k, v := range t.pending {
		out[k] = append([]wire.OutPoint(nil), v...)
	}
	return out
}

// Frontier returns the scan state of branch.
func (t *Tracker) Frontier(branch uint32) Frontier {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.frontier[branchSlot(branch)]
}

// NextAddress hands out the next unused address on branch and persists
// the advanced counter.
func (t *Tracker) NextAddress(pair *descriptor.Pair, branch uint32) (*btcutil.AddressWitnessPubKeyHash, uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := branchSlot(branch)
	f := t.state.frontier[slot]
	index := f.Next
	if index >= 1<<31 {
		return nil, 0, walleterr.WithDetails(walleterr.ErrDerivationOverflow, map[string]string{
			"branch": strconv.FormatUint(uint64(branch), 10),
		})
	}
	addr, err := pair.Branch(branch).AddressAt(index)
	if err != nil {
		return nil, 0, err
	}

	frontier := t.state.frontier
	f.Next = index + 1
	frontier[slot] = f
	if err := t.persistFrontier(frontier); err != nil {
		return nil, 0, err
	}
	t.state.frontier = frontier
	t.logger.Debug("handed out %s/%d", strconv.FormatUint(uint64(branch), 10), index)
	return addr, index, nil
}

func branchSlot(branch uint32) int {
	if branch == wallet.ChangeBranch {
		return 1
	}
	return 0
}

func sortedUTXOs(m map[wire.OutPoint]UTXO) []UTXO {
	out := make([]UTXO, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	sortUTXOs(out)
	return out
}

func sortUTXOs(utxos []UTXO) {
	sort.Slice(utxos, func(i, j int) bool {
		return chain.LessOutPoint(utxos[i].OutPoint, utxos[j].OutPoint)
	})
}

// ScriptHex is a display helper for a UTXO script.
func (u UTXO) ScriptHex() string {
	return hex.EncodeToString(u.PkScript)
}
