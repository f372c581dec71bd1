package wallet

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain/chaintest"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/storage"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

const (
	testMnemonic     = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testFirstAddress = "tb1q6rz28mcfaxtmd6v789l9rrlrusdprr9pqcpvkl"
	testRecipient    = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
)

var testPassword = []byte("correct horse battery staple") //nolint:gochecknoglobals // test fixture

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(&Config{
		Storage: wallet.NewFileStorage(t.TempDir()),
		Store:   storage.NewMemory(),
		Config:  config.Defaults(),
		Metrics: metrics.New(),
	})
}

func restore(t *testing.T, s *Service, name string) *Handle {
	t.Helper()
	res, err := s.Create(context.Background(), CreateRequest{
		Name:     name,
		Network:  wallet.NetworkTestnet,
		Mnemonic: testMnemonic,
		Password: testPassword,
	})
	require.NoError(t, err)
	t.Cleanup(res.Handle.Close)
	return res.Handle
}

// funded restores the test wallet, pays 100000 sat to its first receive
// address and syncs.
func funded(t *testing.T) (*Service, *Handle, *chaintest.Fake) {
	t.Helper()
	s := newTestService(t)
	h := restore(t, s, "main")
	src := chaintest.New()
	script, err := h.pair.Receive.ScriptAt(0)
	require.NoError(t, err)
	src.Pay(script, 100000, 100)
	_, err = s.Sync(context.Background(), h, src)
	require.NoError(t, err)
	return s, h, src
}

func TestCreate_Generates(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	res, err := s.Create(context.Background(), CreateRequest{Name: "fresh", Network: "testnet", Password: testPassword})
	require.NoError(t, err)
	defer res.Handle.Close()

	assert.Len(t, strings.Fields(res.Mnemonic), DefaultWordCount)
	assert.False(t, res.Handle.WatchOnly())

	meta, err := s.LoadMetadata("fresh")
	require.NoError(t, err)
	assert.Equal(t, res.Handle.Wallet.ID, meta.ID)
	assert.Contains(t, meta.ReceiveDescriptor, "tpub")
	assert.NotContains(t, meta.ReceiveDescriptor, "tprv")
	assert.NotContains(t, meta.ChangeDescriptor, "tprv")
}

func TestCreate_Restore(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	h := restore(t, s, "restored")

	assert.Equal(t, "73c5da0a", h.Wallet.MasterFingerprint)
	assert.Equal(t, "testnet", h.Wallet.Network)

	addr, err := s.Address(h)
	require.NoError(t, err)
	assert.Equal(t, testFirstAddress, addr.Address)
	assert.Equal(t, uint32(0), addr.Index)
	assert.Equal(t, "m/84'/1'/0'/0/0", addr.Path)

	next, err := s.Address(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), next.Index)
}

func TestCreate_Errors(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	restore(t, s, "taken")

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"exists", CreateRequest{Name: "taken", Network: "testnet", Password: testPassword}, walleterr.ErrWalletExists},
		{"bad name", CreateRequest{Name: "no spaces", Network: "testnet", Password: testPassword}, walleterr.ErrInvalidInput},
		{"empty password", CreateRequest{Name: "nopw", Network: "testnet"}, walleterr.ErrInvalidInput},
		{"bad network", CreateRequest{Name: "net", Network: "moonnet", Password: testPassword}, walleterr.ErrInvalidNetwork},
		{"bad mnemonic", CreateRequest{
			Name: "typo", Network: "testnet", Password: testPassword,
			Mnemonic: strings.Replace(testMnemonic, "about", "abuot", 1),
		}, walleterr.ErrInvalidMnemonic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	created := restore(t, s, "main")

	h, err := s.Open("main", testPassword)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, created.Wallet.ID, h.Wallet.ID)
	assert.False(t, h.WatchOnly())

	_, err = s.Open("main", []byte("wrong"))
	require.ErrorIs(t, err, walleterr.ErrDecryptionFailed)

	_, err = s.Open("missing", testPassword)
	require.ErrorIs(t, err, walleterr.ErrWalletNotFound)
}

func TestOpenWatchOnly(t *testing.T) {
	t.Parallel()
	s, full, src := funded(t)

	h, err := s.OpenWatchOnly("main")
	require.NoError(t, err)
	defer h.Close()
	assert.True(t, h.WatchOnly())
	assert.Equal(t, full.Wallet.ID, h.Wallet.ID)

	bal := s.Balance(h)
	assert.Equal(t, int64(100000), bal.Confirmed)

	_, err = s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 1000})
	require.ErrorIs(t, err, walleterr.ErrMissingKey)
}

func TestSend_Broadcast(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)

	res, err := s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 40000})
	require.NoError(t, err)
	require.True(t, res.Broadcast)
	require.Len(t, src.Broadcasts, 1)

	assert.Equal(t, int64(282), res.Preview.Fee)
	assert.Equal(t, int64(59718), res.Preview.Change)
	assert.Equal(t, 1, res.Preview.Inputs)
	assert.Equal(t, res.TxID.String(), res.Preview.TxID)
	assert.NotEmpty(t, res.Preview.PSBT)
	assert.Equal(t, uint32(1), h.tracker.Frontier(wallet.ChangeBranch).Next)

	bal := s.Balance(h)
	assert.Equal(t, int64(100000), bal.Pending)
	assert.Empty(t, h.tracker.Spendable(true))

	views := s.UTXOs(h)
	require.Len(t, views, 1)
	assert.True(t, views[0].Pending)
	assert.Equal(t, "m/84'/1'/0'/0/0", views[0].Path)

	report, err := s.Sync(context.Background(), h, src)
	require.NoError(t, err)
	assert.Len(t, report.Cleared, 1)
	bal = s.Balance(h)
	assert.Equal(t, utxostore.Balance{Unconfirmed: 59718}, bal)
}

func TestSend_DryRun(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)

	res, err := s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 40000, DryRun: true})
	require.NoError(t, err)
	assert.False(t, res.Broadcast)
	assert.NotEmpty(t, res.Preview.RawTxHex)
	assert.Empty(t, src.Broadcasts)

	assert.Equal(t, uint32(0), h.tracker.Frontier(wallet.ChangeBranch).Next)
	assert.Len(t, h.tracker.Spendable(false), 1)
	assert.Empty(t, h.tracker.Pending())
}

func TestSend_ConfirmDeclined(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)

	var seen *SendPreview
	_, err := s.Send(context.Background(), h, src, SendRequest{
		To:     testRecipient,
		Amount: 40000,
		Confirm: func(p *SendPreview) bool {
			seen = p
			return false
		},
	})
	require.ErrorIs(t, err, ErrSendCanceled)
	require.NotNil(t, seen)
	assert.Equal(t, int64(40000), seen.Amount)
	assert.Empty(t, src.Broadcasts)
	assert.Len(t, h.tracker.Spendable(false), 1)
}

func TestSend_Errors(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)

	tests := []struct {
		name string
		req  SendRequest
		want error
	}{
		{"zero amount", SendRequest{To: testRecipient}, walleterr.ErrInvalidAmount},
		{"bad recipient", SendRequest{To: "not-an-address", Amount: 1000}, walleterr.ErrInvalidRecipient},
		{"wrong network", SendRequest{To: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", Amount: 1000}, walleterr.ErrInvalidRecipient},
		{"fee too high", SendRequest{To: testRecipient, Amount: 1000, FeeRate: 1000}, walleterr.ErrFeeTooHigh},
		{"negative fee", SendRequest{To: testRecipient, Amount: 1000, FeeRate: -1}, walleterr.ErrInvalidInput},
		{"dust", SendRequest{To: testRecipient, Amount: 100}, walleterr.ErrDustOutput},
		{"insufficient", SendRequest{To: testRecipient, Amount: 200000}, walleterr.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		_, err := s.Send(context.Background(), h, src, tt.req)
		require.ErrorIs(t, err, tt.want, tt.name)
		assert.Len(t, h.tracker.Spendable(false), 1, tt.name)
	}
}

func TestSend_BroadcastRejected(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)
	src.BroadcastErr = walleterr.WithDetails(walleterr.ErrBroadcastRejected, map[string]string{
		"reason": "min relay fee not met",
	})

	_, err := s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 40000})
	require.ErrorIs(t, err, walleterr.ErrBroadcastRejected)

	var we *walleterr.WalletError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "min relay fee not met", we.Details["reason"])

	pending := h.tracker.Pending()
	require.Len(t, pending, 1)
	for txid := range pending {
		assert.Equal(t, txid.String(), we.Details["txid"])
	}
	assert.Empty(t, h.tracker.Spendable(false))

	for txid := range pending {
		require.NoError(t, s.ReleasePending(h, txid.String()))
	}
	assert.Len(t, h.tracker.Spendable(false), 1)

	require.ErrorIs(t, s.ReleasePending(h, "zz"), walleterr.ErrInvalidInput)
}

func TestSend_ChainUnavailable(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)
	src.BroadcastErr = walleterr.ErrChainUnavailable

	_, err := s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 40000})
	require.ErrorIs(t, err, walleterr.ErrChainUnavailable)
	assert.Empty(t, h.tracker.Pending())
	assert.Len(t, h.tracker.Spendable(false), 1)

	src.BroadcastErr = nil
	res, err := s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 40000})
	require.NoError(t, err)
	assert.True(t, res.Broadcast)
}

// pendingStore fails writes of the pending record once armed.
type pendingStore struct {
	storage.KeyValueStore

	fail atomic.Bool
}

func (p *pendingStore) Put(walletID, key string, value []byte) error {
	if key == "pending" && p.fail.Load() {
		return errors.New("disk full")
	}
	return p.KeyValueStore.Put(walletID, key, value)
}

func TestSend_RelayedButPendingNotSaved(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	store := &pendingStore{KeyValueStore: storage.NewMemory()}
	s.store = store
	h := restore(t, s, "main")
	src := chaintest.New()
	script, err := h.pair.Receive.ScriptAt(0)
	require.NoError(t, err)
	src.Pay(script, 100000, 100)
	_, err = s.Sync(context.Background(), h, src)
	require.NoError(t, err)

	store.fail.Store(true)
	res, err := s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 40000})
	require.NoError(t, err)
	assert.True(t, res.Broadcast)
	assert.NotEmpty(t, res.Warning)
	assert.Len(t, src.Broadcasts, 1)
	assert.Contains(t, h.tracker.Pending(), res.TxID)
	assert.Empty(t, h.tracker.Spendable(false))

	// The relayed input cannot be selected again.
	_, err = s.Send(context.Background(), h, src, SendRequest{To: testRecipient, Amount: 1000, DryRun: true})
	require.ErrorIs(t, err, walleterr.ErrInsufficientFunds)
}

func TestSync_Unavailable(t *testing.T) {
	t.Parallel()
	s, h, src := funded(t)
	src.FetchErr = walleterr.ErrChainUnavailable

	_, err := s.Sync(context.Background(), h, src)
	require.ErrorIs(t, err, walleterr.ErrChainUnavailable)
	assert.Equal(t, int64(100000), s.Balance(h).Confirmed)
	assert.Equal(t, int64(1), s.metrics.Snapshot().SyncsFailed)
}

func TestList(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	restore(t, s, "b")
	restore(t, s, "a")

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
