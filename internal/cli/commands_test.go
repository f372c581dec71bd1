package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/output"
	walletsvc "github.com/mrz1836/satchel/internal/service/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// fundedEnv restores the test wallet as "main" and funds receive/0.
func fundedEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()
	withMockPrompts(t, []byte(testPassword), true)
	env := newTestEnv(t, format)
	env.restoreTestWallet(t, "main")
	env.fund(t, 100000, 100)
	return env
}

func decode[T any](t *testing.T, env *testEnv) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &v))
	env.out.Reset()
	return v
}

func TestSync(t *testing.T) {
	env := fundedEnv(t, output.FormatJSON)
	setFlag(t, &syncWallet, "main")

	require.NoError(t, runSync(env.cmd(), nil))
	res := decode[syncResult](t, env)
	assert.Equal(t, "main", res.Wallet)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, int64(100000), res.Balance.Confirmed)
	assert.GreaterOrEqual(t, res.ReceiveScanned, uint32(20))

	require.NoError(t, runSync(env.cmd(), nil))
	again := decode[syncResult](t, env)
	assert.Zero(t, again.Added)
	assert.Zero(t, again.Removed)
}

func TestSync_ChainUnavailable(t *testing.T) {
	env := fundedEnv(t, output.FormatText)
	env.chain.FetchErr = walleterr.ErrChainUnavailable
	setFlag(t, &syncWallet, "main")

	err := runSync(env.cmd(), nil)
	require.ErrorIs(t, err, walleterr.ErrChainUnavailable)
	assert.Equal(t, walleterr.ExitResource, ExitCode(err))
}

func TestBalance(t *testing.T) {
	env := fundedEnv(t, output.FormatJSON)
	setFlag(t, &balanceWallet, "main")

	require.NoError(t, runBalance(env.cmd(), nil))
	before := decode[balanceResult](t, env)
	assert.Zero(t, before.Confirmed)

	setFlag(t, &balanceSync, true)
	require.NoError(t, runBalance(env.cmd(), nil))
	after := decode[balanceResult](t, env)
	assert.Equal(t, "testnet", after.Network)
	assert.Equal(t, int64(100000), after.Confirmed)
	assert.Equal(t, int64(100000), after.Spendable)
}

func TestBalance_Text(t *testing.T) {
	env := fundedEnv(t, output.FormatText)
	setFlag(t, &balanceWallet, "main")
	setFlag(t, &balanceSync, true)

	require.NoError(t, runBalance(env.cmd(), nil))
	text := env.reset()
	assert.Contains(t, text, "Confirmed")
	assert.Contains(t, text, "0.001")
	assert.Contains(t, text, "100000 sat")
	assert.NotContains(t, text, "Pending")
}

func TestReceive(t *testing.T) {
	withMockPrompts(t, []byte(testPassword), true)
	env := newTestEnv(t, output.FormatJSON)
	env.restoreTestWallet(t, "main")
	setFlag(t, &receiveWallet, "main")
	setFlag(t, &receiveAmount, "0.001")
	setFlag(t, &receiveLabel, "coffee")

	require.NoError(t, runReceive(env.cmd(), nil))
	first := decode[receiveResult](t, env)
	assert.Equal(t, testFirstAddress, first.Address)
	assert.Equal(t, uint32(0), first.Index)
	assert.Equal(t, "m/84'/1'/0'/0/0", first.Path)
	assert.True(t, strings.HasPrefix(first.URI, "bitcoin:"+strings.ToUpper(testFirstAddress)+"?"))
	assert.Contains(t, first.URI, "amount=0.001")
	assert.Contains(t, first.URI, "label=coffee")

	require.NoError(t, runReceive(env.cmd(), nil))
	second := decode[receiveResult](t, env)
	assert.Equal(t, uint32(1), second.Index)
	assert.NotEqual(t, first.Address, second.Address)
}

func TestReceive_TextWithoutQR(t *testing.T) {
	withMockPrompts(t, []byte(testPassword), true)
	env := newTestEnv(t, output.FormatText)
	env.restoreTestWallet(t, "main")
	setFlag(t, &receiveWallet, "main")
	setFlag(t, &receiveNoQR, true)

	require.NoError(t, runReceive(env.cmd(), nil))
	text := env.reset()
	assert.Contains(t, text, testFirstAddress)
	assert.NotContains(t, text, "Amount:")
}

func TestReceive_BadAmount(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	setFlag(t, &receiveWallet, "main")
	setFlag(t, &receiveAmount, "lots")

	require.ErrorIs(t, runReceive(env.cmd(), nil), walleterr.ErrInvalidAmount)
}

func setSendFlags(t *testing.T, sats int64) {
	t.Helper()
	setFlag(t, &sendWallet, "main")
	setFlag(t, &sendTo, testRecipient)
	setFlag(t, &sendSats, sats)
	setFlag(t, &sendAmount, "")
	setFlag(t, &sendYes, true)
}

func TestSend(t *testing.T) {
	env := fundedEnv(t, output.FormatJSON)
	setSendFlags(t, 10000)

	require.NoError(t, runSend(env.cmd(), nil))
	res := decode[sendOutcome](t, env)
	assert.True(t, res.Broadcast)
	assert.Equal(t, int64(10000), res.Amount)
	assert.Equal(t, int64(282), res.Fee)
	assert.Equal(t, int64(100000-10000-282), res.Change)
	assert.Equal(t, 1, res.Inputs)
	require.Len(t, env.chain.Broadcasts, 1)

	setFlag(t, &utxoWallet, "main")
	require.NoError(t, runUTXOList(env.cmd(), nil))
	entries := decode[[]utxoEntry](t, env)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Pending)
}

func TestSend_AmountInBTC(t *testing.T) {
	env := fundedEnv(t, output.FormatJSON)
	setSendFlags(t, 0)
	setFlag(t, &sendAmount, "0.0002")

	require.NoError(t, runSend(env.cmd(), nil))
	res := decode[sendOutcome](t, env)
	assert.Equal(t, int64(20000), res.Amount)
}

func TestSend_DryRun(t *testing.T) {
	env := fundedEnv(t, output.FormatText)
	setSendFlags(t, 10000)
	setFlag(t, &sendDryRun, true)

	require.NoError(t, runSend(env.cmd(), nil))
	text := env.reset()
	assert.Contains(t, text, "Dry run, not broadcast")
	assert.Contains(t, text, "cHNidP8")
	assert.Empty(t, env.chain.Broadcasts)
}

func TestSend_ConfirmDeclined(t *testing.T) {
	env := fundedEnv(t, output.FormatText)
	setSendFlags(t, 10000)
	setFlag(t, &sendYes, false)
	withMockPrompts(t, []byte(testPassword), false)

	err := runSend(env.cmd(), nil)
	require.ErrorIs(t, err, walletsvc.ErrSendCanceled)
	assert.Empty(t, env.chain.Broadcasts)
}

func TestSend_Rejected(t *testing.T) {
	env := fundedEnv(t, output.FormatJSON)
	setSendFlags(t, 10000)
	env.chain.BroadcastErr = walleterr.ErrBroadcastRejected

	err := runSend(env.cmd(), nil)
	require.ErrorIs(t, err, walleterr.ErrBroadcastRejected)

	var we *walleterr.WalletError
	require.ErrorAs(t, err, &we)
	assert.Contains(t, we.Suggestion, "satchel utxo release")
	txid := we.Details["txid"]
	require.Len(t, txid, 64)

	env.chain.BroadcastErr = nil
	setFlag(t, &utxoWallet, "main")
	require.NoError(t, runUTXORelease(env.cmd(), []string{txid}))
	env.reset()

	setFlag(t, &sendNoSync, true)
	require.NoError(t, runSend(env.cmd(), nil))
	assert.True(t, decode[sendOutcome](t, env).Broadcast)
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T)
		wantErr error
	}{
		{"zero sats", func(t *testing.T) { setFlag(t, &sendSats, 0) }, walleterr.ErrInvalidAmount},
		{"bad btc amount", func(t *testing.T) { setFlag(t, &sendAmount, "-1") }, walleterr.ErrInvalidAmount},
		{"too much", func(t *testing.T) { setFlag(t, &sendSats, 500000) }, walleterr.ErrInsufficientFunds},
		{"bad recipient", func(t *testing.T) { setFlag(t, &sendTo, "not-an-address") }, walleterr.ErrInvalidRecipient},
		{"fee ceiling", func(t *testing.T) { setFlag(t, &sendFeeRate, 1000.0) }, walleterr.ErrFeeTooHigh},
		{"unknown wallet", func(t *testing.T) { setFlag(t, &sendWallet, "ghost") }, walleterr.ErrWalletNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := fundedEnv(t, output.FormatText)
			setSendFlags(t, 10000)
			tt.setup(t)
			require.ErrorIs(t, runSend(env.cmd(), nil), tt.wantErr)
			assert.Empty(t, env.chain.Broadcasts)
		})
	}
}

func TestUTXOList_Text(t *testing.T) {
	env := fundedEnv(t, output.FormatText)
	setFlag(t, &utxoWallet, "main")

	require.NoError(t, runUTXOList(env.cmd(), nil))
	assert.Contains(t, env.reset(), "No unspent outputs")

	setFlag(t, &syncWallet, "main")
	require.NoError(t, runSync(env.cmd(), nil))
	env.reset()

	require.NoError(t, runUTXOList(env.cmd(), nil))
	text := env.reset()
	assert.Contains(t, text, "OUTPOINT")
	assert.Contains(t, text, "100000")
	assert.Contains(t, text, "m/84'/1'/0'/0/0")
	assert.Contains(t, text, "confirmed")
}

func TestUTXORelease_BadTxid(t *testing.T) {
	env := fundedEnv(t, output.FormatText)
	setFlag(t, &utxoWallet, "main")
	require.ErrorIs(t, runUTXORelease(env.cmd(), []string{"zz"}), walleterr.ErrInvalidInput)
}

func TestRenderPreview(t *testing.T) {
	var sb strings.Builder
	renderPreview(&sb, &walletsvc.SendPreview{
		To: testRecipient, Amount: 10000, Fee: 282, Change: 89718, Inputs: 1, VSize: 141, FeeRate: 2, TxID: "ab",
	})
	text := sb.String()
	assert.Contains(t, text, "0.0001 BTC (10000 sat)")
	assert.Contains(t, text, "282 sat (2.0 sat/vB, 141 vB)")
	assert.Contains(t, text, "89718 sat")
}
