package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

func TestMetrics_RecordRPCCall(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordRPCCall("scripthash", 100*time.Millisecond, nil)
	m.RecordRPCCall("scripthash", 50*time.Millisecond, walleterr.ErrChainUnavailable)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.RPCCallsTotal)
	assert.Equal(t, int64(1), snap.RPCErrorsTotal)
	assert.InDelta(t, 75.0, m.RPCLatencyAvgMs(), 0.001)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("scripthash", "ok")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("scripthash", "error")), 0)
}

func TestMetrics_RecordWalletOp(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordWalletOp("send", nil)
	m.RecordWalletOp("send", walleterr.ErrInsufficientFunds)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.WalletOpsTotal)
	assert.Equal(t, int64(1), snap.WalletOpsErrors)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.walletOps.WithLabelValues("send", "fund")), 0)
}

func TestMetrics_SyncAndBroadcast(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordSync(nil)
	m.RecordSync(walleterr.ErrChainUnavailable)
	m.RecordBroadcast(nil)
	m.RecordBroadcast(walleterr.ErrBroadcastRejected)
	m.SetBreakerOpen("esplora", true)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SyncsTotal)
	assert.Equal(t, int64(1), snap.SyncsFailed)
	assert.Equal(t, int64(2), snap.BroadcastsTotal)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("rejected")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.breaker.WithLabelValues("esplora")), 0)
}

func TestMetrics_ZeroLatency(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, New().RPCLatencyAvgMs(), 0)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordSync(nil)

	path := filepath.Join(t.TempDir(), "satchel.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), `satchel_tracker_syncs_total{outcome="ok"} 1`)
}
