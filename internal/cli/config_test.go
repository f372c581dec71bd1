package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/output"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

func TestLookupPath(t *testing.T) {
	c := config.Defaults()
	c.Chain.Esplora["regtest"] = "http://127.0.0.1:3002/api"
	tree, err := configTree(c)
	require.NoError(t, err)

	tests := []struct {
		path    string
		want    any
		wantErr bool
	}{
		{path: "network", want: "testnet"},
		{path: "fees.rate_sat_vb", want: 2},
		{path: "wallet.gap_limit", want: 20},
		{path: "output.verbose", want: false},
		{path: "chain.esplora.regtest", want: "http://127.0.0.1:3002/api"},
		{path: "chain.breaker.failure_ratio", want: 0.7},
		{path: "unknown", wantErr: true},
		{path: "fees.unknown", wantErr: true},
		{path: "network.deeper", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := lookupPath(tree, tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, walleterr.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, tt.want, got)
		})
	}
}

func TestAssignPath(t *testing.T) {
	tree, err := configTree(config.Defaults())
	require.NoError(t, err)

	require.NoError(t, assignPath(tree, "wallet.gap_limit", 30))
	require.NoError(t, assignPath(tree, "chain.esplora.signet", "https://mutinynet.com/api"))
	require.ErrorIs(t, assignPath(tree, "wallet.gap", 1), walleterr.ErrNotFound)
	require.ErrorIs(t, assignPath(tree, "nope.key", 1), walleterr.ErrNotFound)
	require.ErrorIs(t, assignPath(tree, "fees", 1), walleterr.ErrInvalidInput)

	c, err := configFromTree(tree)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), c.Wallet.GapLimit)
	assert.Equal(t, "https://mutinynet.com/api", c.EsploraURL("signet"))
}

func TestConfigFromTree_TypeMismatch(t *testing.T) {
	tree, err := configTree(config.Defaults())
	require.NoError(t, err)
	require.NoError(t, assignPath(tree, "wallet.gap_limit", "many"))

	_, err = configFromTree(tree)
	require.ErrorIs(t, err, walleterr.ErrConfigInvalid)
}

func TestConfigInit(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	path := config.Path(env.cc.Cfg.Home)

	require.NoError(t, runConfigInit(env.cmd(), nil))
	assert.Contains(t, env.reset(), "Configuration initialized")
	_, err := os.Stat(path)
	require.NoError(t, err)

	err = runConfigInit(env.cmd(), nil)
	require.ErrorIs(t, err, walleterr.ErrGeneral)

	setFlag(t, &configForce, true)
	require.NoError(t, runConfigInit(env.cmd(), nil))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, env.cc.Cfg.Home, loaded.Home)
}

func TestConfigSetAndGet(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	path := config.Path(env.cc.Cfg.Home)

	require.NoError(t, runConfigSet(env.cmd(), []string{"fees.rate_sat_vb", "5.5"}))
	env.reset()

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 5.5, loaded.Fees.RateSatVB, 0.0001)

	require.NoError(t, runConfigSet(env.cmd(), []string{"chain.esplora.regtest", "http://localhost:3002/api"}))
	env.reset()
	loaded, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3002/api", loaded.EsploraURL("regtest"))
	assert.InDelta(t, 5.5, loaded.Fees.RateSatVB, 0.0001)

	require.ErrorIs(t, runConfigSet(env.cmd(), []string{"fees.speed", "1"}), walleterr.ErrNotFound)

	env.cc.Cfg = loaded
	require.NoError(t, runConfigGet(env.cmd(), []string{"fees.rate_sat_vb"}))
	var got map[string]any
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &got))
	assert.InDelta(t, 5.5, got["value"], 0.0001)
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.cc.Cfg.Network = config.NetworkRegtest

	require.NoError(t, runConfigShow(env.cmd(), nil))
	var got map[string]any
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &got))
	assert.Equal(t, "regtest", got["network"])
	env.reset()

	env.cc.Fmt = output.NewFormatter(output.FormatText, env.out)
	require.NoError(t, runConfigShow(env.cmd(), nil))
	text := env.reset()
	assert.Contains(t, text, "# "+filepath.Join(env.cc.Cfg.Home, "config.yaml"))
	assert.Contains(t, text, "network: regtest")
	assert.Contains(t, text, "gap_limit: 20")
}
