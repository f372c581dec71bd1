package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/chaintest"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/storage"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery"
	// receive/0 of testMnemonic on testnet.
	testFirstAddress = "tb1q6rz28mcfaxtmd6v789l9rrlrusdprr9pqcpvkl"
	testRecipient    = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
)

// testEnv is a CommandContext backed by a memory store and a fake chain.
type testEnv struct {
	cc    *CommandContext
	chain *chaintest.Fake
	out   *bytes.Buffer
}

func newTestEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()
	c := config.Defaults()
	c.Home = t.TempDir()
	c.Network = config.NetworkTestnet

	store := storage.NewMemory()
	fake := chaintest.New()
	buf := &bytes.Buffer{}
	env := &testEnv{chain: fake, out: buf}
	env.cc = &CommandContext{
		Cfg:     c,
		Log:     config.NullLogger(),
		Fmt:     output.NewFormatter(format, buf),
		Metrics: metrics.New(),
		OpenStore: func(*config.Config) (storage.KeyValueStore, error) {
			return store, nil
		},
		NewSource: func(*CommandContext, *chaincfg.Params) (chain.Source, error) {
			return fake, nil
		},
	}
	return env
}

// cmd returns a bare command carrying the environment.
func (e *testEnv) cmd() *cobra.Command {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	SetCmdContext(c, e.cc)
	return c
}

// reset clears captured output.
func (e *testEnv) reset() string {
	s := e.out.String()
	e.out.Reset()
	return s
}

// restoreTestWallet restores testMnemonic as name.
func (e *testEnv) restoreTestWallet(t *testing.T, name string) {
	t.Helper()
	setFlag(t, &restoreMnemonic, testMnemonic)
	require.NoError(t, runWalletRestore(e.cmd(), []string{name}))
	e.reset()
}

// fund pays value to the first receive address at height.
func (e *testEnv) fund(t *testing.T, value int64, height int32) {
	t.Helper()
	addr, err := btcutil.DecodeAddress(testFirstAddress, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	e.chain.Pay(script, value, height)
}

// setFlag assigns a package-level flag variable for one test.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	orig := *p
	*p = v
	t.Cleanup(func() { *p = orig })
}

// withMockPrompts replaces prompt functions for testing and restores on cleanup.
func withMockPrompts(t *testing.T, password []byte, confirm bool) {
	t.Helper()
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	origConfirm := promptConfirmFn
	origPassphrase := promptPassphraseFn
	origMnemonic := promptMnemonicFn
	origOut := promptOut
	t.Cleanup(func() {
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
		promptConfirmFn = origConfirm
		promptPassphraseFn = origPassphrase
		promptMnemonicFn = origMnemonic
		promptOut = origOut
	})
	promptPasswordFn = func(_ string) ([]byte, error) {
		return append([]byte(nil), password...), nil
	}
	promptNewPasswordFn = func() ([]byte, error) {
		return append([]byte(nil), password...), nil
	}
	promptConfirmFn = func(string) bool { return confirm }
	promptPassphraseFn = func() (string, error) { return "", nil }
	promptMnemonicFn = func() (string, error) { return testMnemonic, nil }
	promptOut = &bytes.Buffer{}
}
