package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/version"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

var errPromptClosed = errors.New("prompt closed")

func TestVersion(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	require.NoError(t, runVersion(env.cmd(), nil))
	assert.True(t, strings.HasPrefix(env.reset(), "satchel "))
}

func TestVersion_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.com/v99"}`))
	}))
	defer srv.Close()

	orig := newReleaseClient
	t.Cleanup(func() { newReleaseClient = orig })
	newReleaseClient = func() *version.Client { return version.NewClient(version.WithBaseURL(srv.URL)) }
	setFlag(t, &versionCheck, true)

	env := newTestEnv(t, output.FormatJSON)
	require.NoError(t, runVersion(env.cmd(), nil))

	var got versionResult
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &got))
	require.NotNil(t, got.Update)
	assert.Equal(t, "v99.0.0", got.Update.Latest)
	assert.True(t, got.Update.Newer)
}

func TestWriteCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeCompletion(rootCmd, &buf, shell))
			assert.Contains(t, buf.String(), "satchel")
		})
	}
	require.ErrorIs(t, writeCompletion(rootCmd, &bytes.Buffer{}, "tcsh"), walleterr.ErrInvalidInput)
}

func TestListSubcommands(t *testing.T) {
	parent := &cobra.Command{Use: "utxo", Long: "Inspect outputs."}
	parent.AddCommand(
		&cobra.Command{Use: "list", Short: "List outputs", Run: func(*cobra.Command, []string) {}},
		&cobra.Command{Use: "release", Short: "Free pending inputs", Run: func(*cobra.Command, []string) {}},
		&cobra.Command{Use: "debug", Short: "Internal", Hidden: true, Run: func(*cobra.Command, []string) {}},
	)

	listSubcommands(parent)
	listSubcommands(parent)

	assert.Equal(t, 1, strings.Count(parent.Long, "Subcommands:"))
	assert.Contains(t, parent.Long, "  list      List outputs\n")
	assert.Contains(t, parent.Long, "  release   Free pending inputs\n")
	assert.NotContains(t, parent.Long, "debug")

	leaf := &cobra.Command{Use: "leaf", Long: "Leaf."}
	listSubcommands(leaf)
	assert.Equal(t, "Leaf.", leaf.Long)
}

func TestPrepareHelp(t *testing.T) {
	prepareHelp(rootCmd)
	prepareHelp(rootCmd)

	for name, group := range commandGroups {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, group, cmd.GroupID, name)
	}
	assert.NotContains(t, rootCmd.Long, "Subcommands:")
	assert.Equal(t, 1, strings.Count(walletCmd.Long, "Subcommands:"))

	_, ok := sendCmd.GetFlagCompletionFunc("wallet")
	assert.True(t, ok)
	assert.NotNil(t, walletShowCmd.ValidArgsFunction)
}

func TestWalletNameCompletion(t *testing.T) {
	withMockPrompts(t, []byte(testPassword), true)
	env := newTestEnv(t, output.FormatJSON)
	env.restoreTestWallet(t, "main")
	env.restoreTestWallet(t, "mining")
	env.restoreTestWallet(t, "savings")
	setFlag(t, &homeDir, env.cc.Cfg.Home)

	names, directive := walletNameCompletion(nil, nil, "m")
	assert.Equal(t, []string{"main", "mining"}, names)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	names, _ = walletNameCompletion(nil, nil, "")
	assert.Len(t, names, 3)

	setFlag(t, &homeDir, t.TempDir())
	names, directive = walletNameCompletion(nil, nil, "")
	assert.Empty(t, names)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"wallet", "sync", "balance", "receive", "send", "utxo", "config", "version", "completion"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, walleterr.ExitSuccess, ExitCode(nil))
	assert.Equal(t, walleterr.ExitFunds, ExitCode(walleterr.ErrInsufficientFunds))
	assert.Equal(t, walleterr.ExitInput, ExitCode(walleterr.ErrInvalidRecipient))
}

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			origIn, origOut := promptIn, promptOut
			t.Cleanup(func() { promptIn, promptOut = origIn, origOut })
			promptIn = strings.NewReader(tt.input)
			promptOut = &bytes.Buffer{}

			assert.Equal(t, tt.want, promptConfirm("Broadcast?"))
		})
	}
}

func TestPromptMnemonic(t *testing.T) {
	origIn, origOut := promptIn, promptOut
	t.Cleanup(func() { promptIn, promptOut = origIn, origOut })
	promptOut = &bytes.Buffer{}

	promptIn = strings.NewReader("abandon abandon abandon abandon\n  abandon abandon abandon abandon \nabandon abandon abandon about\n\nignored\n")
	got, err := promptMnemonic()
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, strings.Join(strings.Fields(got), " "))

	promptIn = strings.NewReader("\n")
	_, err = promptMnemonic()
	require.ErrorIs(t, err, walleterr.ErrInvalidInput)
}

func TestPromptNewPassword(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		wantErr error
	}{
		{"ok", []string{"longenough", "longenough"}, nil},
		{"short", []string{"short"}, walleterr.ErrInvalidInput},
		{"mismatch", []string{"longenough", "different1"}, walleterr.ErrInvalidInput},
		{"closed", nil, errPromptClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := promptPasswordFn
			t.Cleanup(func() { promptPasswordFn = orig })
			answers := tt.answers
			promptPasswordFn = func(string) ([]byte, error) {
				if len(answers) == 0 {
					return nil, errPromptClosed
				}
				a := answers[0]
				answers = answers[1:]
				return []byte(a), nil
			}

			pw, err := promptNewPassword()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "longenough", string(pw))
		})
	}
}
