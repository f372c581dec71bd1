package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/utxostore"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	balanceWallet string
	balanceSync   bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet balance",
	Long: `Show the balance recorded by the last sync, split into confirmed,
unconfirmed and pending (spent by a broadcast transaction not yet seen by
a sync).

Example:
  satchel balance --wallet main
  satchel balance --wallet main --sync -o json`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceWallet, "wallet", "w", "", "wallet name (required)")
	balanceCmd.Flags().BoolVar(&balanceSync, "sync", false, "sync before reporting")
	_ = balanceCmd.MarkFlagRequired("wallet")
}

// balanceResult is the JSON form of a balance.
type balanceResult struct {
	Wallet  string `json:"wallet"`
	Network string `json:"network"`
	utxostore.Balance

	Spendable int64 `json:"spendable"`
}

func runBalance(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := sess.svc.OpenWatchOnly(balanceWallet)
	if err != nil {
		return err
	}
	defer h.Close()

	if balanceSync {
		if _, err := syncHandle(cmd, cc, sess, h); err != nil {
			return err
		}
	}

	bal := sess.svc.Balance(h)
	res := balanceResult{
		Wallet:    h.Wallet.Name,
		Network:   h.Wallet.Network,
		Balance:   bal,
		Spendable: bal.Total(cc.Cfg.Wallet.IncludeUnconfirmed),
	}
	return cc.Fmt.Result(res, func(out io.Writer) error {
		return renderBalance(out, bal)
	})
}

// renderBalance writes the balance buckets as a table.
func renderBalance(w io.Writer, b utxostore.Balance) error {
	tbl := output.NewTable("", "BTC", "SAT").AlignRight(1, 2)
	row := func(label string, sats int64) {
		tbl.AddRow(label, chain.FormatBTC(sats), chain.FormatSats(sats))
	}
	row("Confirmed", b.Confirmed)
	row("Unconfirmed", b.Unconfirmed)
	if b.Pending > 0 {
		row("Pending", b.Pending)
	}
	row("Total", b.Confirmed+b.Unconfirmed)
	return tbl.Render(w)
}
