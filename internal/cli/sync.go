package cli

import (
	"io"

	"github.com/spf13/cobra"

	walletsvc "github.com/mrz1836/satchel/internal/service/wallet"
	"github.com/mrz1836/satchel/internal/utxostore"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var syncWallet string

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scan the chain for the wallet's outputs",
	Long: `Scan the receive and change addresses against the chain source and
replace the wallet's set of unspent outputs.

Scanning continues until 'gap_limit' consecutive addresses without history
are found on each branch. No password is needed.

Example:
  satchel sync --wallet main`,
	RunE: runSync,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVarP(&syncWallet, "wallet", "w", "", "wallet name (required)")
	_ = syncCmd.MarkFlagRequired("wallet")
}

// syncResult is the JSON form of a sync.
type syncResult struct {
	Wallet         string            `json:"wallet"`
	ReceiveScanned uint32            `json:"receive_scanned"`
	ChangeScanned  uint32            `json:"change_scanned"`
	Added          int               `json:"added"`
	Removed        int               `json:"removed"`
	Cleared        []string          `json:"cleared_pending,omitempty"`
	Balance        utxostore.Balance `json:"balance"`
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := sess.svc.OpenWatchOnly(syncWallet)
	if err != nil {
		return err
	}
	defer h.Close()

	report, err := syncHandle(cmd, cc, sess, h)
	if err != nil {
		return err
	}

	res := syncResult{
		Wallet:         h.Wallet.Name,
		ReceiveScanned: report.Scanned[0],
		ChangeScanned:  report.Scanned[1],
		Added:          report.Added,
		Removed:        report.Removed,
		Balance:        report.Balance,
	}
	for _, txid := range report.Cleared {
		res.Cleared = append(res.Cleared, txid.String())
	}
	return cc.Fmt.Result(res, func(w io.Writer) error {
		out(w, "Synced %s: scanned %d receive and %d change addresses\n",
			h.Wallet.Name, report.Scanned[0], report.Scanned[1])
		out(w, "Outputs: %d new, %d spent\n", report.Added, report.Removed)
		if len(report.Cleared) > 0 {
			out(w, "Pending transactions confirmed or dropped: %d\n", len(report.Cleared))
		}
		return renderBalance(w, report.Balance)
	})
}

// syncHandle syncs h against the chain source of its network.
func syncHandle(cmd *cobra.Command, cc *CommandContext, sess *session, h *walletsvc.Handle) (*utxostore.SyncReport, error) {
	src, err := cc.NewSource(cc, h.Network())
	if err != nil {
		return nil, err
	}
	ctx, cancel := contextWithTimeout(cmd, networkTimeout(cc))
	defer cancel()
	return sess.svc.Sync(ctx, h, src)
}
