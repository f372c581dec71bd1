package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var utxoWallet string

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var utxoCmd = &cobra.Command{
	Use:   "utxo",
	Short: "Inspect unspent outputs",
	Long:  `List the wallet's unspent outputs and release inputs held by a failed transaction.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var utxoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unspent outputs",
	Long: `List the outputs recorded by the last sync.

Example:
  satchel utxo list --wallet main
  satchel utxo list --wallet main -o json`,
	RunE: runUTXOList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var utxoReleaseCmd = &cobra.Command{
	Use:   "release <txid>",
	Short: "Make the inputs of an unconfirmed transaction spendable again",
	Long: `Release the inputs of a broadcast transaction that will never confirm,
for example after a rejection. A sync clears such entries automatically
once the chain no longer shows the inputs.

Example:
  satchel utxo release --wallet main 4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b`,
	Args: cobra.ExactArgs(1),
	RunE: runUTXORelease,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(utxoCmd)
	utxoCmd.AddCommand(utxoListCmd, utxoReleaseCmd)
	utxoCmd.PersistentFlags().StringVarP(&utxoWallet, "wallet", "w", "", "wallet name (required)")
	_ = utxoCmd.MarkPersistentFlagRequired("wallet")
}

// utxoEntry is the JSON form of one output.
type utxoEntry struct {
	OutPoint string `json:"outpoint"`
	Value    int64  `json:"value"`
	Path     string `json:"path"`
	Height   int32  `json:"height"`
	Change   bool   `json:"change"`
	Pending  bool   `json:"pending"`
	Script   string `json:"script"`
}

func runUTXOList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := sess.svc.OpenWatchOnly(utxoWallet)
	if err != nil {
		return err
	}
	defer h.Close()

	views := sess.svc.UTXOs(h)
	entries := make([]utxoEntry, 0, len(views))
	for _, v := range views {
		entries = append(entries, utxoEntry{
			OutPoint: v.OutPoint.String(),
			Value:    v.Value,
			Path:     v.Path,
			Height:   v.Height,
			Change:   v.IsChange(),
			Pending:  v.Pending,
			Script:   v.ScriptHex(),
		})
	}

	return cc.Fmt.Result(entries, func(out io.Writer) error {
		if len(entries) == 0 {
			outln(out, "No unspent outputs. Run 'satchel sync' to scan the chain.")
			return nil
		}
		tbl := output.NewTable("OUTPOINT", "VALUE", "HEIGHT", "PATH", "STATE").AlignRight(1, 2)
		for _, e := range entries {
			state := "confirmed"
			switch {
			case e.Pending:
				state = "pending"
			case e.Height == 0:
				state = "unconfirmed"
			}
			tbl.AddRow(e.OutPoint, strconv.FormatInt(e.Value, 10), strconv.FormatInt(int64(e.Height), 10), e.Path, state)
		}
		return tbl.Render(out)
	})
}

func runUTXORelease(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := sess.svc.OpenWatchOnly(utxoWallet)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := sess.svc.ReleasePending(h, args[0]); err != nil {
		return err
	}
	return output.FormatSuccess(cc.Fmt.Writer(), "released inputs of "+args[0], cc.Fmt.Format())
}
