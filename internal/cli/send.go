package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/output"
	walletsvc "github.com/mrz1836/satchel/internal/service/wallet"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	sendWallet  string
	sendTo      string
	sendAmount  string
	sendSats    int64
	sendFeeRate float64
	sendDryRun  bool
	sendYes     bool
	sendNoSync  bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send bitcoin to an address",
	Long: `Select coins, sign and broadcast a payment.

The wallet is synced first unless --no-sync is given. Change goes to a
fresh change address. The signed transaction is shown for confirmation
before it is broadcast; --dry-run stops there and prints the PSBT.

Examples:
  satchel send --wallet main --to tb1q... --amount 0.0015
  satchel send --wallet main --to tb1q... --sats 150000 --fee-rate 5
  satchel send --wallet main --to tb1q... --amount 0.01 --dry-run -o json`,
	RunE: runSend,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendWallet, "wallet", "w", "", "wallet name (required)")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient address (required)")
	sendCmd.Flags().StringVar(&sendAmount, "amount", "", "amount in BTC")
	sendCmd.Flags().Int64Var(&sendSats, "sats", 0, "amount in satoshis")
	sendCmd.Flags().Float64Var(&sendFeeRate, "fee-rate", 0, "fee rate in sat/vB (default from config)")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "sign but do not broadcast")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "skip the confirmation prompt")
	sendCmd.Flags().BoolVar(&sendNoSync, "no-sync", false, "spend from the last synced state")

	sendCmd.MarkFlagsMutuallyExclusive("amount", "sats")
	sendCmd.MarkFlagsOneRequired("amount", "sats")
	_ = sendCmd.MarkFlagRequired("wallet")
	_ = sendCmd.MarkFlagRequired("to")
}

// sendOutcome is the JSON form of a send.
type sendOutcome struct {
	*walletsvc.SendPreview

	Broadcast bool   `json:"broadcast"`
	Warning   string `json:"warning,omitempty"`
}

func runSend(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	amount, err := sendAmountSats()
	if err != nil {
		return err
	}

	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := openHandle(sess, sendWallet, true)
	if err != nil {
		return err
	}
	defer h.Close()

	src, err := cc.NewSource(cc, h.Network())
	if err != nil {
		return err
	}
	if !sendNoSync {
		if _, err := syncHandle(cmd, cc, sess, h); err != nil {
			return err
		}
	}

	req := walletsvc.SendRequest{
		To:      sendTo,
		Amount:  amount,
		FeeRate: sendFeeRate,
		DryRun:  sendDryRun,
	}
	if !sendYes {
		req.Confirm = func(p *walletsvc.SendPreview) bool {
			renderPreview(promptOut, p)
			return promptConfirmFn("Broadcast this transaction?")
		}
	}

	ctx, cancel := contextWithTimeout(cmd, networkTimeout(cc))
	defer cancel()
	res, err := sess.svc.Send(ctx, h, src, req)
	if err != nil {
		if walleterr.Is(err, walleterr.ErrBroadcastRejected) {
			return walleterr.WithSuggestion(err,
				"the inputs stay reserved until a sync; 'satchel utxo release <txid>' frees them now")
		}
		return err
	}

	outcome := sendOutcome{SendPreview: res.Preview, Broadcast: res.Broadcast, Warning: res.Warning}
	return cc.Fmt.Result(outcome, func(out io.Writer) error {
		if !res.Broadcast {
			renderPreview(out, res.Preview)
			outln(out)
			outln(out, "Dry run, not broadcast. PSBT:")
			outln(out, res.Preview.PSBT)
			return nil
		}
		out(out, "Broadcast %s\n", res.TxID)
		if res.Warning != "" {
			out(out, "Warning: %s\n", res.Warning)
		}
		return nil
	})
}

// sendAmountSats resolves --amount or --sats.
func sendAmountSats() (int64, error) {
	if sendAmount != "" {
		a, err := chain.ParseBTC(sendAmount)
		if err != nil {
			return 0, err
		}
		return int64(a), nil
	}
	if sendSats <= 0 {
		return 0, walleterr.WithDetails(walleterr.ErrInvalidAmount, map[string]string{
			"amount": strconv.FormatInt(sendSats, 10),
			"reason": "amount must be positive",
		})
	}
	return sendSats, nil
}

func renderPreview(w io.Writer, p *walletsvc.SendPreview) {
	f := output.NewFields(w).
		Add("To", p.To).
		Addf("Amount", "%s BTC (%s)", chain.FormatBTC(p.Amount), chain.FormatSats(p.Amount)).
		Addf("Fee", "%s (%.1f sat/vB, %d vB)", chain.FormatSats(p.Fee), p.FeeRate, p.VSize)
	if p.Change > 0 {
		f.Add("Change", chain.FormatSats(p.Change))
	}
	_ = f.Add("Inputs", strconv.Itoa(p.Inputs)).Add("Txid", p.TxID).Flush()
}
