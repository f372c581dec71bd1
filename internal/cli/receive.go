package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	receiveWallet string
	receiveAmount string
	receiveLabel  string
	receiveNoQR   bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show a new receiving address",
	Long: `Hand out the next unused receive address and show it with a QR code.

Every call returns a new address. An optional amount and label are
encoded in the QR code as a BIP21 payment request.

Example:
  satchel receive --wallet main
  satchel receive --wallet main --amount 0.001 --label "Invoice 42"`,
	RunE: runReceive,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().StringVarP(&receiveWallet, "wallet", "w", "", "wallet name (required)")
	receiveCmd.Flags().StringVar(&receiveAmount, "amount", "", "requested amount in BTC")
	receiveCmd.Flags().StringVarP(&receiveLabel, "label", "l", "", "label for the payment request")
	receiveCmd.Flags().BoolVar(&receiveNoQR, "no-qr", false, "do not render a QR code")
	_ = receiveCmd.MarkFlagRequired("wallet")
}

// receiveResult is the JSON form of a receive address.
type receiveResult struct {
	Wallet  string `json:"wallet"`
	Address string `json:"address"`
	Index   uint32 `json:"index"`
	Path    string `json:"path"`
	URI     string `json:"uri"`
}

func runReceive(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	var amount int64
	if receiveAmount != "" {
		a, err := chain.ParseBTC(receiveAmount)
		if err != nil {
			return err
		}
		amount = int64(a)
	}

	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := sess.svc.OpenWatchOnly(receiveWallet)
	if err != nil {
		return err
	}
	defer h.Close()

	addr, err := sess.svc.Address(h)
	if err != nil {
		return err
	}
	res := receiveResult{
		Wallet:  h.Wallet.Name,
		Address: addr.Address,
		Index:   addr.Index,
		Path:    addr.Path,
		URI:     output.PaymentURI(addr.Address, amount, receiveLabel),
	}
	return cc.Fmt.Result(res, func(out io.Writer) error {
		f := output.NewFields(out).Add("Address", res.Address).Add("Path", res.Path)
		if amount > 0 {
			f.Add("Amount", chain.FormatBTC(amount)+" BTC")
		}
		if err := f.Flush(); err != nil {
			return err
		}
		if receiveNoQR {
			return nil
		}
		outln(out)
		return output.RenderQR(out, res.URI, output.DefaultQRConfig())
	})
}
