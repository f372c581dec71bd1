package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/descriptor"
	"github.com/mrz1836/satchel/internal/keycrypt"
	"github.com/mrz1836/satchel/internal/output"
	walletsvc "github.com/mrz1836/satchel/internal/service/wallet"
	"github.com/mrz1836/satchel/internal/wallet"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	createWords       int
	createPassphrase  bool
	createAccount     uint32
	restoreMnemonic   string
	restorePassphrase bool
	showPrivate       bool
)

// walletCmd is the parent command for wallet operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallets",
	Long:  `Create, restore, list and inspect wallets.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new wallet",
	Long: `Create a new wallet from a freshly generated BIP39 mnemonic.

The mnemonic is displayed once. Write it down and store it securely.
You will be prompted for a password to encrypt the wallet file.

Example:
  satchel wallet create main
  satchel wallet create main --words 24 --passphrase
  satchel wallet create savings --network mainnet`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletCreate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore a wallet from its mnemonic",
	Long: `Restore a wallet from an existing BIP39 mnemonic.

Without --mnemonic the phrase is read from standard input. Numbered or
bulleted lists are accepted. Run 'satchel sync' afterwards to find the
wallet's funds.

Example:
  satchel wallet restore backup
  satchel wallet restore backup --passphrase`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletRestore,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all wallets",
	Aliases: []string{"ls"},
	Long: `List all wallets in the satchel data directory.

Example:
  satchel wallet list
  satchel wallet list -o json`,
	RunE: runWalletList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show wallet details and descriptors",
	Long: `Show a wallet's network, identity and output descriptors.

Descriptors are public by default and can be imported into a watch-only
wallet. --private asks for the password and prints the private
descriptors instead.

Example:
  satchel wallet show main
  satchel wallet show main --private`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletShow,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletCreateCmd, walletRestoreCmd, walletListCmd, walletShowCmd)

	walletCreateCmd.Flags().IntVar(&createWords, "words", walletsvc.DefaultWordCount, "mnemonic length: 12, 15, 18, 21 or 24")
	walletCreateCmd.Flags().BoolVar(&createPassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
	walletCreateCmd.Flags().Uint32Var(&createAccount, "account", 0, "BIP84 account number")

	walletRestoreCmd.Flags().StringVar(&restoreMnemonic, "mnemonic", "", "mnemonic phrase (read from stdin when omitted)")
	walletRestoreCmd.Flags().BoolVar(&restorePassphrase, "passphrase", false, "prompt for the BIP39 passphrase")
	walletRestoreCmd.Flags().Uint32Var(&createAccount, "account", 0, "BIP84 account number")

	walletShowCmd.Flags().BoolVar(&showPrivate, "private", false, "show private descriptors (requires password)")
}

// walletCreated is the JSON form of a created or restored wallet.
type walletCreated struct {
	Name         string `json:"name"`
	ID           string `json:"id"`
	Network      string `json:"network"`
	Fingerprint  string `json:"master_fingerprint"`
	Mnemonic     string `json:"mnemonic,omitempty"`
	FirstAddress string `json:"first_address"`
}

func runWalletCreate(cmd *cobra.Command, args []string) error {
	return createWallet(cmd, args[0], "", createPassphrase)
}

func runWalletRestore(cmd *cobra.Command, args []string) error {
	mnemonic := restoreMnemonic
	if mnemonic == "" {
		var err error
		if mnemonic, err = promptMnemonicFn(); err != nil {
			return err
		}
	}
	return createWallet(cmd, args[0], mnemonic, restorePassphrase)
}

func createWallet(cmd *cobra.Command, name, mnemonic string, askPassphrase bool) error {
	cc := GetCmdContext(cmd)

	if err := wallet.ValidateWalletName(name); err != nil {
		return err
	}
	if mnemonic != "" {
		if err := wallet.ValidateMnemonic(wallet.NormalizeMnemonicInput(mnemonic)); err != nil {
			return err
		}
	}

	var passphrase string
	if askPassphrase {
		var err error
		if passphrase, err = promptPassphraseFn(); err != nil {
			return err
		}
	}
	password, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer keycrypt.Wipe(password)

	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.svc.Create(cmd.Context(), walletsvc.CreateRequest{
		Name:       name,
		Network:    cc.Cfg.Network,
		Mnemonic:   mnemonic,
		Passphrase: passphrase,
		Password:   password,
		WordCount:  createWords,
		Account:    createAccount,
	})
	if err != nil {
		return err
	}
	defer res.Handle.Close()

	first, err := res.Handle.FirstAddress()
	if err != nil {
		return err
	}
	w := res.Handle.Wallet
	result := walletCreated{
		Name:         w.Name,
		ID:           w.ID,
		Network:      w.Network,
		Fingerprint:  w.MasterFingerprint,
		Mnemonic:     res.Mnemonic,
		FirstAddress: first,
	}
	return cc.Fmt.Result(result, func(out io.Writer) error {
		if res.Mnemonic != "" {
			displayMnemonic(out, res.Mnemonic)
		}
		return output.NewFields(out).
			Add("Wallet", w.Name).
			Add("Network", w.Network).
			Add("ID", descriptor.WalletID(w.ID).Short()).
			Add("Fingerprint", w.MasterFingerprint).
			Add("First address", first).
			Flush()
	})
}

// displayMnemonic prints the words numbered in columns of four.
func displayMnemonic(w io.Writer, mnemonic string) {
	words := strings.Fields(mnemonic)
	outln(w, "Write down these words in order and keep them offline:")
	outln(w)
	for i, word := range words {
		out(w, "%3d. %-10s", i+1, word)
		if (i+1)%4 == 0 || i == len(words)-1 {
			outln(w)
		}
	}
	outln(w)
}

func runWalletList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	storage := wallet.NewFileStorage(cc.Cfg.WalletsDir())

	names, err := storage.List()
	if err != nil {
		return err
	}
	summaries := make([]wallet.Summary, 0, len(names))
	for _, name := range names {
		w, err := storage.LoadMetadata(name)
		if err != nil {
			cc.Log.Error("reading wallet %s: %v", name, err)
			continue
		}
		summaries = append(summaries, w.ToSummary())
	}

	return cc.Fmt.Result(summaries, func(out io.Writer) error {
		if len(summaries) == 0 {
			outln(out, "No wallets found. Create one with: satchel wallet create <name>")
			return nil
		}
		tbl := output.NewTable("NAME", "NETWORK", "ID", "CREATED")
		for _, s := range summaries {
			tbl.AddRow(s.Name, s.Network, descriptor.WalletID(s.ID).Short(), s.CreatedAt.Local().Format(time.DateTime))
		}
		return tbl.Render(out)
	})
}

// walletDetails is the JSON form of wallet show.
type walletDetails struct {
	Name        string    `json:"name"`
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Account     uint32    `json:"account"`
	Fingerprint string    `json:"master_fingerprint"`
	Receive     string    `json:"receive_descriptor"`
	Change      string    `json:"change_descriptor"`
	Private     bool      `json:"private"`
	CreatedAt   time.Time `json:"created_at"`
}

func runWalletShow(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	sess, err := openSession(cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	h, err := openHandle(sess, args[0], showPrivate)
	if err != nil {
		return err
	}
	defer h.Close()

	receive, change := h.Descriptors()
	if showPrivate {
		if receive, change, err = h.PrivateDescriptors(); err != nil {
			return err
		}
	}
	w := h.Wallet
	details := walletDetails{
		Name:        w.Name,
		ID:          w.ID,
		Network:     w.Network,
		Account:     w.Account,
		Fingerprint: w.MasterFingerprint,
		Receive:     receive,
		Change:      change,
		Private:     showPrivate,
		CreatedAt:   w.CreatedAt,
	}
	return cc.Fmt.Result(details, func(out io.Writer) error {
		err := output.NewFields(out).
			Add("Wallet", w.Name).
			Add("Network", w.Network).
			Add("ID", w.ID).
			Add("Fingerprint", w.MasterFingerprint).
			Addf("Account", "%d", w.Account).
			Add("Created", w.CreatedAt.Local().Format(time.DateTime)).
			Flush()
		if err != nil {
			return err
		}
		outln(out)
		if showPrivate {
			outln(out, "PRIVATE descriptors. Anyone holding these can spend the wallet's funds.")
		}
		return output.NewFields(out).Add("Receive", receive).Add("Change", change).Flush()
	})
}

// openHandle opens name with its password when needsKeys is set and
// watch-only otherwise.
func openHandle(sess *session, name string, needsKeys bool) (*walletsvc.Handle, error) {
	if !needsKeys {
		return sess.svc.OpenWatchOnly(name)
	}
	if err := sess.svc.ValidateExists(name); err != nil {
		return nil, err
	}
	password, err := promptPasswordFn(fmt.Sprintf("Password for wallet '%s': ", name))
	if err != nil {
		return nil, err
	}
	defer keycrypt.Wipe(password)
	return sess.svc.Open(name, password)
}
