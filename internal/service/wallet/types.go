package wallet

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/mrz1836/satchel/internal/utxostore"
)

// DefaultWordCount is the mnemonic length of generated wallets.
const DefaultWordCount = 12

// CreateRequest contains parameters for creating or restoring a wallet.
type CreateRequest struct {
	Name    string
	Network string
	// Mnemonic restores an existing seed. Empty generates a new one.
	Mnemonic   string
	Passphrase string
	Password   []byte
	WordCount  int
	Account    uint32
}

// CreateResult is returned by Create. Mnemonic is set only when it was
// generated, so the caller can show it once.
type CreateResult struct {
	Handle   *Handle
	Mnemonic string
}

// AddressResult is a freshly handed-out receive address.
type AddressResult struct {
	Address string `json:"address"`
	Index   uint32 `json:"index"`
	Path    string `json:"path"`
}

// SendRequest describes a payment.
type SendRequest struct {
	To     string
	Amount int64
	// FeeRate in sat/vB. Zero uses the configured rate.
	FeeRate float64
	DryRun  bool
	// Confirm, when set, is shown the signed transaction before broadcast
	// and may cancel it.
	Confirm func(*SendPreview) bool
}

// SendPreview describes a signed, not yet broadcast transaction.
type SendPreview struct {
	To       string  `json:"to"`
	Amount   int64   `json:"amount"`
	Fee      int64   `json:"fee"`
	Change   int64   `json:"change"`
	Inputs   int     `json:"inputs"`
	VSize    int     `json:"vsize"`
	FeeRate  float64 `json:"fee_rate"`
	PSBT     string  `json:"psbt"`
	TxID     string  `json:"txid"`
	RawTxHex string  `json:"raw_tx"`
}

// SendResult is the outcome of Send.
type SendResult struct {
	Preview   *SendPreview
	TxID      chainhash.Hash
	Broadcast bool
	// Warning is set when the transaction was relayed but local
	// bookkeeping failed.
	Warning string
}

// UTXOView is a tracked output with its reservation state.
type UTXOView struct {
	utxostore.UTXO

	Path    string
	Pending bool
}
