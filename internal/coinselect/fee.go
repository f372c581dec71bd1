package coinselect

import (
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// FeePolicy prices a transaction of a given shape.
type FeePolicy interface {
	// Fee returns the fee in satoshis for numInputs P2WPKH inputs, the
	// recipient output and, if withChange, a P2WPKH change output.
	Fee(numInputs int, withChange bool) int64
}

// FeeRate charges per virtual byte of the estimated signed transaction.
type FeeRate struct {
	PerKVByte btcutil.Amount
	// RecipientScriptSize is the length of the recipient pkScript. Zero
	// means P2WPKH.
	RecipientScriptSize int
}

// NewFeeRate builds a FeeRate from a sat/vB figure.
func NewFeeRate(satPerVByte float64, recipientScriptSize int) FeeRate {
	return FeeRate{
		PerKVByte:           btcutil.Amount(math.Round(satPerVByte * 1000)),
		RecipientScriptSize: recipientScriptSize,
	}
}

// Fee implements FeePolicy.
func (r FeeRate) Fee(numInputs int, withChange bool) int64 {
	recipient := r.RecipientScriptSize
	if recipient == 0 {
		recipient = txsizes.P2WPKHPkScriptSize
	}
	outputs := []int{recipient}
	if withChange {
		outputs = append(outputs, txsizes.P2WPKHPkScriptSize)
	}
	return int64(txrules.FeeForSerializeSize(r.PerKVByte, VSize(numInputs, outputs...)))
}

// SatPerVByte reports the rate in sat/vB.
func (r FeeRate) SatPerVByte() float64 {
	return float64(r.PerKVByte) / 1000
}

// FlatFee charges the same amount whatever the shape.
type FlatFee int64

// Fee implements FeePolicy.
func (f FlatFee) Fee(int, bool) int64 {
	return int64(f)
}

// VSize estimates the virtual size of a signed transaction spending
// numInputs P2WPKH inputs into outputs with the given pkScript sizes.
func VSize(numInputs int, outputScriptSizes ...int) int {
	base := 4 + 4 + // version, lock time
		wire.VarIntSerializeSize(uint64(numInputs)) + //nolint:gosec // non-negative
		wire.VarIntSerializeSize(uint64(len(outputScriptSizes))) +
		numInputs*txsizes.RedeemP2WPKHInputSize
	for _, size := range outputScriptSizes {
		base += 8 + wire.VarIntSerializeSize(uint64(size)) + size //nolint:gosec // non-negative
	}

	weight := base * 4
	if numInputs > 0 {
		// Segwit marker and flag.
		weight += 2 + numInputs*txsizes.RedeemP2WPKHInputWitnessWeight
	}
	return (weight + 3) / 4
}

// DefaultDust is the P2WPKH dust threshold at the default relay fee.
func DefaultDust() int64 {
	return DustFor(txsizes.P2WPKHPkScriptSize)
}

// DustFor is the dust threshold of an output with a pkScript of
// scriptSize bytes at the default relay fee.
func DustFor(scriptSize int) int64 {
	return int64(txrules.GetDustThreshold(scriptSize, txrules.DefaultRelayFeePerKb))
}
