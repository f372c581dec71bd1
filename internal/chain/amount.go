package chain

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// decimals is the number of decimal places in one bitcoin.
const decimals = 8

// ParseBTC converts a decimal BTC string such as "0.0015" into satoshis.
// More than 8 decimal places, negative values and values above the money
// supply are rejected.
func ParseBTC(amount string) (btcutil.Amount, error) {
	amount = strings.TrimSpace(amount)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, invalidAmount(amount, "not a decimal number")
	}
	if d.IsNegative() {
		return 0, invalidAmount(amount, "amount must not be negative")
	}
	sats := d.Shift(decimals)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, invalidAmount(amount, "more than 8 decimal places")
	}
	if sats.GreaterThan(decimal.NewFromInt(btcutil.MaxSatoshi)) {
		return 0, invalidAmount(amount, "exceeds the 21M BTC supply")
	}
	return btcutil.Amount(sats.IntPart()), nil
}

// FormatBTC renders sats as a BTC decimal with trailing zeros removed,
// keeping at least one decimal place: 150000 -> "0.0015", 1e8 -> "1.0".
func FormatBTC(sats int64) string {
	d := decimal.New(sats, -decimals)
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatSats renders a satoshi amount with its unit.
func FormatSats(sats int64) string {
	return decimal.NewFromInt(sats).String() + " sat"
}

func invalidAmount(amount, reason string) error {
	return walleterr.WithDetails(walleterr.ErrInvalidAmount, map[string]string{
		"amount": amount,
		"reason": reason,
	})
}
