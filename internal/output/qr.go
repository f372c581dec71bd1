package output

import (
	"io"
	"net/url"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"

	"github.com/mrz1836/satchel/internal/chain"
)

// QRConfig configures QR code rendering.
type QRConfig struct {
	Level      qr.Level
	QuietZone  int
	HalfBlocks bool
}

// DefaultQRConfig returns defaults for terminal QR rendering.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.L,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// CanRenderQR checks if the output writer is a terminal suitable for QR rendering.
func CanRenderQR(w io.Writer) bool {
	return IsTerminal(w)
}

// RenderQR renders data as a QR code when w is a terminal and is a no-op
// otherwise.
func RenderQR(w io.Writer, data string, cfg QRConfig) error {
	if !CanRenderQR(w) {
		return nil
	}
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return nil
}

// PaymentURI builds a BIP21 URI. Bech32 addresses are upper-cased so the
// QR code can use alphanumeric mode.
func PaymentURI(address string, amountSats int64, label string) string {
	uri := "bitcoin:" + strings.ToUpper(address)
	q := url.Values{}
	if amountSats > 0 {
		q.Set("amount", chain.FormatBTC(amountSats))
	}
	if label != "" {
		q.Set("label", label)
	}
	if len(q) > 0 {
		uri += "?" + q.Encode()
	}
	return uri
}
