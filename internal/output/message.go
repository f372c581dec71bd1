package output

import (
	"fmt"
	"io"
)

// Messenger prints status lines. With Plain set, the symbol prefixes are
// replaced by words.
type Messenger struct {
	Out   io.Writer
	Err   io.Writer
	Plain bool
}

func (m *Messenger) prefix(symbol, word string) string {
	if m.Plain {
		return word + ": "
	}
	return symbol + " "
}

// Infof prints an informational line to Out.
func (m *Messenger) Infof(format string, args ...any) {
	_, _ = fmt.Fprintln(m.Out, m.prefix("ℹ️ ", "info")+fmt.Sprintf(format, args...))
}

// Warnf prints a warning to Err.
func (m *Messenger) Warnf(format string, args ...any) {
	_, _ = fmt.Fprintln(m.Err, m.prefix("⚠️ ", "warning")+fmt.Sprintf(format, args...))
}

// Successf prints a success line to Out.
func (m *Messenger) Successf(format string, args ...any) {
	_, _ = fmt.Fprintln(m.Out, m.prefix("✅", "ok")+fmt.Sprintf(format, args...))
}
