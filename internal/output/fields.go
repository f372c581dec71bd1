package output

import (
	"fmt"
	"io"
	"strings"
)

// Fields collects "Label: value" lines and writes them with the values
// aligned.
type Fields struct {
	w    io.Writer
	rows [][2]string
}

// NewFields starts a field block for w.
func NewFields(w io.Writer) *Fields {
	return &Fields{w: w}
}

// Add appends one line.
func (f *Fields) Add(label, value string) *Fields {
	f.rows = append(f.rows, [2]string{label, value})
	return f
}

// Addf appends one line with a formatted value.
func (f *Fields) Addf(label, format string, args ...any) *Fields {
	return f.Add(label, fmt.Sprintf(format, args...))
}

// Flush writes the collected lines and empties the block.
func (f *Fields) Flush() error {
	width := 0
	for _, r := range f.rows {
		width = max(width, len(r[0])+1)
	}
	var sb strings.Builder
	for _, r := range f.rows {
		fmt.Fprintf(&sb, "%-*s %s\n", width, r[0]+":", r[1])
	}
	f.rows = f.rows[:0]
	_, err := io.WriteString(f.w, sb.String())
	return err
}
