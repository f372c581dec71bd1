// Package output renders command results as text for people and JSON for
// scripts.
package output

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Format selects how results are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	// FormatAuto picks text on a terminal and JSON when piped.
	FormatAuto Format = "auto"
)

// ParseFormat reads a --output or output.default_format value. An empty
// value means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatText, FormatJSON, FormatAuto:
		return f, nil
	default:
		return FormatAuto, walleterr.WithSuggestion(
			walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"format": s}),
			"Use one of: text, json, auto",
		)
	}
}

// Resolve settles FormatAuto for w.
func Resolve(f Format, w io.Writer) Format {
	if f != FormatAuto {
		return f
	}
	if IsTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && file != nil && term.IsTerminal(int(file.Fd())) //nolint:gosec // fd fits in int
}

// Formatter writes each command result in one resolved format.
type Formatter struct {
	format Format
	w      io.Writer
}

// NewFormatter returns a Formatter writing to w. FormatAuto is resolved
// against w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: Resolve(format, w), w: w}
}

func (f *Formatter) Format() Format    { return f.format }
func (f *Formatter) Writer() io.Writer { return f.w }
func (f *Formatter) IsJSON() bool      { return f.format == FormatJSON }

// Result writes v as JSON, or hands the writer to text.
func (f *Formatter) Result(v any, text func(w io.Writer) error) error {
	if f.IsJSON() {
		return WriteJSON(f.w, v)
	}
	return text(f.w)
}

// WriteJSON writes v indented, without HTML escaping so payment URIs keep
// their '&'.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
