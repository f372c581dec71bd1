package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Class      string            `json:"class"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorDetail flattens err for display.
func NewErrorDetail(err error) ErrorDetail {
	var we *walleterr.WalletError
	if !errors.As(err, &we) {
		return ErrorDetail{
			Code:     "GENERAL_ERROR",
			Class:    string(walleterr.ClassGeneral),
			Message:  err.Error(),
			ExitCode: walleterr.ExitGeneral,
		}
	}
	d := ErrorDetail{
		Code:       we.Code,
		Class:      string(walleterr.ClassOf(we)),
		Message:    we.Message,
		Details:    we.Details,
		Suggestion: we.Suggestion,
		ExitCode:   we.ExitCode,
	}
	if we.Cause != nil {
		d.Cause = we.Cause.Error()
	}
	return d
}

// FormatError writes err to w.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	detail := NewErrorDetail(err)
	if format == FormatJSON {
		return WriteJSON(w, ErrorOutput{Error: detail})
	}
	return formatErrorText(w, detail)
}

func formatErrorText(w io.Writer, d ErrorDetail) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if d.Cause != "" {
		fmt.Fprintf(&sb, "Cause: %s\n", d.Cause)
	}

	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}

	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
