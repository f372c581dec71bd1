// Package errors provides structured error handling for satchel.
// It defines sentinel errors, error classes, exit codes, and helpers for
// adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input
	ExitAuth     = 3 // Authentication failed
	ExitNotFound = 4 // Resource not found
	ExitFunds    = 5 // Insufficient funds or rejected spend
	ExitResource = 6 // Chain source or store unavailable
	ExitCrypto   = 7 // Derivation or signing failure
)

// Class groups error codes by how a caller should react to them.
type Class string

// Error classes.
const (
	// ClassGeneral is used for errors that fit no other class.
	ClassGeneral Class = "general"
	// ClassInput errors are reported immediately and never retried.
	ClassInput Class = "input"
	// ClassResource errors are transient; the caller may retry with backoff.
	ClassResource Class = "resource"
	// ClassFund errors carry computed amounts so the caller can adjust.
	ClassFund Class = "fund"
	// ClassCrypto errors are fatal for the affected operation.
	ClassCrypto Class = "crypto"
)

// WalletError is the structured error type for satchel.
type WalletError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Class      Class             // Error class
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *WalletError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WalletError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WalletError.
func (e *WalletError) Is(target error) bool {
	var t *WalletError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		Class:    ClassGeneral,
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &WalletError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrAuthentication = &WalletError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		Class:    ClassInput,
		ExitCode: ExitAuth,
	}

	ErrNotFound = &WalletError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		Class:    ClassInput,
		ExitCode: ExitNotFound,
	}

	// Wallet errors.
	ErrWalletNotFound = &WalletError{
		Code:     "WALLET_NOT_FOUND",
		Message:  "wallet not found",
		Class:    ClassInput,
		ExitCode: ExitNotFound,
	}

	ErrWalletExists = &WalletError{
		Code:     "WALLET_EXISTS",
		Message:  "wallet already exists",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrDecryptionFailed = &WalletError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong password or corrupted file",
		Class:    ClassInput,
		ExitCode: ExitAuth,
	}

	// Input errors.
	ErrInvalidMnemonic = &WalletError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrInvalidPath = &WalletError{
		Code:     "INVALID_PATH",
		Message:  "invalid derivation path",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrInvalidDescriptor = &WalletError{
		Code:     "INVALID_DESCRIPTOR",
		Message:  "invalid output descriptor",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &WalletError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrInvalidRecipient = &WalletError{
		Code:     "INVALID_RECIPIENT",
		Message:  "invalid recipient",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &WalletError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrInvalidNetwork = &WalletError{
		Code:     "INVALID_NETWORK",
		Message:  "unknown bitcoin network",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrBuildInProgress = &WalletError{
		Code:     "BUILD_IN_PROGRESS",
		Message:  "transaction builder is not in the required state",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	ErrOutpointLocked = &WalletError{
		Code:     "OUTPOINT_LOCKED",
		Message:  "output is already reserved by another build",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}

	// Resource errors.
	ErrChainUnavailable = &WalletError{
		Code:     "CHAIN_UNAVAILABLE",
		Message:  "chain source unavailable",
		Class:    ClassResource,
		ExitCode: ExitResource,
	}

	ErrStoreUnavailable = &WalletError{
		Code:     "STORE_UNAVAILABLE",
		Message:  "wallet store unavailable",
		Class:    ClassResource,
		ExitCode: ExitResource,
	}

	// Fund errors.
	ErrInsufficientFunds = &WalletError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		Class:    ClassFund,
		ExitCode: ExitFunds,
	}

	ErrDustOutput = &WalletError{
		Code:     "DUST_OUTPUT",
		Message:  "output amount is below the dust threshold",
		Class:    ClassFund,
		ExitCode: ExitFunds,
	}

	ErrFeeTooHigh = &WalletError{
		Code:     "FEE_TOO_HIGH",
		Message:  "fee rate exceeds the configured maximum",
		Class:    ClassFund,
		ExitCode: ExitFunds,
	}

	ErrBroadcastRejected = &WalletError{
		Code:     "BROADCAST_REJECTED",
		Message:  "transaction rejected by chain source",
		Class:    ClassFund,
		ExitCode: ExitFunds,
	}

	// Crypto errors.
	ErrDerivationOverflow = &WalletError{
		Code:     "DERIVATION_OVERFLOW",
		Message:  "derivation index out of range",
		Class:    ClassCrypto,
		ExitCode: ExitCrypto,
	}

	ErrMissingKey = &WalletError{
		Code:     "MISSING_KEY",
		Message:  "signing key cannot be derived for input",
		Class:    ClassCrypto,
		ExitCode: ExitCrypto,
	}

	ErrSignatureFailed = &WalletError{
		Code:     "SIGNATURE_FAILED",
		Message:  "failed to sign transaction input",
		Class:    ClassCrypto,
		ExitCode: ExitCrypto,
	}

	ErrScriptValidation = &WalletError{
		Code:     "SCRIPT_VALIDATION_FAILED",
		Message:  "finalized input does not satisfy its output script",
		Class:    ClassCrypto,
		ExitCode: ExitCrypto,
	}

	// Config errors.
	ErrConfigNotFound = &WalletError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		Class:    ClassInput,
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &WalletError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		Class:    ClassInput,
		ExitCode: ExitInput,
	}
)

// New creates a new WalletError with the given code and message.
func New(code, message string) *WalletError {
	return &WalletError{
		Code:     code,
		Message:  message,
		Class:    ClassGeneral,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    fmt.Sprintf("%s: %s", msg, we.Message),
			Class:      we.Class,
			Details:    we.Details,
			Suggestion: we.Suggestion,
			Cause:      err,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Class:    ClassGeneral,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error. Existing details are kept unless
// overridden by a key in details.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		merged := make(map[string]string, len(we.Details)+len(details))
		for k, v := range we.Details {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Class:      we.Class,
			Details:    merged,
			Suggestion: we.Suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Class:    ClassGeneral,
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Class:      we.Class,
			Details:    we.Details,
			Suggestion: suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Class:      ClassGeneral,
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// WithCause returns a copy of the sentinel err with cause attached.
// Use it to keep a sentinel's identity while recording the underlying failure.
func WithCause(err, cause error) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if !errors.As(err, &we) {
		return fmt.Errorf("%w: %w", err, cause)
	}

	return &WalletError{
		Code:       we.Code,
		Message:    we.Message,
		Class:      we.Class,
		Details:    we.Details,
		Suggestion: we.Suggestion,
		Cause:      cause,
		ExitCode:   we.ExitCode,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var we *WalletError
	if errors.As(err, &we) {
		return we.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code
	}
	return "GENERAL_ERROR"
}

// ClassOf returns the class of an error, or ClassGeneral for foreign errors.
func ClassOf(err error) Class {
	var we *WalletError
	if errors.As(err, &we) && we.Class != "" {
		return we.Class
	}
	return ClassGeneral
}

// IsRetryable reports whether the caller may retry the failed operation.
// Only resource errors qualify.
func IsRetryable(err error) bool {
	return err != nil && ClassOf(err) == ClassResource
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
