package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTxDone is returned by a transaction used after Commit or Abort.
var ErrTxDone = errors.New("store: transaction already finished")

// ValidationError reports a rejected required-field constraint.
type ValidationError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store: %s.%s: %s", e.Collection, e.Field, e.Reason)
}

// TxError is returned when a transaction failed and could not be aborted cleanly.
type TxError struct {
	Err      error
	AbortErr error
}

func (e *TxError) Error() string {
	switch {
	case e.Err != nil && e.AbortErr != nil:
		return fmt.Sprintf("store: transaction failed: %v; abort failed: %v", e.Err, e.AbortErr)
	case e.AbortErr != nil:
		return fmt.Sprintf("store: abort failed: %v", e.AbortErr)
	default:
		return fmt.Sprintf("store: transaction failed: %v", e.Err)
	}
}

func (e *TxError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.AbortErr != nil {
		errs = append(errs, e.AbortErr)
	}
	return errs
}

// RequireText returns a ValidationError when v is blank.
func RequireText(collection, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Collection: collection, Field: field, Reason: "required"}
	}
	return nil
}
