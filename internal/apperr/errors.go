// Package apperr defines the error taxonomy shared by the billing,
// wallet and reservation layers.  Callers classify an error with
// errors.Is against one of the sentinel kinds; handlers translate the
// kind into an HTTP status.
package apperr

import "errors"

// Sentinel kinds.
var (
	ErrValidation        = errors.New("validation")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrState             = errors.New("invalid state")
	ErrInternal          = errors.New("internal")
)

// Error carries a kind, a client-safe message and an optional cause.  The
// cause is for logs only.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is matches the sentinel kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error        { return &Error{Kind: ErrValidation, Message: msg} }
func Conflict(msg string) error          { return &Error{Kind: ErrConflict, Message: msg} }
func InsufficientFunds(msg string) error { return &Error{Kind: ErrInsufficientFunds, Message: msg} }
func NotFound(msg string) error          { return &Error{Kind: ErrNotFound, Message: msg} }
func State(msg string) error             { return &Error{Kind: ErrState, Message: msg} }

// Internal wraps a storage or infrastructure failure.  The message is
// always the generic "internal error".
func Internal(err error) error {
	return &Error{Kind: ErrInternal, Message: "internal error", Err: err}
}

// Wrap returns err unchanged when it already carries a kind, otherwise it
// classifies it as internal.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Internal(err)
}

// Public returns the message that may be shown to a client.
func Public(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != ErrInternal {
		return ae.Message
	}
	return "internal error"
}
