package domain

import (
	"github.com/pkg/errors"
)

// Error kinds. Every error returned by the engine carries one of them, test with errors.Is.
var (
	// ErrConfiguration is fatal and prevents startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrNetwork triggers endpoint failover; the tick aborts and the next tick retries.
	ErrNetwork = errors.New("network error")
	// ErrTransfer covers nonce, signing and broadcast failures; no retry within the tick.
	ErrTransfer = errors.New("transfer error")
	// ErrInsufficientFundsForGas is benign: nothing is left after reserving gas.
	ErrInsufficientFundsForGas = errors.New("insufficient funds for gas")
	// ErrTickSkipped is returned when a tick starts while another sweep attempt is in flight.
	ErrTickSkipped = errors.New("sweep already in progress")
)

// KindError tags a cause with an error kind.
type KindError struct {
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ConfigurationError builds an ErrConfiguration error.
func ConfigurationError(format string, args ...any) error {
	return &KindError{Kind: ErrConfiguration, Err: errors.Errorf(format, args...)}
}

// NetworkError wraps err as an ErrNetwork error.
func NetworkError(err error, msg string) error {
	return &KindError{Kind: ErrNetwork, Err: errors.Wrap(err, msg)}
}

// TransferError wraps err as an ErrTransfer error.
func TransferError(err error, msg string) error {
	return &KindError{Kind: ErrTransfer, Err: errors.Wrap(err, msg)}
}
