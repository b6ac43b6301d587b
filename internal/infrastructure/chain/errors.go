package chain

import "errors"

var (
	// ErrTxNotFound means the chain has no record of the transaction.
	// Distinct from transport failure: absence is evidence, unavailability
	// is not.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrAddressNotFound means the gateway has no balance record for the
	// address. Not a transaction-absence fact: IsNotFound does not match it.
	ErrAddressNotFound = errors.New("address not found")

	// ErrUnavailable means the gateway could not be reached or answered
	// with a server error; treated as transient by callers
	ErrUnavailable = errors.New("chain gateway unavailable")

	// ErrUnsupportedChain means no gateway endpoint is configured for the
	// requested chain
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// IsNotFound reports whether the error means the transaction does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTxNotFound)
}

// IsAddressNotFound reports whether the error means the gateway does not
// index the address
func IsAddressNotFound(err error) bool {
	return errors.Is(err, ErrAddressNotFound)
}

// IsUnavailable reports whether the error is a transient gateway failure
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
