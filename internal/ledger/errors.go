package ledger

import "errors"

// Business-level failures are returned as typed sentinel errors; the engine
// never panics on them and leaves no partial state behind on any failure path.
var (
	// ErrNotFound means the referenced account id is not currently active
	// (or, for a historical balance, did not exist at that time). CancelPayment
	// also returns it for an unknown payment id.
	ErrNotFound = errors.New("account not found")

	// ErrInsufficientFunds means the debit would bring the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyExists means CreateAccount hit an id that is still active.
	ErrAlreadyExists = errors.New("account already exists")

	// ErrInvalidArgument covers same-account transfers and merges, negative
	// amounts, non-positive payment amounts and negative delays.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTerminal means a cancel hit a payment that is already canceled,
	// already processed, or owned by a different account.
	ErrTerminal = errors.New("payment is terminal")
)
