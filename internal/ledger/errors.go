package ledger

import "errors"

var (
	// ErrNotFound means no call exists with the given ID.
	ErrNotFound = errors.New("call not found")

	// ErrInvalidTransition means the requested status change is not legal
	// from the call's current state. Repeating the transition that produced
	// the current state is not an error (idempotent double-hangup).
	ErrInvalidTransition = errors.New("invalid call transition")

	// ErrInvalidParty means a participant is missing an ID or has an
	// unknown party type.
	ErrInvalidParty = errors.New("invalid call party")

	// ErrSelfCall means caller and receiver are the same party.
	ErrSelfCall = errors.New("self call not allowed")

	// ErrCallerBusy means the caller already participates in a non-terminal call.
	ErrCallerBusy = errors.New("caller already in a call")

	// ErrReceiverBusy means the receiver already participates in a
	// non-terminal call.
	ErrReceiverBusy = errors.New("receiver unavailable")
)
