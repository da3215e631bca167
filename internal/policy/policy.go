// Package policy holds the per-call-type rules that sit in front of the
// ledger: which caller/receiver pairings are allowed, which of them require a
// balance check, and which are support-bound and must queue for an agent.
// One generic ledger plus injected policy replaces the three per-channel
// copies of the state machine.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/pannenhilfe24/callcore/internal/types"
)

var (
	// ErrRouteNotAllowed is returned for caller/receiver pairings the
	// marketplace does not support (e.g. customer calling customer).
	ErrRouteNotAllowed = errors.New("call route not allowed")

	// ErrInsufficientBalance is returned when the paying party cannot cover
	// the lead price.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// BalanceChecker is the credit-ledger capability consumed by call policies.
// Bookkeeping itself is external; only these two operations are used.
type BalanceChecker interface {
	HasSufficientBalance(ctx context.Context, partyID string, amountCents int) (bool, error)
	Debit(ctx context.Context, partyID string, amountCents int) error
}

// Route describes the policy outcome for one caller/receiver type pairing.
type Route struct {
	// Queued marks support-bound calls that wait for an agent assignment
	// before signaling starts.
	Queued bool

	// ChargedParty returns the party debited when the call connects, or nil
	// when the route is free of charge.
	ChargedParty func(call *types.Call) *types.Party
}

// Engine authorizes call creation and applies connect-time charges.
type Engine struct {
	balance    BalanceChecker
	priceCents int
}

// NewEngine creates a policy engine. balance may be nil, which disables
// charging (used in tests and for deployments without the credit ledger).
func NewEngine(balance BalanceChecker, priceCents int) *Engine {
	return &Engine{balance: balance, priceCents: priceCents}
}

// RouteFor returns the route policy for a caller/receiver pairing, or
// ErrRouteNotAllowed. Support is addressed as the admin party type.
func RouteFor(caller, receiver types.PartyType) (Route, error) {
	switch {
	case caller == types.PartyCustomer && receiver == types.PartyPartner:
		// Partners pay for customer leads on connect.
		return Route{ChargedParty: func(call *types.Call) *types.Party {
			p := call.Receiver
			return &p
		}}, nil
	case caller == types.PartyCustomer && receiver == types.PartyAdmin:
		return Route{Queued: true}, nil
	case caller == types.PartyPartner && receiver == types.PartyAdmin:
		return Route{Queued: true}, nil
	case caller == types.PartyAdmin:
		// Support may call anyone directly.
		return Route{}, nil
	}
	return Route{}, fmt.Errorf("%w: %s -> %s", ErrRouteNotAllowed, caller, receiver)
}

// Authorize validates a prospective call before it is created. For charged
// routes the paying party must have sufficient balance up front.
func (e *Engine) Authorize(ctx context.Context, caller, receiver types.Party) (Route, error) {
	route, err := RouteFor(caller.Type, receiver.Type)
	if err != nil {
		return Route{}, err
	}

	if route.ChargedParty != nil && e.balance != nil {
		probe := types.Call{Caller: caller, Receiver: receiver}
		charged := route.ChargedParty(&probe)
		ok, err := e.balance.HasSufficientBalance(ctx, charged.ID, e.priceCents)
		if err != nil {
			return Route{}, fmt.Errorf("balance check: %w", err)
		}
		if !ok {
			return Route{}, ErrInsufficientBalance
		}
	}

	return route, nil
}

// OnConnected applies the connect-time charge for the call's route, if any.
func (e *Engine) OnConnected(ctx context.Context, call *types.Call) error {
	route, err := RouteFor(call.Caller.Type, call.Receiver.Type)
	if err != nil {
		return nil // route was validated at creation; nothing to charge
	}
	if route.ChargedParty == nil || e.balance == nil {
		return nil
	}

	charged := route.ChargedParty(call)
	if err := e.balance.Debit(ctx, charged.ID, e.priceCents); err != nil {
		return fmt.Errorf("debit %s: %w", charged.ID, err)
	}
	return nil
}
