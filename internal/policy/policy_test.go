package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/pannenhilfe24/callcore/internal/types"
)

type fakeBalance struct {
	balances map[string]int
	debits   []string
}

func (b *fakeBalance) HasSufficientBalance(_ context.Context, partyID string, amountCents int) (bool, error) {
	return b.balances[partyID] >= amountCents, nil
}

func (b *fakeBalance) Debit(_ context.Context, partyID string, amountCents int) error {
	if b.balances[partyID] < amountCents {
		return errors.New("overdraft")
	}
	b.balances[partyID] -= amountCents
	b.debits = append(b.debits, partyID)
	return nil
}

func TestRouteTable(t *testing.T) {
	cases := []struct {
		caller, receiver types.PartyType
		allowed          bool
		queued           bool
		charged          bool
	}{
		{types.PartyCustomer, types.PartyPartner, true, false, true},
		{types.PartyCustomer, types.PartyAdmin, true, true, false},
		{types.PartyPartner, types.PartyAdmin, true, true, false},
		{types.PartyAdmin, types.PartyCustomer, true, false, false},
		{types.PartyAdmin, types.PartyPartner, true, false, false},
		{types.PartyCustomer, types.PartyCustomer, false, false, false},
		{types.PartyPartner, types.PartyPartner, false, false, false},
		{types.PartyPartner, types.PartyCustomer, false, false, false},
	}

	for _, tc := range cases {
		route, err := RouteFor(tc.caller, tc.receiver)
		if tc.allowed != (err == nil) {
			t.Errorf("%s -> %s: allowed=%v, err=%v", tc.caller, tc.receiver, tc.allowed, err)
			continue
		}
		if !tc.allowed {
			if !errors.Is(err, ErrRouteNotAllowed) {
				t.Errorf("%s -> %s: expected ErrRouteNotAllowed, got %v", tc.caller, tc.receiver, err)
			}
			continue
		}
		if route.Queued != tc.queued {
			t.Errorf("%s -> %s: queued=%v, expected %v", tc.caller, tc.receiver, route.Queued, tc.queued)
		}
		if (route.ChargedParty != nil) != tc.charged {
			t.Errorf("%s -> %s: charged=%v, expected %v", tc.caller, tc.receiver, route.ChargedParty != nil, tc.charged)
		}
	}
}

func TestAuthorizeChecksPartnerBalance(t *testing.T) {
	balance := &fakeBalance{balances: map[string]int{"part-rich": 500, "part-poor": 100}}
	engine := NewEngine(balance, 250)

	customer := types.Party{ID: "cust-1", Type: types.PartyCustomer}

	if _, err := engine.Authorize(context.Background(),
		customer, types.Party{ID: "part-rich", Type: types.PartyPartner}); err != nil {
		t.Errorf("funded partner must be callable: %v", err)
	}

	_, err := engine.Authorize(context.Background(),
		customer, types.Party{ID: "part-poor", Type: types.PartyPartner})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	// Authorization alone never moves money.
	if len(balance.debits) != 0 {
		t.Errorf("authorize must not debit, got %v", balance.debits)
	}
}

func TestAuthorizeSupportRoutesAreFree(t *testing.T) {
	balance := &fakeBalance{balances: map[string]int{}}
	engine := NewEngine(balance, 250)

	route, err := engine.Authorize(context.Background(),
		types.Party{ID: "part-broke", Type: types.PartyPartner},
		types.Party{Type: types.PartyAdmin})
	if err != nil {
		t.Fatalf("support call must not require balance: %v", err)
	}
	if !route.Queued {
		t.Error("support route must be queued")
	}
}

func TestOnConnectedDebitsPartner(t *testing.T) {
	balance := &fakeBalance{balances: map[string]int{"part-1": 500}}
	engine := NewEngine(balance, 250)

	call := &types.Call{
		Caller:   types.Party{ID: "cust-1", Type: types.PartyCustomer},
		Receiver: types.Party{ID: "part-1", Type: types.PartyPartner},
	}

	if err := engine.OnConnected(context.Background(), call); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	if balance.balances["part-1"] != 250 {
		t.Errorf("expected balance 250 after debit, got %d", balance.balances["part-1"])
	}
	if len(balance.debits) != 1 || balance.debits[0] != "part-1" {
		t.Errorf("expected one debit for part-1, got %v", balance.debits)
	}
}

func TestOnConnectedSkipsFreeRoutes(t *testing.T) {
	balance := &fakeBalance{balances: map[string]int{}}
	engine := NewEngine(balance, 250)

	call := &types.Call{
		Caller:   types.Party{ID: "admin-1", Type: types.PartyAdmin},
		Receiver: types.Party{ID: "cust-1", Type: types.PartyCustomer},
	}
	if err := engine.OnConnected(context.Background(), call); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	if len(balance.debits) != 0 {
		t.Errorf("no debit expected, got %v", balance.debits)
	}
}

func TestNilBalanceCheckerDisablesCharging(t *testing.T) {
	engine := NewEngine(nil, 250)

	call := &types.Call{
		Caller:   types.Party{ID: "cust-1", Type: types.PartyCustomer},
		Receiver: types.Party{ID: "part-1", Type: types.PartyPartner},
	}

	if _, err := engine.Authorize(context.Background(), call.Caller, call.Receiver); err != nil {
		t.Errorf("Authorize with nil checker: %v", err)
	}
	if err := engine.OnConnected(context.Background(), call); err != nil {
		t.Errorf("OnConnected with nil checker: %v", err)
	}
}
