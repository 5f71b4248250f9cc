// Package balance implements the per-user, per-asset balance ledger: the
// available/locked bookkeeping that backs every order's fund lock and
// every fill's settlement.
package balance

import (
	"errors"
	"fmt"
	"sync"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownAssetForUser = errors.New("user has no balance entry for asset")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// Amount is one asset's available/locked split for a user. Both fields
// must stay non-negative; adjust enforces that.
type Amount struct {
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// userBalance is a single user's balances, guarded by its own mutex so
// concurrent settlement of two different users never contends on a
// shared lock.
type userBalance struct {
	mu      sync.Mutex
	userID  string
	balance map[common.Asset]Amount
}

// Ledger owns every user's balances. In the single-worker engine
// configuration described by the spec, these per-user mutexes are
// uncontended — they exist so the ledger would still be correct if the
// engine were ever sharded across workers.
type Ledger struct {
	mu    sync.RWMutex
	users map[string]*userBalance
}

// New constructs an empty ledger.
func New() *Ledger {
	return &Ledger{users: make(map[string]*userBalance)}
}

// Fund creates a user's balance record if absent and credits amount to
// available for asset. Used to seed initial endowments and admin
// deposits; never fails.
func (l *Ledger) Fund(userID string, asset common.Asset, amount decimal.Decimal) {
	ub := l.getOrCreate(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()

	cur := ub.balance[asset]
	cur.Available = cur.Available.Add(amount)
	ub.balance[asset] = cur
}

func (l *Ledger) getOrCreate(userID string) *userBalance {
	l.mu.RLock()
	ub, ok := l.users[userID]
	l.mu.RUnlock()
	if ok {
		return ub
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ub, ok = l.users[userID]; ok {
		return ub
	}
	ub = &userBalance{userID: userID, balance: make(map[common.Asset]Amount)}
	l.users[userID] = ub
	return ub
}

func (l *Ledger) get(userID string) (*userBalance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ub, ok := l.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	return ub, nil
}

// adjust is the single atomic primitive every other operation derives
// from: it applies deltaAvailable and deltaLocked to userID's asset
// amount, failing and leaving state untouched if either side would go
// negative.
func (l *Ledger) adjust(userID string, asset common.Asset, deltaAvailable, deltaLocked decimal.Decimal) error {
	ub, err := l.get(userID)
	if err != nil {
		return err
	}

	ub.mu.Lock()
	defer ub.mu.Unlock()
	return ub.applyLocked(asset, deltaAvailable, deltaLocked)
}

// applyLocked performs the adjustment assuming the caller already holds
// ub.mu. Factored out so cross-user settlement can hold two users'
// mutexes for the duration of a single fill's four-legged transfer.
func (ub *userBalance) applyLocked(asset common.Asset, deltaAvailable, deltaLocked decimal.Decimal) error {
	cur, ok := ub.balance[asset]
	if !ok {
		return fmt.Errorf("%w: user %q asset %q", ErrUnknownAssetForUser, ub.userID, asset)
	}

	nextAvailable := cur.Available.Add(deltaAvailable)
	nextLocked := cur.Locked.Add(deltaLocked)
	if nextAvailable.IsNegative() || nextLocked.IsNegative() {
		return fmt.Errorf("%w: user %q asset %q", ErrInsufficientFunds, ub.userID, asset)
	}

	ub.balance[asset] = Amount{Available: nextAvailable, Locked: nextLocked}
	return nil
}

// Leg is one (asset, deltaAvailable, deltaLocked) adjustment applied to
// a single user as part of a settlement.
type Leg struct {
	UserID         string
	Asset          common.Asset
	DeltaAvailable decimal.Decimal
	DeltaLocked    decimal.Decimal
}

// SettleFill applies the four balance legs a single Fill produces (see
// the settlement table in the engine package) atomically with respect
// to the two participating users: both users' mutexes are held for the
// duration, acquired in lexicographic order of user_id to match the
// deterministic ordering the ledger's concurrency discipline requires.
//
// A failure here indicates a broken engine invariant (the pre-flight
// lock should have made every leg succeed); legs already applied before
// a failing leg are unwound before returning.
func (l *Ledger) SettleFill(legs ...Leg) error {
	if len(legs) == 0 {
		return nil
	}

	userIDs := make(map[string]struct{}, 2)
	for _, lg := range legs {
		userIDs[lg.UserID] = struct{}{}
	}
	ubs := make(map[string]*userBalance, len(userIDs))
	for userID := range userIDs {
		ub, err := l.get(userID)
		if err != nil {
			return err
		}
		ubs[userID] = ub
	}

	ordered := sortedUserIDs(userIDs)
	for _, userID := range ordered {
		ubs[userID].mu.Lock()
		defer ubs[userID].mu.Unlock()
	}

	applied := make([]Leg, 0, len(legs))
	for _, lg := range legs {
		if err := ubs[lg.UserID].applyLocked(lg.Asset, lg.DeltaAvailable, lg.DeltaLocked); err != nil {
			for i := len(applied) - 1; i >= 0; i-- {
				a := applied[i]
				_ = ubs[a.UserID].applyLocked(a.Asset, a.DeltaAvailable.Neg(), a.DeltaLocked.Neg())
			}
			return err
		}
		applied = append(applied, lg)
	}
	return nil
}

func sortedUserIDs(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Lock moves amount from available to locked. Fails InsufficientFunds if
// available is short, leaving the balance untouched.
func (l *Ledger) Lock(userID string, asset common.Asset, amount decimal.Decimal) error {
	return l.adjust(userID, asset, amount.Neg(), amount)
}

// Unlock moves amount from locked back to available.
func (l *Ledger) Unlock(userID string, asset common.Asset, amount decimal.Decimal) error {
	return l.adjust(userID, asset, amount, amount.Neg())
}

// CreditAvailable adds amount directly to available, e.g. the buyer
// side of a fill receiving base asset.
func (l *Ledger) CreditAvailable(userID string, asset common.Asset, amount decimal.Decimal) error {
	return l.adjust(userID, asset, amount, decimal.Zero)
}

// DebitLocked removes amount directly from locked, e.g. the seller side
// of a fill releasing base asset it had locked to cover the order.
func (l *Ledger) DebitLocked(userID string, asset common.Asset, amount decimal.Decimal) error {
	return l.adjust(userID, asset, decimal.Zero, amount.Neg())
}

// Snapshot returns a copy of userID's balance map, for read-only
// inspection (tests, admin tooling). Returns ErrUnknownUser if the user
// has never been funded.
func (l *Ledger) Snapshot(userID string) (map[common.Asset]Amount, error) {
	ub, err := l.get(userID)
	if err != nil {
		return nil, err
	}

	ub.mu.Lock()
	defer ub.mu.Unlock()

	out := make(map[common.Asset]Amount, len(ub.balance))
	for asset, amount := range ub.balance {
		out[asset] = amount
	}
	return out, nil
}
