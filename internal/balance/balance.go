// Package balance derives the wallet's balance categories from the output
// index and the ledger.
//
// Both sources keep running totals, so Global and Address cost O(1). Scan
// recomputes the same figures from the records and exists for verification.
package balance

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Balance is one view of the wallet's value.
type Balance struct {
	// Actual is mature, non-dust value not yet handed to the broadcaster.
	Actual uint64 `json:"actual"`
	// Pending is immature value, dust and provisional incoming value.
	Pending uint64 `json:"pending"`
	// Dust is the part of Pending held in outputs below the dust threshold.
	Dust uint64 `json:"dust"`
	// LockedDeposit is principal plus interest of deposits still locked.
	LockedDeposit uint64 `json:"locked_deposit"`
	// UnlockedDeposit is principal plus interest of deposits ready to withdraw.
	UnlockedDeposit uint64 `json:"unlocked_deposit"`
}

func combine(t outputs.Totals, d ledger.DepositTotals) Balance {
	return Balance{
		Actual:          t.Actual,
		Pending:         t.Pending(),
		Dust:            t.Dust,
		LockedDeposit:   d.Locked,
		UnlockedDeposit: d.Unlocked,
	}
}

// Global returns the balance of every tracked address together.
func Global(o *outputs.Index, l *ledger.Ledger) Balance {
	return combine(o.Global(), l.DepositGlobal())
}

// Address returns the balance of one tracked address. Untracked addresses
// fail with ErrUnknownAddress.
func Address(o *outputs.Index, l *ledger.Ledger, addr types.Address) (Balance, error) {
	t, err := o.Totals(addr)
	if err != nil {
		return Balance{}, err
	}
	return combine(t, l.DepositTotals(addr)), nil
}

// Scan recomputes the balance of addrs (all tracked addresses when empty)
// from individual outputs, provisional entries and deposits.
func Scan(o *outputs.Index, l *ledger.Ledger, addrs ...types.Address) Balance {
	selected := func(a types.Address) bool {
		if len(addrs) == 0 {
			return true
		}
		for _, x := range addrs {
			if x == a {
				return true
			}
		}
		return false
	}

	var b Balance
	age := o.Params().SpendableAge
	for _, out := range o.Unspent(addrs...) {
		switch {
		case o.Height() < out.MaturityHeight(age):
			b.Pending += out.Amount
		case out.Amount < o.Params().DustThreshold:
			b.Pending += out.Amount
			b.Dust += out.Amount
		default:
			b.Actual += out.Amount
		}
	}
	for _, p := range o.Export().Provisional {
		if o.Tracked(p.Address) && selected(p.Address) {
			b.Pending += p.Amount
		}
	}
	for i := 0; i < l.DepositCount(); i++ {
		d, err := l.Deposit(ledger.DepositID(i))
		if err != nil || !d.Live() || !o.Tracked(d.Address) || !selected(d.Address) {
			continue
		}
		if d.Locked {
			b.LockedDeposit += d.Value()
		} else {
			b.UnlockedDeposit += d.Value()
		}
	}
	return b
}
