package ledger

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

type depositClass uint8

const (
	depositNone depositClass = iota
	depositLocked
	depositUnlocked
)

func classOf(d *Deposit) depositClass {
	switch {
	case !d.Live():
		return depositNone
	case d.Locked:
		return depositLocked
	default:
		return depositUnlocked
	}
}

func (l *Ledger) accountDeposit(d *Deposit, c depositClass, add bool) {
	if c == depositNone {
		return
	}
	t, ok := l.depositTotals[d.Address]
	if !ok {
		t = &DepositTotals{}
		l.depositTotals[d.Address] = t
	}
	v := d.Value()
	totals := []*DepositTotals{t}
	if !l.untracked[d.Address] {
		totals = append(totals, &l.depositGlobal)
	}
	for _, tot := range totals {
		switch {
		case c == depositLocked && add:
			tot.Locked += v
		case c == depositLocked:
			tot.Locked -= v
		case add:
			tot.Unlocked += v
		default:
			tot.Unlocked -= v
		}
	}
}

func (l *Ledger) updateDeposit(d *Deposit, mutate func()) {
	before := classOf(d)
	mutate()
	after := classOf(d)
	if before != after {
		l.accountDeposit(d, before, false)
		l.accountDeposit(d, after, true)
	}
}

// AddDeposit appends a deposit record and returns its id. Deposits start
// locked unless height already reached their unlock height.
func (l *Ledger) AddDeposit(d Deposit) (DepositID, error) {
	if uint64(d.CreatingTransactionID) >= uint64(len(l.txs)) {
		return NoDeposit, errors.Wrapf(walleterr.ErrUnknownIdentifier, "transaction %d", d.CreatingTransactionID)
	}
	d.ID = DepositID(len(l.deposits))
	d.SpendingTransactionID = NoTransaction
	d.UnlockHeight = d.Height + d.Term
	d.Locked = true
	l.deposits = append(l.deposits, d)

	stored := &l.deposits[d.ID]
	l.accountDeposit(stored, classOf(stored), true)
	l.depByHeight[d.Height] = append(l.depByHeight[d.Height], d.ID)
	l.depUnlocks[d.UnlockHeight] = append(l.depUnlocks[d.UnlockHeight], d.ID)
	return d.ID, nil
}

// UnlockDeposits unlocks every live deposit whose unlock height is at or
// below height and returns their ids.
func (l *Ledger) UnlockDeposits(height uint32) []DepositID {
	var unlocked []DepositID
	for h, ids := range l.depUnlocks {
		if h > height {
			continue
		}
		for _, id := range ids {
			d := &l.deposits[id]
			if d.Locked && !d.Orphaned {
				l.updateDeposit(d, func() { d.Locked = false })
				unlocked = append(unlocked, id)
			}
		}
		delete(l.depUnlocks, h)
	}
	sort.Slice(unlocked, func(i, j int) bool { return unlocked[i] < unlocked[j] })
	return unlocked
}

// relockAbove locks again every unlocked deposit whose unlock height lies
// above height.
func (l *Ledger) relockAbove(height uint32) []DepositID {
	var relocked []DepositID
	for i := range l.deposits {
		d := &l.deposits[i]
		if d.Orphaned || d.Locked || d.UnlockHeight <= height {
			continue
		}
		l.updateDeposit(d, func() { d.Locked = true })
		l.depUnlocks[d.UnlockHeight] = append(l.depUnlocks[d.UnlockHeight], d.ID)
		relocked = append(relocked, d.ID)
	}
	return relocked
}

// MarkDepositSpent records the withdrawal of a deposit.
func (l *Ledger) MarkDepositSpent(id DepositID, spending TransactionID) error {
	if uint64(id) >= uint64(len(l.deposits)) {
		return errors.Wrapf(walleterr.ErrUnknownIdentifier, "deposit %d", id)
	}
	d := &l.deposits[id]
	if d.SpendingTransactionID != NoTransaction {
		return errors.Wrapf(walleterr.ErrInvalidParameters, "deposit %d already spent", id)
	}
	l.updateDeposit(d, func() { d.SpendingTransactionID = spending })
	return nil
}

// Deposit returns a deposit record.
func (l *Ledger) Deposit(id DepositID) (Deposit, error) {
	if uint64(id) >= uint64(len(l.deposits)) {
		return Deposit{}, errors.Wrapf(walleterr.ErrUnknownIdentifier, "deposit %d", id)
	}
	return l.deposits[id], nil
}

// DepositByOutput finds the live deposit locked in ref.
func (l *Ledger) DepositByOutput(ref types.OutputRef) (Deposit, bool) {
	for i := len(l.deposits) - 1; i >= 0; i-- {
		d := &l.deposits[i]
		if d.Output == ref && !d.Orphaned {
			return *d, true
		}
	}
	return Deposit{}, false
}

// DepositCount returns the number of deposit records.
func (l *Ledger) DepositCount() int { return len(l.deposits) }

// DepositTotals returns the deposit balances of addr.
func (l *Ledger) DepositTotals(addr types.Address) DepositTotals {
	if t, ok := l.depositTotals[addr]; ok {
		return *t
	}
	return DepositTotals{}
}

// DepositGlobal returns the deposit balances of the tracked addresses.
func (l *Ledger) DepositGlobal() DepositTotals { return l.depositGlobal }

// UntrackDeposits stops counting the deposits of addr in DepositGlobal.
// Its own totals keep being maintained.
func (l *Ledger) UntrackDeposits(addr types.Address) {
	if l.untracked[addr] {
		return
	}
	l.untracked[addr] = true
	if t, ok := l.depositTotals[addr]; ok {
		l.depositGlobal.Locked -= t.Locked
		l.depositGlobal.Unlocked -= t.Unlocked
	}
}

// TrackDeposits counts the deposits of addr in DepositGlobal again.
func (l *Ledger) TrackDeposits(addr types.Address) {
	if !l.untracked[addr] {
		return
	}
	delete(l.untracked, addr)
	if t, ok := l.depositTotals[addr]; ok {
		l.depositGlobal.Locked += t.Locked
		l.depositGlobal.Unlocked += t.Unlocked
	}
}

// RetainDeposits untracks the deposits of every address not in active.
func (l *Ledger) RetainDeposits(active []types.Address) {
	keep := make(map[types.Address]bool, len(active))
	for _, addr := range active {
		keep[addr] = true
	}
	for addr := range l.depositTotals {
		if !keep[addr] {
			l.UntrackDeposits(addr)
		}
	}
}

// DepositsInBlocks returns the deposits created in count blocks starting at
// from, block-ascending.
func (l *Ledger) DepositsInBlocks(from, count uint32) []BlockDeposits {
	var res []BlockDeposits
	top := uint32(len(l.blockHashes))
	for h := from; h < top && uint32(len(res)) < count; h++ {
		res = append(res, BlockDeposits{
			BlockHash: l.blockHashes[h],
			Height:    h,
			Deposits:  append([]DepositID{}, l.depByHeight[h]...),
		})
	}
	return res
}
