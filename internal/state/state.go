// Package state serializes access to the wallet's key store, output index
// and ledger and publishes the notifications of each mutation once it
// succeeds.
package state

import (
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/balance"
	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/keys"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
)

// Publisher receives notifications in order.
type Publisher interface {
	Publish(ns ...events.Notification)
}

// Components are the mutable parts of a wallet.
type Components struct {
	Keys    *keys.Store
	Outputs *outputs.Index
	Ledger  *ledger.Ledger
}

// Tx is the view of the components inside Update.
type Tx struct {
	*Components
	notes []events.Notification
}

// Notify queues notifications for publication after the update succeeds.
func (tx *Tx) Notify(ns ...events.Notification) {
	tx.notes = append(tx.notes, ns...)
}

// State guards Components with one lock.
type State struct {
	mu  sync.RWMutex
	c   Components
	pub Publisher
}

// New creates a state over c publishing to pub.
func New(c Components, pub Publisher) *State {
	return &State{c: c, pub: pub}
}

// Update runs fn with exclusive access. When fn succeeds, its notifications
// are published, followed by one notification per balance category that
// changed. When fn fails nothing is published; fn must not mutate before it
// can no longer fail.
func (s *State) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.balance()
	tx := &Tx{Components: &s.c}
	if err := fn(tx); err != nil {
		return err
	}
	notes := append(tx.notes, balanceChanges(before, s.balance())...)
	if len(notes) > 0 && s.pub != nil {
		s.pub.Publish(notes...)
	}
	return nil
}

// View runs fn with shared access. fn must not mutate the components.
func (s *State) View(fn func(c *Components) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.c)
}

func (s *State) balance() balance.Balance {
	if s.c.Outputs == nil || s.c.Ledger == nil {
		return balance.Balance{}
	}
	return balance.Global(s.c.Outputs, s.c.Ledger)
}

func balanceChanges(before, after balance.Balance) []events.Notification {
	var ns []events.Notification
	if before.Actual != after.Actual {
		ns = append(ns, events.Notification{Kind: events.KindActualBalanceUpdated, Balance: after.Actual})
	}
	if before.Pending != after.Pending {
		ns = append(ns, events.Notification{Kind: events.KindPendingBalanceUpdated, Balance: after.Pending})
	}
	if before.UnlockedDeposit != after.UnlockedDeposit {
		ns = append(ns, events.Notification{Kind: events.KindActualDepositBalanceUpdated, Balance: after.UnlockedDeposit})
	}
	if before.LockedDeposit != after.LockedDeposit {
		ns = append(ns, events.Notification{Kind: events.KindPendingDepositBalanceUpdated, Balance: after.LockedDeposit})
	}
	return ns
}

// Abandon moves local transaction id to the terminal state to, releases the
// outputs it holds and drops its provisional and outgoing entries.
func (tx *Tx) Abandon(id ledger.TransactionID, to ledger.State) error {
	if err := tx.Ledger.UpdateTransactionState(id, to); err != nil {
		return err
	}
	tx.Forget(id)
	tx.Notify(events.Notification{Kind: events.KindTransactionUpdated, TransactionID: id})
	return nil
}

// Forget releases the outputs local transaction id holds and drops its
// provisional and outgoing entries. Callers use it once the record reached a
// final state.
func (tx *Tx) Forget(id ledger.TransactionID) {
	tx.Outputs.Release(uint64(id))
	tx.Outputs.DropProvisional(uint64(id))
	tx.Ledger.DropOutgoing(id)
}
