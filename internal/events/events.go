// Package events carries wallet notifications to the pull-based event queue
// and to attached observers, in emission order.
package events

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
)

// Kind identifies a notification.
type Kind uint8

const (
	KindInitCompleted Kind = iota
	KindSaveCompleted
	KindSyncProgressUpdated
	KindSyncCompleted
	KindActualBalanceUpdated
	KindPendingBalanceUpdated
	KindActualDepositBalanceUpdated
	KindPendingDepositBalanceUpdated
	KindTransactionCreated
	KindExternalTransactionCreated
	KindSendTransactionCompleted
	KindTransactionUpdated
	KindDepositUpdated
	KindDepositsUpdated
	KindBalanceUnlocked

	numKinds
)

var kindNames = [numKinds]string{
	"init_completed",
	"save_completed",
	"sync_progress_updated",
	"sync_completed",
	"actual_balance_updated",
	"pending_balance_updated",
	"actual_deposit_balance_updated",
	"pending_deposit_balance_updated",
	"transaction_created",
	"external_transaction_created",
	"send_transaction_completed",
	"transaction_updated",
	"deposit_updated",
	"deposits_updated",
	"balance_unlocked",
}

// String returns the kind name.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Notification is one wallet notification. Only the fields relevant to Kind
// are set.
type Notification struct {
	Kind          Kind
	TransactionID ledger.TransactionID
	DepositIDs    []ledger.DepositID
	Balance       uint64
	Processed     uint32
	Total         uint32
	Err           error
}

// Event returns the queue event for n, or nil when n is observer-only.
func (n Notification) Event() Event {
	switch n.Kind {
	case KindTransactionCreated, KindExternalTransactionCreated:
		return TransactionCreated{ID: n.TransactionID}
	case KindTransactionUpdated, KindSendTransactionCompleted:
		return TransactionUpdated{ID: n.TransactionID}
	case KindBalanceUnlocked:
		return BalanceUnlocked{}
	case KindSyncProgressUpdated:
		return SyncProgressUpdated{Processed: n.Processed, Total: n.Total}
	case KindSyncCompleted:
		return SyncCompleted{Err: n.Err}
	default:
		return nil
	}
}

// EventType discriminates queue events.
type EventType uint8

const (
	TransactionCreatedEvent EventType = iota
	TransactionUpdatedEvent
	BalanceUnlockedEvent
	SyncProgressUpdatedEvent
	SyncCompletedEvent
)

// Event is an entry of the pull-based queue. Exactly one concrete type
// exists per EventType.
type Event interface {
	Type() EventType
}

// TransactionCreated reports a new transaction record.
type TransactionCreated struct {
	ID ledger.TransactionID
}

// TransactionUpdated reports a change to an existing transaction record.
type TransactionUpdated struct {
	ID ledger.TransactionID
}

// BalanceUnlocked reports that deposits or time-locked outputs unlocked.
type BalanceUnlocked struct{}

// SyncProgressUpdated reports synchronization progress.
type SyncProgressUpdated struct {
	Processed uint32
	Total     uint32
}

// SyncCompleted reports the end of a synchronization run. Err is set when
// the run stopped on a divergence.
type SyncCompleted struct {
	Err error
}

func (TransactionCreated) Type() EventType  { return TransactionCreatedEvent }
func (TransactionUpdated) Type() EventType  { return TransactionUpdatedEvent }
func (BalanceUnlocked) Type() EventType     { return BalanceUnlockedEvent }
func (SyncProgressUpdated) Type() EventType { return SyncProgressUpdatedEvent }
func (SyncCompleted) Type() EventType       { return SyncCompletedEvent }
