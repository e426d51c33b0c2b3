package events

import "github.com/Klingon-tech/klingnet-wallet/internal/ledger"

// Observer receives wallet notifications through typed callbacks.
type Observer interface {
	InitCompleted(err error)
	SaveCompleted(err error)
	SynchronizationProgressUpdated(processed, total uint32)
	SynchronizationCompleted(err error)
	ActualBalanceUpdated(balance uint64)
	PendingBalanceUpdated(balance uint64)
	ActualDepositBalanceUpdated(balance uint64)
	PendingDepositBalanceUpdated(balance uint64)
	ExternalTransactionCreated(id ledger.TransactionID)
	SendTransactionCompleted(id ledger.TransactionID, err error)
	TransactionUpdated(id ledger.TransactionID)
	DepositUpdated(id ledger.DepositID)
	DepositsUpdated(ids []ledger.DepositID)
}

// NopObserver implements Observer with no-op callbacks. Embed it to
// override only some of them.
type NopObserver struct{}

func (NopObserver) InitCompleted(error)                                  {}
func (NopObserver) SaveCompleted(error)                                  {}
func (NopObserver) SynchronizationProgressUpdated(uint32, uint32)        {}
func (NopObserver) SynchronizationCompleted(error)                       {}
func (NopObserver) ActualBalanceUpdated(uint64)                          {}
func (NopObserver) PendingBalanceUpdated(uint64)                         {}
func (NopObserver) ActualDepositBalanceUpdated(uint64)                   {}
func (NopObserver) PendingDepositBalanceUpdated(uint64)                  {}
func (NopObserver) ExternalTransactionCreated(ledger.TransactionID)      {}
func (NopObserver) SendTransactionCompleted(ledger.TransactionID, error) {}
func (NopObserver) TransactionUpdated(ledger.TransactionID)              {}
func (NopObserver) DepositUpdated(ledger.DepositID)                      {}
func (NopObserver) DepositsUpdated([]ledger.DepositID)                   {}

// observerKinds are the kinds an attached Observer listens to.
var observerKinds = []Kind{
	KindInitCompleted,
	KindSaveCompleted,
	KindSyncProgressUpdated,
	KindSyncCompleted,
	KindActualBalanceUpdated,
	KindPendingBalanceUpdated,
	KindActualDepositBalanceUpdated,
	KindPendingDepositBalanceUpdated,
	KindExternalTransactionCreated,
	KindSendTransactionCompleted,
	KindTransactionUpdated,
	KindDepositUpdated,
	KindDepositsUpdated,
}

// notify invokes the callback of o matching n.
func notify(o Observer, n Notification) {
	switch n.Kind {
	case KindInitCompleted:
		o.InitCompleted(n.Err)
	case KindSaveCompleted:
		o.SaveCompleted(n.Err)
	case KindSyncProgressUpdated:
		o.SynchronizationProgressUpdated(n.Processed, n.Total)
	case KindSyncCompleted:
		o.SynchronizationCompleted(n.Err)
	case KindActualBalanceUpdated:
		o.ActualBalanceUpdated(n.Balance)
	case KindPendingBalanceUpdated:
		o.PendingBalanceUpdated(n.Balance)
	case KindActualDepositBalanceUpdated:
		o.ActualDepositBalanceUpdated(n.Balance)
	case KindPendingDepositBalanceUpdated:
		o.PendingDepositBalanceUpdated(n.Balance)
	case KindExternalTransactionCreated:
		o.ExternalTransactionCreated(n.TransactionID)
	case KindSendTransactionCompleted:
		o.SendTransactionCompleted(n.TransactionID, n.Err)
	case KindTransactionUpdated:
		o.TransactionUpdated(n.TransactionID)
	case KindDepositUpdated:
		for _, id := range n.DepositIDs {
			o.DepositUpdated(id)
		}
	case KindDepositsUpdated:
		o.DepositsUpdated(n.DepositIDs)
	}
}
