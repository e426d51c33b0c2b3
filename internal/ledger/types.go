// Package ledger stores the wallet's transactions, transfers and deposits and
// indexes them by id, hash, payment id and block.
package ledger

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// TransactionID is the dense index of a transaction record.
type TransactionID uint64

// DepositID is the dense index of a deposit record.
type DepositID uint64

const (
	// NoTransaction marks an unset transaction reference.
	NoTransaction = ^TransactionID(0)
	// NoDeposit marks an unset deposit reference.
	NoDeposit = ^DepositID(0)
	// UnconfirmedHeight is the block height of a transaction not yet in a block.
	UnconfirmedHeight = ^uint32(0)
)

// State is the lifecycle state of a transaction.
type State uint8

const (
	Created State = iota
	Succeeded
	Failed
	Cancelled
	Deleted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// canTransition reports whether from → to is a permitted forward move.
func canTransition(from, to State) bool {
	switch from {
	case Created:
		return to == Succeeded || to == Failed || to == Cancelled
	case Succeeded, Failed, Cancelled:
		return to == Deleted
	default:
		return false
	}
}

// terminal reports whether a record in state s should invalidate handles.
func terminal(s State) bool {
	return s == Failed || s == Cancelled || s == Deleted
}

// TransferType classifies one leg of a transaction.
type TransferType uint8

const (
	Usual TransferType = iota
	Donation
	Change
)

// String returns the transfer type name.
func (t TransferType) String() string {
	switch t {
	case Usual:
		return "usual"
	case Donation:
		return "donation"
	case Change:
		return "change"
	default:
		return "unknown"
	}
}

// Transfer is one leg of a transaction. Amount is signed: negative legs are
// funds taken from a wallet address, positive legs are funds paid to an
// address.
type Transfer struct {
	Type    TransferType  `json:"type"`
	Address types.Address `json:"address"`
	Amount  int64         `json:"amount"`
}

// Transaction is a wallet transaction record.
type Transaction struct {
	ID          TransactionID `json:"id"`
	State       State         `json:"state"`
	Hash        types.Hash    `json:"hash"`
	BlockHeight uint32        `json:"block_height"`
	// Timestamp is the block timestamp once confirmed.
	Timestamp    uint64 `json:"timestamp"`
	CreationTime int64  `json:"creation_time"`
	UnlockTime   uint64 `json:"unlock_time"`
	// TotalAmount is the net effect on the wallet; negative means outgoing.
	TotalAmount    int64     `json:"total_amount"`
	Fee            uint64    `json:"fee"`
	Extra          []byte    `json:"extra,omitempty"`
	Messages       []string  `json:"messages,omitempty"`
	IsBase         bool      `json:"is_base,omitempty"`
	FirstDepositID DepositID `json:"first_deposit_id"`
	DepositCount   uint32    `json:"deposit_count"`
	SecretKey      []byte    `json:"secret_key,omitempty"`
	// FirstInput is the first input the wallet spent, when known. The
	// deterministic transaction key is derived from it.
	FirstInput *types.OutputRef `json:"first_input,omitempty"`
	Transfers  []Transfer       `json:"transfers,omitempty"`
}

// Confirmed reports whether the transaction is in a block.
func (t *Transaction) Confirmed() bool {
	return t.State == Succeeded && t.BlockHeight != UnconfirmedHeight
}

func (t Transaction) clone() Transaction {
	t.Extra = append([]byte(nil), t.Extra...)
	t.Messages = append([]string(nil), t.Messages...)
	t.SecretKey = append([]byte(nil), t.SecretKey...)
	t.Transfers = append([]Transfer(nil), t.Transfers...)
	if t.FirstInput != nil {
		first := *t.FirstInput
		t.FirstInput = &first
	}
	return t
}

// Deposit is a time-locked, interest-bearing allocation.
type Deposit struct {
	ID                    DepositID       `json:"id"`
	CreatingTransactionID TransactionID   `json:"creating_transaction_id"`
	SpendingTransactionID TransactionID   `json:"spending_transaction_id"`
	Term                  uint32          `json:"term"`
	Amount                uint64          `json:"amount"`
	Interest              uint64          `json:"interest"`
	Height                uint32          `json:"height"`
	UnlockHeight          uint32          `json:"unlock_height"`
	Locked                bool            `json:"locked"`
	Output                types.OutputRef `json:"output"`
	Address               types.Address   `json:"address"`
	// Orphaned deposits belong to a block that was rolled back.
	Orphaned bool `json:"orphaned,omitempty"`
}

// Live reports whether the deposit still counts toward deposit balances.
func (d *Deposit) Live() bool {
	return !d.Orphaned && d.SpendingTransactionID == NoTransaction
}

// Value is principal plus interest.
func (d *Deposit) Value() uint64 {
	return d.Amount + d.Interest
}

// DepositTotals are running deposit balances.
type DepositTotals struct {
	Locked   uint64 `json:"locked"`
	Unlocked uint64 `json:"unlocked"`
}

// Handle is a generation-checked reference to a transaction record. A handle
// goes stale once its record reaches a terminal state.
type Handle struct {
	ID  TransactionID
	Gen uint32
}

// Outgoing tracks a locally built transaction until it confirms or ends.
type Outgoing struct {
	Handle Handle            `json:"handle"`
	Blob   []byte            `json:"blob"`
	Inputs []types.OutputRef `json:"inputs"`
	// Committed is set once the broadcaster accepted the blob.
	Committed   bool   `json:"committed"`
	CommittedAt uint32 `json:"committed_at"`
	// Deadline is the sync height after which an unconfirmed commit fails.
	Deadline uint32 `json:"deadline"`
	TTL      uint32 `json:"ttl,omitempty"`
}

// BlockTransactions groups the confirmed transactions of one block.
type BlockTransactions struct {
	BlockHash    types.Hash      `json:"block_hash"`
	Height       uint32          `json:"height"`
	Transactions []TransactionID `json:"transactions"`
}

// BlockDeposits groups the deposits created in one block.
type BlockDeposits struct {
	BlockHash types.Hash  `json:"block_hash"`
	Height    uint32      `json:"height"`
	Deposits  []DepositID `json:"deposits"`
}

// PaymentIDTransactions groups confirmed transactions carrying one payment id.
type PaymentIDTransactions struct {
	PaymentID    types.Hash    `json:"payment_id"`
	Transactions []Transaction `json:"transactions"`
}
