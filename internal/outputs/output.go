// Package outputs tracks the wallet's received outputs, their spend status
// and running balance totals per address.
package outputs

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// State is the spend status of an output.
type State uint8

const (
	// Free outputs may be selected by the builder.
	Free State = iota
	// Reserved outputs are selected by a built, uncommitted transaction.
	Reserved
	// Sent outputs are inputs of a broadcast, unconfirmed transaction.
	Sent
	// Spent outputs were consumed on chain.
	Spent
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Reserved:
		return "reserved"
	case Sent:
		return "sent"
	case Spent:
		return "spent"
	default:
		return "unknown"
	}
}

// NoOwner is the owner of an output no transaction holds.
const NoOwner = ^uint64(0)

// Output is one received output.
type Output struct {
	Ref         types.OutputRef `json:"ref"`
	GlobalIndex uint64          `json:"global_index"`
	Address     types.Address   `json:"address"`
	Amount      uint64          `json:"amount"`
	BlockHeight uint32          `json:"block_height"`
	// UnlockHeight is an optional time-lock; zero means none.
	UnlockHeight uint32 `json:"unlock_height,omitempty"`
	// DepositTerm is non-zero for deposit outputs.
	DepositTerm uint32 `json:"deposit_term,omitempty"`

	State State `json:"state"`
	// Owner is the transaction holding a Reserved or Sent output.
	Owner       uint64     `json:"owner"`
	SpendingTx  types.Hash `json:"spending_tx,omitempty"`
	SpentHeight uint32     `json:"spent_height,omitempty"`
}

// IsDeposit reports whether the output locks a deposit.
func (o *Output) IsDeposit() bool {
	return o.DepositTerm > 0
}

// Unspent reports whether the output still belongs to the wallet's balance.
func (o *Output) Unspent() bool {
	return o.State == Free || o.State == Reserved
}

// MaturityHeight is the first sync height at which the output is spendable.
func (o *Output) MaturityHeight(spendableAge uint32) uint32 {
	m := o.BlockHeight + spendableAge
	if o.UnlockHeight > m {
		m = o.UnlockHeight
	}
	if o.IsDeposit() && o.BlockHeight+o.DepositTerm > m {
		m = o.BlockHeight + o.DepositTerm
	}
	return m
}

// Totals are the running balance totals of one address or the whole wallet.
type Totals struct {
	// Actual is mature, non-dust, unsent value.
	Actual uint64 `json:"actual"`
	// Locked is immature value.
	Locked uint64 `json:"locked"`
	// Dust is mature value in outputs below the dust threshold.
	Dust uint64 `json:"dust"`
	// Provisional is change or self-payment of outstanding built transactions.
	Provisional uint64 `json:"provisional"`
}

// Pending returns locked, dust and provisional value together.
func (t Totals) Pending() uint64 {
	return t.Locked + t.Dust + t.Provisional
}

type class uint8

const (
	classNone class = iota
	classActual
	classLocked
	classDust
)

func (t *Totals) add(c class, amount uint64) {
	switch c {
	case classActual:
		t.Actual += amount
	case classLocked:
		t.Locked += amount
	case classDust:
		t.Dust += amount
	}
}

func (t *Totals) sub(c class, amount uint64) {
	switch c {
	case classActual:
		t.Actual -= amount
	case classLocked:
		t.Locked -= amount
	case classDust:
		t.Dust -= amount
	}
}

// Provisional is an incoming output a built transaction will create for the
// wallet once confirmed.
type Provisional struct {
	Owner   uint64        `json:"owner"`
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}
