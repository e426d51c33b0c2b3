package builder

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Destination is one payment of a transaction.
type Destination struct {
	Address types.Address
	Amount  uint64
}

// Donation sends part of the change to Address. Threshold caps the amount.
type Donation struct {
	Address   types.Address
	Threshold uint64
}

// Parameters describe a transaction request.
type Parameters struct {
	// SourceAddresses limits input selection; empty means every spendable
	// address.
	SourceAddresses []types.Address
	Destinations    []Destination
	Fee             uint64
	Mixin           uint32
	Extra           []byte
	Messages        []string
	PaymentID       types.Hash
	HasPaymentID    bool
	UnlockTimestamp uint64
	// TTL is the number of blocks a committed transaction may stay
	// unconfirmed. Zero uses the network default.
	TTL      uint32
	Donation Donation
	// ChangeDestination receives change; empty means the first source.
	ChangeDestination types.Address
	// RelaxMixin lets selection fall back to dust outputs, spent with no
	// decoys, when mature non-dust outputs do not cover the request.
	RelaxMixin bool
	// DepositTerm turns every destination into a deposit locked for that
	// many blocks.
	DepositTerm uint32
}
