package tracker

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Block is the wallet-relevant content of one block.
type Block struct {
	Hash         types.Hash
	Height       uint32
	Timestamp    uint64
	Transactions []Transaction
}

// Transaction is a transaction of a block that pays to or spends from the
// wallet.
type Transaction struct {
	Hash       types.Hash
	Fee        uint64
	UnlockTime uint64
	Extra      []byte
	IsBase     bool
	// Outputs are the outputs paid to wallet addresses. Outputs with a
	// DepositTerm open deposits.
	Outputs []outputs.Received
	// Inputs are the wallet outputs the transaction consumes.
	Inputs []types.OutputRef
}

// Item is one element of the synchronization feed: a block to apply or a
// divergence to roll back.
type Item struct {
	Block *Block
	// Divergence signals that blocks at and above Fork were replaced.
	Divergence bool
	Fork       uint32
	// Tip is the best height known to the feed. Zero leaves it unchanged.
	Tip uint32
}
