package ledger

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// TransactionCount returns the number of transaction records.
func (l *Ledger) TransactionCount() int { return len(l.txs) }

// Transaction returns a copy of the record with id.
func (l *Ledger) Transaction(id TransactionID) (Transaction, error) {
	s, err := l.slot(id)
	if err != nil {
		return Transaction{}, err
	}
	return s.tx.clone(), nil
}

// TransactionByHash returns the live record with hash.
func (l *Ledger) TransactionByHash(hash types.Hash) (Transaction, error) {
	id, ok := l.byHash[hash]
	if !ok {
		return Transaction{}, errors.Wrapf(walleterr.ErrTransactionNotFound, "%s", hash)
	}
	return l.txs[id].tx.clone(), nil
}

// TransferCount returns the number of transfers of a transaction.
func (l *Ledger) TransferCount(id TransactionID) (int, error) {
	s, err := l.slot(id)
	if err != nil {
		return 0, err
	}
	return len(s.tx.Transfers), nil
}

// Transfer returns one transfer of a transaction.
func (l *Ledger) Transfer(id TransactionID, index int) (Transfer, error) {
	s, err := l.slot(id)
	if err != nil {
		return Transfer{}, err
	}
	if index < 0 || index >= len(s.tx.Transfers) {
		return Transfer{}, errors.Wrapf(walleterr.ErrUnknownIdentifier, "transaction %d transfer %d", id, index)
	}
	return s.tx.Transfers[index], nil
}

// TransactionsInBlocks returns the confirmed transactions of count blocks
// starting at from, block-ascending. At most count blocks are returned.
func (l *Ledger) TransactionsInBlocks(from, count uint32) []BlockTransactions {
	var res []BlockTransactions
	top := uint32(len(l.blockHashes))
	for h := from; h < top && uint32(len(res)) < count; h++ {
		res = append(res, BlockTransactions{
			BlockHash:    l.blockHashes[h],
			Height:       h,
			Transactions: append([]TransactionID{}, l.byHeight[h]...),
		})
	}
	return res
}

// TransactionsByBlockHash is TransactionsInBlocks starting at the block with hash.
func (l *Ledger) TransactionsByBlockHash(hash types.Hash, count uint32) ([]BlockTransactions, error) {
	h, ok := l.blockHashIndex[hash]
	if !ok {
		return nil, errors.Wrapf(walleterr.ErrUnknownIdentifier, "block %s", hash)
	}
	return l.TransactionsInBlocks(h, count), nil
}

// DepositsByBlockHash is DepositsInBlocks starting at the block with hash.
func (l *Ledger) DepositsByBlockHash(hash types.Hash, count uint32) ([]BlockDeposits, error) {
	h, ok := l.blockHashIndex[hash]
	if !ok {
		return nil, errors.Wrapf(walleterr.ErrUnknownIdentifier, "block %s", hash)
	}
	return l.DepositsInBlocks(h, count), nil
}

// Unconfirmed returns committed transactions awaiting confirmation.
func (l *Ledger) Unconfirmed() []TransactionID {
	return l.pending(true)
}

// Delayed returns built transactions not yet committed.
func (l *Ledger) Delayed() []TransactionID {
	return l.pending(false)
}

func (l *Ledger) pending(committed bool) []TransactionID {
	var ids []TransactionID
	for _, id := range l.OutgoingIDs() {
		o := l.outgoing[id]
		if o.Committed == committed && l.txs[id].tx.State == Created {
			ids = append(ids, id)
		}
	}
	return ids
}

// TransactionsByPaymentIDs groups confirmed transactions by payment id. Each
// requested id gets a group, empty when nothing matches.
func (l *Ledger) TransactionsByPaymentIDs(ids []types.Hash) []PaymentIDTransactions {
	res := make([]PaymentIDTransactions, 0, len(ids))
	for _, pid := range ids {
		group := PaymentIDTransactions{PaymentID: pid, Transactions: []Transaction{}}
		for _, id := range l.byPayID[pid] {
			t := &l.txs[id].tx
			if t.Confirmed() {
				group.Transactions = append(group.Transactions, t.clone())
			}
		}
		res = append(res, group)
	}
	return res
}

// BlockHashes returns up to count block hashes starting at from.
func (l *Ledger) BlockHashes(from, count uint32) []types.Hash {
	top := uint32(len(l.blockHashes))
	if from >= top {
		return []types.Hash{}
	}
	end := top
	if count < top-from {
		end = from + count
	}
	return append([]types.Hash{}, l.blockHashes[from:end]...)
}

// BlockHash returns the recorded hash at height.
func (l *Ledger) BlockHash(height uint32) (types.Hash, bool) {
	if height >= uint32(len(l.blockHashes)) {
		return types.Hash{}, false
	}
	h := l.blockHashes[height]
	return h, !h.IsZero()
}

// BlockCount returns the number of recorded blocks.
func (l *Ledger) BlockCount() uint32 { return uint32(len(l.blockHashes)) }
