package ledger

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// Data is the serializable form of a Ledger.
type Data struct {
	Transactions []StoredTransaction `json:"transactions"`
	Deposits     []Deposit           `json:"deposits"`
	BlockHashes  []types.Hash        `json:"block_hashes"`
	Outgoing     []StoredOutgoing    `json:"outgoing"`
	Checkpoints  []Checkpoint        `json:"checkpoints,omitempty"`
}

// Checkpoint is the hash a block at Height had when the history was saved.
type Checkpoint struct {
	Height uint32     `json:"height"`
	Hash   types.Hash `json:"hash"`
}

// DetachBlockHashes turns the block hashes of d into checkpoints. A ledger
// restored from the result starts without applied blocks and recognises a
// block that replaced a saved one while it was offline.
func (d *Data) DetachBlockHashes() {
	for height, hash := range d.BlockHashes {
		if !hash.IsZero() {
			d.Checkpoints = append(d.Checkpoints, Checkpoint{Height: uint32(height), Hash: hash})
		}
	}
	sort.Slice(d.Checkpoints, func(i, j int) bool { return d.Checkpoints[i].Height < d.Checkpoints[j].Height })
	d.BlockHashes = []types.Hash{}
}

// StoredTransaction is a transaction with its handle generation.
type StoredTransaction struct {
	Transaction
	Gen uint32 `json:"gen"`
}

// StoredOutgoing is outgoing state keyed by transaction id.
type StoredOutgoing struct {
	ID TransactionID `json:"id"`
	Outgoing
}

// Export returns the full ledger contents in id order.
func (l *Ledger) Export() Data {
	d := Data{
		Transactions: make([]StoredTransaction, 0, len(l.txs)),
		Deposits:     append([]Deposit{}, l.deposits...),
		BlockHashes:  append([]types.Hash{}, l.blockHashes...),
		Outgoing:     make([]StoredOutgoing, 0, len(l.outgoing)),
	}
	for _, s := range l.txs {
		d.Transactions = append(d.Transactions, StoredTransaction{Transaction: s.tx.clone(), Gen: s.gen})
	}
	for _, id := range l.OutgoingIDs() {
		d.Outgoing = append(d.Outgoing, StoredOutgoing{ID: id, Outgoing: *l.outgoing[id]})
	}
	for height, hash := range l.checkpoints {
		d.Checkpoints = append(d.Checkpoints, Checkpoint{Height: height, Hash: hash})
	}
	sort.Slice(d.Checkpoints, func(i, j int) bool { return d.Checkpoints[i].Height < d.Checkpoints[j].Height })
	return d
}

// Restore rebuilds a ledger and its indices from exported data.
func Restore(d Data) (*Ledger, error) {
	l := New()
	for i, st := range d.Transactions {
		if st.ID != TransactionID(i) {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "ledger: transaction %d stored at %d", st.ID, i)
		}
		if st.State > Deleted {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "ledger: transaction %d has state %d", i, st.State)
		}
		s := &slot{tx: st.Transaction.clone(), gen: st.Gen}
		l.txs = append(l.txs, s)
		l.index(s)
	}

	for height, hash := range d.BlockHashes {
		if !hash.IsZero() {
			l.SetBlockHash(uint32(height), hash)
		} else {
			l.blockHashes = append(l.blockHashes, hash)
		}
	}

	for i, dep := range d.Deposits {
		if dep.ID != DepositID(i) {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "ledger: deposit %d stored at %d", dep.ID, i)
		}
		if uint64(dep.CreatingTransactionID) >= uint64(len(l.txs)) {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "ledger: deposit %d references transaction %d", i, dep.CreatingTransactionID)
		}
		l.deposits = append(l.deposits, dep)
		stored := &l.deposits[i]
		l.accountDeposit(stored, classOf(stored), true)
		if !dep.Orphaned {
			l.depByHeight[dep.Height] = append(l.depByHeight[dep.Height], dep.ID)
			if dep.Locked {
				l.depUnlocks[dep.UnlockHeight] = append(l.depUnlocks[dep.UnlockHeight], dep.ID)
			}
		}
	}

	for _, cp := range d.Checkpoints {
		l.checkpoints[cp.Height] = cp.Hash
	}

	for _, so := range d.Outgoing {
		if err := l.SetOutgoing(so.ID, so.Outgoing); err != nil {
			return nil, errors.Mark(err, walleterr.ErrPersistenceCorruption)
		}
	}
	return l, nil
}
