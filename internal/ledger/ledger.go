package ledger

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

type slot struct {
	tx  Transaction
	gen uint32
}

// Ledger is the indexed store of transactions and deposits. It is not safe
// for concurrent use; the wallet state lock guards it.
type Ledger struct {
	txs      []*slot
	byHash   map[types.Hash]TransactionID
	byHeight map[uint32][]TransactionID
	byPayID  map[types.Hash][]TransactionID
	outgoing map[TransactionID]*Outgoing

	deposits       []Deposit
	depByHeight    map[uint32][]DepositID
	depUnlocks     map[uint32][]DepositID
	depositTotals  map[types.Address]*DepositTotals
	depositGlobal  DepositTotals
	untracked      map[types.Address]bool
	blockHashes    []types.Hash
	blockHashIndex map[types.Hash]uint32

	// checkpoints are block hashes of a restored history whose blocks have
	// not been applied again yet.
	checkpoints map[uint32]types.Hash
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		byHash:         make(map[types.Hash]TransactionID),
		byHeight:       make(map[uint32][]TransactionID),
		byPayID:        make(map[types.Hash][]TransactionID),
		outgoing:       make(map[TransactionID]*Outgoing),
		depByHeight:    make(map[uint32][]DepositID),
		depUnlocks:     make(map[uint32][]DepositID),
		depositTotals:  make(map[types.Address]*DepositTotals),
		untracked:      make(map[types.Address]bool),
		blockHashIndex: make(map[types.Hash]uint32),
		checkpoints:    make(map[uint32]types.Hash),
	}
}

func (l *Ledger) slot(id TransactionID) (*slot, error) {
	if uint64(id) >= uint64(len(l.txs)) {
		return nil, errors.Wrapf(walleterr.ErrUnknownIdentifier, "transaction %d", id)
	}
	return l.txs[id], nil
}

// AddTransaction appends a record and returns its id. The id, state-derived
// indices and deposit reference fields are filled in by the ledger.
func (l *Ledger) AddTransaction(t Transaction) TransactionID {
	id := TransactionID(len(l.txs))
	t.ID = id
	if t.DepositCount == 0 {
		t.FirstDepositID = NoDeposit
	}
	s := &slot{tx: t.clone()}
	l.txs = append(l.txs, s)
	l.index(s)
	return id
}

func (l *Ledger) index(s *slot) {
	t := &s.tx
	if !t.Hash.IsZero() && t.State != Deleted {
		l.byHash[t.Hash] = t.ID
	}
	if t.Confirmed() {
		l.byHeight[t.BlockHeight] = append(l.byHeight[t.BlockHeight], t.ID)
	}
	if pid, ok := tx.PaymentIDFromExtra(t.Extra); ok {
		l.byPayID[pid] = append(l.byPayID[pid], t.ID)
	}
}

// UpdateTransactionState moves a transaction forward in its lifecycle.
// Backward or repeated moves fail with ErrInvalidTransactionState.
func (l *Ledger) UpdateTransactionState(id TransactionID, to State) error {
	s, err := l.slot(id)
	if err != nil {
		return err
	}
	if !canTransition(s.tx.State, to) {
		return errors.Wrapf(walleterr.ErrInvalidTransactionState, "transaction %d: %s -> %s", id, s.tx.State, to)
	}
	l.setState(s, to)
	return nil
}

func (l *Ledger) setState(s *slot, to State) {
	t := &s.tx
	if to == Deleted {
		if t.Confirmed() {
			l.unindexHeight(t.ID, t.BlockHeight)
		}
		if cur, ok := l.byHash[t.Hash]; ok && cur == t.ID {
			delete(l.byHash, t.Hash)
		}
	}
	t.State = to
	if terminal(to) {
		s.gen++
	}
}

func (l *Ledger) unindexHeight(id TransactionID, height uint32) {
	ids := l.byHeight[height]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(l.byHeight, height)
	} else {
		l.byHeight[height] = ids
	}
}

// ConfirmTransaction marks a CREATED transaction SUCCEEDED in the block at height.
func (l *Ledger) ConfirmTransaction(id TransactionID, height uint32, timestamp uint64) error {
	s, err := l.slot(id)
	if err != nil {
		return err
	}
	if s.tx.State != Created {
		return errors.Wrapf(walleterr.ErrInvalidTransactionState, "transaction %d is %s", id, s.tx.State)
	}
	s.tx.State = Succeeded
	s.tx.BlockHeight = height
	s.tx.Timestamp = timestamp
	l.byHeight[height] = append(l.byHeight[height], id)
	return nil
}

// SetDeposits links a transaction to its run of deposits.
func (l *Ledger) SetDeposits(id TransactionID, first DepositID, count uint32) error {
	s, err := l.slot(id)
	if err != nil {
		return err
	}
	s.tx.FirstDepositID = first
	s.tx.DepositCount = count
	if count == 0 {
		s.tx.FirstDepositID = NoDeposit
	}
	return nil
}

// Handle returns the current handle of a transaction.
func (l *Ledger) Handle(id TransactionID) (Handle, error) {
	s, err := l.slot(id)
	if err != nil {
		return Handle{}, err
	}
	return Handle{ID: id, Gen: s.gen}, nil
}

// Resolve returns the transaction behind h, failing with
// ErrUnknownIdentifier when the handle is stale.
func (l *Ledger) Resolve(h Handle) (Transaction, error) {
	s, err := l.slot(h.ID)
	if err != nil {
		return Transaction{}, err
	}
	if s.gen != h.Gen {
		return Transaction{}, errors.Wrapf(walleterr.ErrUnknownIdentifier, "transaction %d: stale handle", h.ID)
	}
	return s.tx.clone(), nil
}

// SetOutgoing records or replaces the outgoing state of a local transaction.
func (l *Ledger) SetOutgoing(id TransactionID, o Outgoing) error {
	if _, err := l.slot(id); err != nil {
		return err
	}
	o.Inputs = append([]types.OutputRef(nil), o.Inputs...)
	o.Blob = append([]byte(nil), o.Blob...)
	l.outgoing[id] = &o
	return nil
}

// Outgoing returns the outgoing state of a local transaction.
func (l *Ledger) Outgoing(id TransactionID) (Outgoing, bool) {
	o, ok := l.outgoing[id]
	if !ok {
		return Outgoing{}, false
	}
	return *o, true
}

// DropOutgoing forgets the outgoing state of a transaction.
func (l *Ledger) DropOutgoing(id TransactionID) {
	delete(l.outgoing, id)
}

// OutgoingIDs returns the ids with outgoing state in ascending order.
func (l *Ledger) OutgoingIDs() []TransactionID {
	ids := make([]TransactionID, 0, len(l.outgoing))
	for id := range l.outgoing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetBlockHash records the hash of the block at height.
func (l *Ledger) SetBlockHash(height uint32, hash types.Hash) {
	for uint32(len(l.blockHashes)) <= height {
		l.blockHashes = append(l.blockHashes, types.Hash{})
	}
	if old := l.blockHashes[height]; !old.IsZero() {
		delete(l.blockHashIndex, old)
	}
	l.blockHashes[height] = hash
	l.blockHashIndex[hash] = height
}

// PassCheckpoint checks an applied block against the restored history. It
// reports true when a checkpoint at height disagrees with hash; every
// checkpoint from height up is then dropped since the records there belong
// to another chain.
func (l *Ledger) PassCheckpoint(height uint32, hash types.Hash) bool {
	want, ok := l.checkpoints[height]
	if !ok {
		return false
	}
	delete(l.checkpoints, height)
	if want == hash {
		return false
	}
	for h := range l.checkpoints {
		if h > height {
			delete(l.checkpoints, h)
		}
	}
	return true
}

// CheckpointCount returns the number of restored block hashes not yet
// passed.
func (l *Ledger) CheckpointCount() int { return len(l.checkpoints) }

// Truncate rolls the ledger back so that nothing at or above fork remains
// confirmed. Confirmed transactions there become DELETED, deposits they
// created are orphaned, withdrawals they performed are undone and deposits
// whose unlock height is no longer reached lock again. It returns the ids of
// deleted transactions and changed deposits.
func (l *Ledger) Truncate(fork uint32) ([]TransactionID, []DepositID) {
	var deleted []TransactionID
	for h, ids := range l.byHeight {
		if h >= fork {
			deleted = append(deleted, ids...)
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })

	gone := make(map[TransactionID]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
		l.setState(l.txs[id], Deleted)
	}

	changed := make(map[DepositID]bool)
	for i := range l.deposits {
		d := &l.deposits[i]
		if d.Orphaned {
			continue
		}
		if gone[d.CreatingTransactionID] || d.Height >= fork {
			l.updateDeposit(d, func() { d.Orphaned = true })
			changed[d.ID] = true
			continue
		}
		if d.SpendingTransactionID != NoTransaction && gone[d.SpendingTransactionID] {
			l.updateDeposit(d, func() { d.SpendingTransactionID = NoTransaction })
			changed[d.ID] = true
		}
	}

	for h := range l.depByHeight {
		if h >= fork {
			delete(l.depByHeight, h)
		}
	}

	newHeight := uint32(0)
	if fork > 0 {
		newHeight = fork - 1
	}
	for _, id := range l.relockAbove(newHeight) {
		changed[id] = true
	}

	if uint32(len(l.blockHashes)) > fork {
		for _, h := range l.blockHashes[fork:] {
			delete(l.blockHashIndex, h)
		}
		l.blockHashes = l.blockHashes[:fork]
	}

	ids := make([]DepositID, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return deleted, ids
}

// CancelPending cancels every CREATED transaction and returns their ids.
func (l *Ledger) CancelPending() []TransactionID {
	var ids []TransactionID
	for _, s := range l.txs {
		if s.tx.State == Created {
			l.setState(s, Cancelled)
			ids = append(ids, s.tx.ID)
		}
	}
	return ids
}
