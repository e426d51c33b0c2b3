// Package tracker applies the synchronization feed to the wallet state: it
// advances the sync height, records outputs, confirms local transactions,
// creates records for external ones and unlocks deposits.
package tracker

import (
	"context"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// Status is the synchronization state.
type Status uint8

const (
	Idle Status = iota
	Syncing
	Synchronized
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Synchronized:
		return "synchronized"
	default:
		return "unknown"
	}
}

// Params configure the tracker.
type Params struct {
	// MaxReorgDepth bounds how many blocks a divergence may roll back.
	// Zero means unbounded.
	MaxReorgDepth uint32
	// Schedule computes the interest of deposits found in blocks.
	Schedule ledger.Schedule
}

// Tracker is the single writer of synchronization data.
type Tracker struct {
	st     *state.State
	params Params

	mu        sync.Mutex
	status    Status
	tip       uint32
	completed bool
}

// New creates a tracker over st.
func New(st *state.State, params Params) *Tracker {
	return &Tracker{st: st, params: params}
}

// Status returns the current synchronization state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Tip returns the best height known to the tracker.
func (t *Tracker) Tip() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tip
}

// SetTip records the best height known to the feed. A tip above the sync
// height starts a new synchronization run.
func (t *Tracker) SetTip(tip uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setTip(tip)
}

func (t *Tracker) setTip(tip uint32) {
	if tip <= t.tip {
		return
	}
	t.tip = tip
	if t.status != Syncing {
		t.startRun()
	}
}

func (t *Tracker) startRun() {
	t.status = Syncing
	t.completed = false
}

// nextHeight returns the height the feed must deliver next and whether
// any block was applied yet.
func nextHeight(l *ledger.Ledger) (uint32, bool) {
	n := l.BlockCount()
	return n, n > 0
}

// ProcessBlock applies b. A block already applied with the same hash is
// ignored. A block that skips heights or replaces an applied block without
// a signalled divergence fails with ErrSynchronizationDivergence and
// changes nothing.
func (t *Tracker) ProcessBlock(b *Block) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processBlock(b)
}

func (t *Tracker) processBlock(b *Block) error {
	applied := false
	err := t.st.Update(func(tx *state.Tx) error {
		next, started := nextHeight(tx.Ledger)
		switch {
		case b.Height < next:
			if h, ok := tx.Ledger.BlockHash(b.Height); ok && h == b.Hash {
				return nil
			}
			return errors.Wrapf(walleterr.ErrSynchronizationDivergence,
				"block %d: hash %s does not match applied block", b.Height, b.Hash)
		case b.Height > next && started:
			return errors.Wrapf(walleterr.ErrSynchronizationDivergence,
				"block %d: expected height %d", b.Height, next)
		}

		if t.status != Syncing {
			t.startRun()
		}
		if b.Height > t.tip {
			t.tip = b.Height
		}
		t.apply(tx, b)
		applied = true

		tx.Notify(events.Notification{
			Kind:      events.KindSyncProgressUpdated,
			Processed: b.Height + 1,
			Total:     t.tip + 1,
		})
		if b.Height >= t.tip {
			t.status = Synchronized
			if !t.completed {
				t.completed = true
				tx.Notify(events.Notification{Kind: events.KindSyncCompleted})
			}
		}
		return nil
	})
	if err != nil {
		log.Sync.Warn().Err(err).Uint32("height", b.Height).Msg("Block rejected")
		return err
	}
	if applied {
		log.Sync.Debug().
			Uint32("height", b.Height).
			Str("hash", b.Hash.String()).
			Int("txs", len(b.Transactions)).
			Msg("Block applied")
	}
	return nil
}

// apply records b. It runs after validation and cannot fail.
func (t *Tracker) apply(tx *state.Tx, b *Block) {
	if tx.Ledger.PassCheckpoint(b.Height, b.Hash) {
		// The restored history from here on was replaced while offline.
		t.truncate(tx, b.Height)
		log.Sync.Warn().Uint32("height", b.Height).Msg("Restored history diverges from chain, records discarded")
	}

	var received []outputs.Received
	var spends []outputs.Spend
	for i := range b.Transactions {
		btx := &b.Transactions[i]
		received = append(received, btx.Outputs...)
		for _, ref := range btx.Inputs {
			spends = append(spends, outputs.Spend{Ref: ref, TxHash: btx.Hash})
		}
	}
	consumed, unlockedOutputs := tx.Outputs.Apply(b.Height, received, spends)

	byTx := make(map[types.Hash][]outputs.Consumed)
	for _, c := range consumed {
		byTx[c.Output.SpendingTx] = append(byTx[c.Output.SpendingTx], c)
	}

	for i := range b.Transactions {
		t.applyTransaction(tx, b, &b.Transactions[i], byTx[b.Transactions[i].Hash])
	}

	// An output held by one local transaction but consumed by another
	// invalidates the holder.
	for _, c := range consumed {
		if c.PrevState != outputs.Reserved && c.PrevState != outputs.Sent {
			continue
		}
		holder := ledger.TransactionID(c.PrevOwner)
		rec, err := tx.Ledger.Transaction(holder)
		if err != nil || rec.State != ledger.Created || rec.Hash == c.Output.SpendingTx {
			continue
		}
		if err := tx.Abandon(holder, ledger.Failed); err == nil {
			log.Sync.Warn().
				Uint64("tx", uint64(holder)).
				Str("output", c.Output.Ref.String()).
				Msg("Transaction input spent elsewhere, marked failed")
		}
	}

	t.expireOutgoing(tx, b.Height)
	tx.Ledger.SetBlockHash(b.Height, b.Hash)

	unlocked := tx.Ledger.UnlockDeposits(b.Height)
	if len(unlocked) > 0 {
		tx.Notify(events.Notification{Kind: events.KindDepositUpdated, DepositIDs: unlocked})
	}
	if len(unlocked) > 0 || unlockedOutputs > 0 {
		tx.Notify(events.Notification{Kind: events.KindBalanceUnlocked})
	}
}

func (t *Tracker) applyTransaction(tx *state.Tx, b *Block, btx *Transaction, consumed []outputs.Consumed) {
	id := ledger.NoTransaction
	if rec, err := tx.Ledger.TransactionByHash(btx.Hash); err == nil {
		switch rec.State {
		case ledger.Created:
			_ = tx.Ledger.ConfirmTransaction(rec.ID, b.Height, b.Timestamp)
			tx.Forget(rec.ID)
			id = rec.ID
			tx.Notify(events.Notification{Kind: events.KindTransactionUpdated, TransactionID: id})
			log.Sync.Info().Uint64("tx", uint64(id)).Uint32("height", b.Height).Msg("Transaction confirmed")
		case ledger.Succeeded:
			return
		}
	}

	if id == ledger.NoTransaction {
		if len(btx.Outputs) == 0 && len(consumed) == 0 {
			return
		}
		id = tx.Ledger.AddTransaction(externalRecord(b, btx, consumed))
		tx.Notify(events.Notification{Kind: events.KindExternalTransactionCreated, TransactionID: id})
	}

	var opened []ledger.DepositID
	for _, r := range btx.Outputs {
		if r.DepositTerm == 0 {
			continue
		}
		depID, err := tx.Ledger.AddDeposit(ledger.Deposit{
			CreatingTransactionID: id,
			Term:                  r.DepositTerm,
			Amount:                r.Amount,
			Interest:              t.params.Schedule.Interest(r.Amount, r.DepositTerm),
			Height:                b.Height,
			Output:                r.Ref,
			Address:               r.Address,
		})
		if err == nil {
			opened = append(opened, depID)
		}
	}
	if len(opened) > 0 {
		_ = tx.Ledger.SetDeposits(id, opened[0], uint32(len(opened)))
		tx.Notify(events.Notification{Kind: events.KindDepositsUpdated, DepositIDs: opened})
	}

	var withdrawn []ledger.DepositID
	for _, c := range consumed {
		if !c.Output.IsDeposit() {
			continue
		}
		d, ok := tx.Ledger.DepositByOutput(c.Output.Ref)
		if !ok || !d.Live() {
			continue
		}
		if tx.Ledger.MarkDepositSpent(d.ID, id) == nil {
			withdrawn = append(withdrawn, d.ID)
		}
	}
	if len(withdrawn) > 0 {
		tx.Notify(events.Notification{Kind: events.KindDepositUpdated, DepositIDs: withdrawn})
	}
}

// externalRecord builds the ledger record of a transaction the wallet did
// not create.
func externalRecord(b *Block, btx *Transaction, consumed []outputs.Consumed) ledger.Transaction {
	var total int64
	var transfers []ledger.Transfer
	for _, c := range consumed {
		total -= int64(c.Output.Amount)
		transfers = append(transfers, ledger.Transfer{
			Type:    ledger.Usual,
			Address: c.Output.Address,
			Amount:  -int64(c.Output.Amount),
		})
	}
	for _, r := range btx.Outputs {
		total += int64(r.Amount)
		transfers = append(transfers, ledger.Transfer{
			Type:    ledger.Usual,
			Address: r.Address,
			Amount:  int64(r.Amount),
		})
	}
	rec := ledger.Transaction{
		State:        ledger.Succeeded,
		Hash:         btx.Hash,
		BlockHeight:  b.Height,
		Timestamp:    b.Timestamp,
		CreationTime: int64(b.Timestamp),
		UnlockTime:   btx.UnlockTime,
		TotalAmount:  total,
		Fee:          btx.Fee,
		Extra:        append([]byte(nil), btx.Extra...),
		IsBase:       btx.IsBase,
		Transfers:    transfers,
	}
	if len(consumed) > 0 && len(btx.Inputs) > 0 {
		first := btx.Inputs[0]
		rec.FirstInput = &first
	}
	return rec
}

// expireOutgoing fails committed transactions still unconfirmed past their
// deadline.
func (t *Tracker) expireOutgoing(tx *state.Tx, height uint32) {
	for _, id := range tx.Ledger.OutgoingIDs() {
		o, _ := tx.Ledger.Outgoing(id)
		if !o.Committed || o.Deadline == 0 || height <= o.Deadline {
			continue
		}
		if err := tx.Abandon(id, ledger.Failed); err == nil {
			log.Sync.Warn().Uint64("tx", uint64(id)).Uint32("deadline", o.Deadline).Msg("Transaction not confirmed in time, marked failed")
		}
	}
}

// Rollback discards every block at and above fork after a signalled
// divergence. Rolling back more than MaxReorgDepth blocks fails with
// ErrSynchronizationDivergence.
func (t *Tracker) Rollback(fork uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollback(fork)
}

func (t *Tracker) rollback(fork uint32) error {
	err := t.st.Update(func(tx *state.Tx) error {
		count := tx.Ledger.BlockCount()
		if fork >= count {
			return nil
		}
		if depth := count - fork; t.params.MaxReorgDepth > 0 && depth > t.params.MaxReorgDepth {
			return errors.Wrapf(walleterr.ErrSynchronizationDivergence,
				"rollback of %d blocks exceeds limit %d", depth, t.params.MaxReorgDepth)
		}
		t.truncate(tx, fork)
		t.startRun()
		return nil
	})
	if err != nil {
		log.Sync.Error().Err(err).Uint32("fork", fork).Msg("Rollback refused")
		return err
	}
	log.Sync.Info().Uint32("fork", fork).Msg("Rolled back to divergence point")
	return nil
}

// truncate removes everything at and above fork from the index and ledger.
func (t *Tracker) truncate(tx *state.Tx, fork uint32) {
	owners := tx.Outputs.Truncate(fork)
	deleted, deposits := tx.Ledger.Truncate(fork)

	for _, owner := range owners {
		id := ledger.TransactionID(owner)
		if rec, err := tx.Ledger.Transaction(id); err == nil && rec.State == ledger.Created {
			_ = tx.Abandon(id, ledger.Failed)
		}
	}
	for _, id := range deleted {
		tx.Notify(events.Notification{Kind: events.KindTransactionUpdated, TransactionID: id})
	}
	if len(deposits) > 0 {
		tx.Notify(events.Notification{Kind: events.KindDepositsUpdated, DepositIDs: deposits})
	}
}

// Reset discards derived state back to scanHeight and cancels every
// outstanding local transaction. A scanHeight above the best known height
// fails with ErrInvalidParameters and changes nothing.
func (t *Tracker) Reset(scanHeight uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := t.tip
	err := t.st.Update(func(tx *state.Tx) error {
		if n := tx.Ledger.BlockCount(); n > 0 && n-1 > best {
			best = n - 1
		}
		if scanHeight > best {
			return errors.Wrapf(walleterr.ErrInvalidParameters,
				"reset height %d above best height %d", scanHeight, best)
		}
		for _, id := range tx.Ledger.CancelPending() {
			tx.Forget(id)
			tx.Notify(events.Notification{Kind: events.KindTransactionUpdated, TransactionID: id})
		}
		t.truncate(tx, scanHeight)
		t.startRun()
		return nil
	})
	if err != nil {
		return err
	}
	log.Sync.Info().Uint32("scan_height", scanHeight).Msg("Synchronization reset")
	return nil
}

// Handle applies one feed item.
func (t *Tracker) Handle(it Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setTip(it.Tip)
	if it.Divergence {
		return t.rollback(it.Fork)
	}
	if it.Block != nil {
		return t.processBlock(it.Block)
	}
	return nil
}

// Run applies items from feed until it closes or ctx is done. A divergence
// error ends the run: it is published as a failed SyncCompleted and
// returned, and the caller must Reset before running again.
func (t *Tracker) Run(ctx context.Context, feed <-chan Item) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it, ok := <-feed:
			if !ok {
				return nil
			}
			if err := t.Handle(it); err != nil {
				t.fail(err)
				return err
			}
		}
	}
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.status = Idle
	t.completed = true
	t.mu.Unlock()
	_ = t.st.Update(func(tx *state.Tx) error {
		tx.Notify(events.Notification{Kind: events.KindSyncCompleted, Err: err})
		return nil
	})
}
