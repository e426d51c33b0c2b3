package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

var addr = types.Address{0x01}

func confirmedTx(l *Ledger, hash byte, height uint32, amount int64) TransactionID {
	l.SetBlockHash(height, types.Hash{0xb0, byte(height)})
	return l.AddTransaction(Transaction{
		State:       Succeeded,
		Hash:        types.Hash{hash},
		BlockHeight: height,
		TotalAmount: amount,
		Transfers:   []Transfer{{Type: Usual, Address: addr, Amount: amount}},
	})
}

func TestAddTransaction_Lookup(t *testing.T) {
	l := New()
	id := confirmedTx(l, 0xaa, 3, 500)

	got, err := l.TransactionByHash(types.Hash{0xaa})
	if err != nil {
		t.Fatalf("TransactionByHash() error: %v", err)
	}
	if got.ID != id || got.FirstDepositID != NoDeposit {
		t.Errorf("record = %+v", got)
	}
	if _, err := l.TransactionByHash(types.Hash{0xff}); !errors.Is(err, walleterr.ErrTransactionNotFound) {
		t.Errorf("missing hash = %v, want ErrTransactionNotFound", err)
	}
	if !errors.Is(walleterr.ErrTransactionNotFound, walleterr.ErrUnknownIdentifier) {
		t.Error("ErrTransactionNotFound should wrap ErrUnknownIdentifier")
	}
	if _, err := l.Transaction(99); !errors.Is(err, walleterr.ErrUnknownIdentifier) {
		t.Errorf("Transaction(99) = %v, want ErrUnknownIdentifier", err)
	}

	n, _ := l.TransferCount(id)
	tr, err := l.Transfer(id, 0)
	if n != 1 || err != nil || tr.Amount != 500 {
		t.Errorf("transfer = %+v (%d), %v", tr, n, err)
	}
	if _, err := l.Transfer(id, 1); !errors.Is(err, walleterr.ErrUnknownIdentifier) {
		t.Errorf("Transfer(out of range) = %v", err)
	}
}

func TestStateTransitions_Monotone(t *testing.T) {
	l := New()
	id := l.AddTransaction(Transaction{State: Created, BlockHeight: UnconfirmedHeight})

	if err := l.UpdateTransactionState(id, Cancelled); err != nil {
		t.Fatalf("Created -> Cancelled: %v", err)
	}
	for _, to := range []State{Created, Succeeded, Failed, Cancelled} {
		if err := l.UpdateTransactionState(id, to); !errors.Is(err, walleterr.ErrInvalidTransactionState) {
			t.Errorf("Cancelled -> %s = %v, want ErrInvalidTransactionState", to, err)
		}
	}
	if err := l.UpdateTransactionState(id, Deleted); err != nil {
		t.Errorf("Cancelled -> Deleted: %v", err)
	}
	if err := l.UpdateTransactionState(id, Deleted); err == nil {
		t.Error("Deleted -> Deleted should fail")
	}
}

func TestHandle_StaleAfterTerminal(t *testing.T) {
	l := New()
	id := l.AddTransaction(Transaction{State: Created, BlockHeight: UnconfirmedHeight})
	h, err := l.Handle(id)
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if _, err := l.Resolve(h); err != nil {
		t.Fatalf("Resolve() fresh handle: %v", err)
	}
	l.UpdateTransactionState(id, Failed)
	if _, err := l.Resolve(h); !errors.Is(err, walleterr.ErrUnknownIdentifier) {
		t.Errorf("Resolve() stale handle = %v, want ErrUnknownIdentifier", err)
	}
}

func TestConfirmTransaction(t *testing.T) {
	l := New()
	l.SetBlockHash(7, types.Hash{7})
	id := l.AddTransaction(Transaction{State: Created, Hash: types.Hash{1}, BlockHeight: UnconfirmedHeight})

	if err := l.ConfirmTransaction(id, 7, 1234); err != nil {
		t.Fatalf("ConfirmTransaction() error: %v", err)
	}
	blocks := l.TransactionsInBlocks(7, 1)
	if len(blocks) != 1 || len(blocks[0].Transactions) != 1 || blocks[0].Transactions[0] != id {
		t.Errorf("TransactionsInBlocks() = %+v", blocks)
	}
	if err := l.ConfirmTransaction(id, 8, 0); !errors.Is(err, walleterr.ErrInvalidTransactionState) {
		t.Errorf("second confirm = %v", err)
	}
}

func TestTransactionsInBlocks_CapsCount(t *testing.T) {
	l := New()
	for h := uint32(0); h < 10; h++ {
		confirmedTx(l, byte(h), h, 1)
	}
	got := l.TransactionsInBlocks(2, 3)
	if len(got) != 3 || got[0].Height != 2 || got[2].Height != 4 {
		t.Errorf("TransactionsInBlocks(2,3) = %+v", got)
	}
	if len(l.TransactionsInBlocks(8, 100)) != 2 {
		t.Error("range past the tip should be clipped")
	}
	if hashes := l.BlockHashes(8, 5); len(hashes) != 2 {
		t.Errorf("BlockHashes(8,5) len = %d, want 2", len(hashes))
	}
	byHash, err := l.TransactionsByBlockHash(types.Hash{0xb0, 5}, 2)
	if err != nil || len(byHash) != 2 || byHash[0].Height != 5 {
		t.Errorf("TransactionsByBlockHash() = %+v, %v", byHash, err)
	}
}

func TestTransactionsByPaymentIDs(t *testing.T) {
	l := New()
	pid := types.Hash{0x42}
	l.SetBlockHash(1, types.Hash{1})
	l.AddTransaction(Transaction{State: Succeeded, Hash: types.Hash{1}, BlockHeight: 1, Extra: tx.AppendPaymentID(nil, pid)})
	l.AddTransaction(Transaction{State: Created, Hash: types.Hash{2}, BlockHeight: UnconfirmedHeight, Extra: tx.AppendPaymentID(nil, pid)})

	groups := l.TransactionsByPaymentIDs([]types.Hash{pid, {0x99}})
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0].Transactions) != 1 {
		t.Errorf("only the confirmed transaction should match, got %d", len(groups[0].Transactions))
	}
	if groups[1].Transactions == nil || len(groups[1].Transactions) != 0 {
		t.Errorf("unmatched id should yield an empty group, got %+v", groups[1])
	}
}

func TestUnconfirmedAndDelayed(t *testing.T) {
	l := New()
	a := l.AddTransaction(Transaction{State: Created, BlockHeight: UnconfirmedHeight})
	b := l.AddTransaction(Transaction{State: Created, BlockHeight: UnconfirmedHeight})
	ha, _ := l.Handle(a)
	hb, _ := l.Handle(b)
	l.SetOutgoing(a, Outgoing{Handle: ha})
	l.SetOutgoing(b, Outgoing{Handle: hb, Committed: true})

	if d := l.Delayed(); len(d) != 1 || d[0] != a {
		t.Errorf("Delayed() = %v, want [%d]", d, a)
	}
	if u := l.Unconfirmed(); len(u) != 1 || u[0] != b {
		t.Errorf("Unconfirmed() = %v, want [%d]", u, b)
	}
}

func TestDeposits_LifecycleAndTotals(t *testing.T) {
	l := New()
	creator := confirmedTx(l, 1, 10, -1000)
	id, err := l.AddDeposit(Deposit{CreatingTransactionID: creator, Term: 5, Amount: 1000, Interest: 50, Height: 10, Address: addr})
	if err != nil {
		t.Fatalf("AddDeposit() error: %v", err)
	}
	if got := l.DepositTotals(addr); got.Locked != 1050 || got.Unlocked != 0 {
		t.Errorf("after add: %+v", got)
	}

	if ids := l.UnlockDeposits(14); len(ids) != 0 {
		t.Errorf("unlocked early: %v", ids)
	}
	if ids := l.UnlockDeposits(15); len(ids) != 1 || ids[0] != id {
		t.Errorf("UnlockDeposits(15) = %v", ids)
	}
	if ids := l.UnlockDeposits(16); len(ids) != 0 {
		t.Errorf("deposit unlocked twice: %v", ids)
	}
	if got := l.DepositGlobal(); got.Unlocked != 1050 || got.Locked != 0 {
		t.Errorf("after unlock: %+v", got)
	}

	spender := confirmedTx(l, 2, 16, 1040)
	if err := l.MarkDepositSpent(id, spender); err != nil {
		t.Fatalf("MarkDepositSpent() error: %v", err)
	}
	if got := l.DepositGlobal(); got != (DepositTotals{}) {
		t.Errorf("after withdrawal: %+v", got)
	}
	if err := l.MarkDepositSpent(id, spender); !errors.Is(err, walleterr.ErrInvalidParameters) {
		t.Errorf("double spend = %v", err)
	}
}

func TestUntrackDeposits(t *testing.T) {
	l := New()
	other := types.Address{0x02}
	creator := confirmedTx(l, 1, 10, -1000)
	l.AddDeposit(Deposit{CreatingTransactionID: creator, Term: 5, Amount: 1000, Interest: 50, Height: 10, Address: addr})
	l.AddDeposit(Deposit{CreatingTransactionID: creator, Term: 5, Amount: 200, Height: 10, Address: other})

	l.UntrackDeposits(other)
	l.UntrackDeposits(other)
	if got := l.DepositGlobal(); got != (DepositTotals{Locked: 1050}) {
		t.Errorf("after untrack: %+v", got)
	}
	if got := l.DepositTotals(other); got.Locked != 200 {
		t.Errorf("untracked address totals: %+v", got)
	}

	// Changes while untracked stay out of the global totals.
	l.UnlockDeposits(15)
	l.AddDeposit(Deposit{CreatingTransactionID: creator, Term: 5, Amount: 300, Height: 10, Address: other})
	if got := l.DepositGlobal(); got != (DepositTotals{Unlocked: 1050}) {
		t.Errorf("after unlock: %+v", got)
	}

	l.TrackDeposits(other)
	if got := l.DepositGlobal(); got != (DepositTotals{Locked: 300, Unlocked: 1250}) {
		t.Errorf("after track: %+v", got)
	}

	l.RetainDeposits([]types.Address{other})
	if got := l.DepositGlobal(); got != (DepositTotals{Locked: 300, Unlocked: 200}) {
		t.Errorf("after retain: %+v", got)
	}
}

func TestPassCheckpoint(t *testing.T) {
	l := New()
	old := confirmedTx(l, 1, 2, 10)
	confirmedTx(l, 2, 4, 20)

	d := l.Export()
	d.DetachBlockHashes()
	if len(d.BlockHashes) != 0 || len(d.Checkpoints) != 2 {
		t.Fatalf("detached: hashes=%d checkpoints=%v", len(d.BlockHashes), d.Checkpoints)
	}
	got, err := Restore(d)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got.BlockCount() != 0 || got.CheckpointCount() != 2 {
		t.Fatalf("restored blocks=%d checkpoints=%d", got.BlockCount(), got.CheckpointCount())
	}

	if got.PassCheckpoint(1, types.Hash{0xaa}) {
		t.Error("height without checkpoint reported divergence")
	}
	if got.PassCheckpoint(2, types.Hash{0xb0, 2}) {
		t.Error("matching hash reported divergence")
	}
	if got.CheckpointCount() != 1 {
		t.Errorf("checkpoints after match = %d, want 1", got.CheckpointCount())
	}
	if !got.PassCheckpoint(4, types.Hash{0xcc}) {
		t.Error("replaced block not reported")
	}
	if got.CheckpointCount() != 0 {
		t.Errorf("checkpoints after divergence = %d, want 0", got.CheckpointCount())
	}

	// Remaining checkpoints survive another save.
	again, err := Restore(d)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	again.PassCheckpoint(2, types.Hash{0xb0, 2})
	if cps := again.Export().Checkpoints; len(cps) != 1 || cps[0].Height != 4 {
		t.Errorf("exported checkpoints = %v", cps)
	}
	if rec, _ := again.Transaction(old); rec.State != Succeeded {
		t.Errorf("record state = %v", rec.State)
	}
}

func TestTruncate(t *testing.T) {
	l := New()
	creator := confirmedTx(l, 1, 10, -1000)
	dep, _ := l.AddDeposit(Deposit{CreatingTransactionID: creator, Term: 5, Amount: 100, Height: 10, Address: addr})
	l.UnlockDeposits(15)
	spender := confirmedTx(l, 2, 16, 100)
	l.MarkDepositSpent(dep, spender)
	late := confirmedTx(l, 3, 12, 7)

	deleted, changed := l.Truncate(13)
	if len(deleted) != 1 || deleted[0] != spender {
		t.Errorf("deleted = %v, want [%d]", deleted, spender)
	}
	d, _ := l.Deposit(dep)
	if d.SpendingTransactionID != NoTransaction || !d.Locked {
		t.Errorf("deposit after truncate = %+v, want unspent and re-locked", d)
	}
	if len(changed) != 1 {
		t.Errorf("changed deposits = %v", changed)
	}
	if got := l.DepositGlobal(); got.Locked != 100 {
		t.Errorf("deposit totals after truncate = %+v", got)
	}
	if l.BlockCount() != 13 {
		t.Errorf("BlockCount() = %d, want 13", l.BlockCount())
	}
	if tr, _ := l.Transaction(late); tr.State != Succeeded {
		t.Error("transaction below the fork was touched")
	}
	if _, err := l.TransactionByHash(types.Hash{2}); !errors.Is(err, walleterr.ErrTransactionNotFound) {
		t.Error("deleted transaction still indexed by hash")
	}

	deleted, _ = l.Truncate(10)
	if len(deleted) != 2 {
		t.Errorf("second truncate deleted %v", deleted)
	}
	if d, _ := l.Deposit(dep); !d.Orphaned {
		t.Error("deposit of a deleted transaction should be orphaned")
	}
	if got := l.DepositGlobal(); got != (DepositTotals{}) {
		t.Errorf("orphaned deposit still counted: %+v", got)
	}
}

func TestCancelPending(t *testing.T) {
	l := New()
	a := l.AddTransaction(Transaction{State: Created, BlockHeight: UnconfirmedHeight})
	confirmedTx(l, 9, 1, 5)
	ids := l.CancelPending()
	if len(ids) != 1 || ids[0] != a {
		t.Errorf("CancelPending() = %v", ids)
	}
}

func TestExportRestore(t *testing.T) {
	l := New()
	creator := confirmedTx(l, 1, 2, -10)
	l.AddDeposit(Deposit{CreatingTransactionID: creator, Term: 3, Amount: 10, Height: 2, Address: addr})
	pending := l.AddTransaction(Transaction{State: Created, Hash: types.Hash{5}, BlockHeight: UnconfirmedHeight})
	h, _ := l.Handle(pending)
	l.SetOutgoing(pending, Outgoing{Handle: h, Blob: []byte("blob"), Committed: true, Deadline: 40})

	got, err := Restore(l.Export())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got.TransactionCount() != 2 || got.DepositCount() != 1 || got.BlockCount() != 3 {
		t.Errorf("restored counts: tx=%d dep=%d blocks=%d", got.TransactionCount(), got.DepositCount(), got.BlockCount())
	}
	if got.DepositGlobal() != l.DepositGlobal() {
		t.Errorf("deposit totals = %+v, want %+v", got.DepositGlobal(), l.DepositGlobal())
	}
	if u := got.Unconfirmed(); len(u) != 1 || u[0] != pending {
		t.Errorf("Unconfirmed() after restore = %v", u)
	}
	if _, err := got.Resolve(h); err != nil {
		t.Errorf("handle generation not restored: %v", err)
	}
	if ids := got.UnlockDeposits(5); len(ids) != 1 {
		t.Errorf("unlock schedule not restored: %v", ids)
	}

	bad := l.Export()
	bad.Transactions[1].ID = 7
	if _, err := Restore(bad); !errors.Is(err, walleterr.ErrPersistenceCorruption) {
		t.Errorf("Restore(bad id) = %v, want ErrPersistenceCorruption", err)
	}
}

func TestSchedule_Interest(t *testing.T) {
	s := Schedule{
		BlocksPerYear: 1000,
		Tiers:         []Tier{{MinTerm: 500, RateBP: 600}, {MinTerm: 100, RateBP: 300}},
	}
	tests := []struct {
		amount uint64
		term   uint32
		want   uint64
	}{
		{amount: 1_000_000, term: 50, want: 0},
		{amount: 1_000_000, term: 100, want: 3_000},
		{amount: 1_000_000, term: 1000, want: 60_000},
		{amount: 7, term: 100, want: 0},
		// amount*rate overflows 64 bits but the quotient fits.
		{amount: math.MaxUint64 / 2, term: 1000, want: 553402322211286548},
	}
	for _, tt := range tests {
		if got := s.Interest(tt.amount, tt.term); got != tt.want {
			t.Errorf("Interest(%d, %d) = %d, want %d", tt.amount, tt.term, got, tt.want)
		}
	}

	huge := Schedule{BlocksPerYear: 1, Tiers: []Tier{{MinTerm: 1, RateBP: 10000}}}
	if got := huge.Interest(math.MaxUint64, 10); got != math.MaxUint64 {
		t.Errorf("saturating Interest() = %d", got)
	}
	if got := (Schedule{}).Interest(100, 100); got != 0 {
		t.Errorf("empty schedule Interest() = %d", got)
	}
}
