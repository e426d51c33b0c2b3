package outputs

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

var (
	addrA = types.Address{0x0a}
	addrB = types.Address{0x0b}
)

func ref(b byte, idx uint32) types.OutputRef {
	return types.OutputRef{TxHash: types.Hash{b}, Index: idx}
}

func newIndex(t *testing.T) *Index {
	t.Helper()
	ix := New(Params{DustThreshold: 10, SpendableAge: 2})
	ix.Track(addrA)
	ix.Track(addrB)
	return ix
}

func mustTotals(t *testing.T, ix *Index, addr types.Address) Totals {
	t.Helper()
	tot, err := ix.Totals(addr)
	if err != nil {
		t.Fatalf("Totals() error: %v", err)
	}
	return tot
}

func TestApply_MaturityAndDust(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(1, []Received{
		{Ref: ref(1, 0), Address: addrA, Amount: 1000},
		{Ref: ref(1, 1), Address: addrA, Amount: 5},
	}, nil)

	tot := mustTotals(t, ix, addrA)
	if tot.Actual != 0 || tot.Locked != 1005 {
		t.Fatalf("at height 1: %+v, want all locked", tot)
	}

	ix.SetHeight(3)
	tot = mustTotals(t, ix, addrA)
	if tot.Actual != 1000 || tot.Dust != 5 || tot.Locked != 0 {
		t.Errorf("at height 3: %+v, want actual=1000 dust=5", tot)
	}
	if tot.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", tot.Pending())
	}
}

func TestApply_Idempotent(t *testing.T) {
	ix := newIndex(t)
	recv := []Received{{Ref: ref(1, 0), Address: addrA, Amount: 100}}
	ix.Apply(5, recv, nil)
	ix.Apply(5, recv, nil)
	if g := ix.Global(); g.Locked != 100 {
		t.Errorf("replayed receive counted twice: %+v", g)
	}

	spend := []Spend{{Ref: ref(1, 0), TxHash: types.Hash{9}}}
	c1, _ := ix.Apply(6, nil, spend)
	c2, _ := ix.Apply(6, nil, spend)
	if len(c1) != 1 || len(c2) != 0 {
		t.Errorf("consumed = %d then %d, want 1 then 0", len(c1), len(c2))
	}
	if g := ix.Global(); g.Locked != 0 || g.Actual != 0 {
		t.Errorf("after spend: %+v, want zero", g)
	}
}

func TestTimeLockedUnlockCount(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(1, []Received{{Ref: ref(1, 0), Address: addrA, Amount: 100, UnlockHeight: 10}}, nil)

	if n := ix.SetHeight(9); n != 0 {
		t.Errorf("SetHeight(9) unlocked %d, want 0", n)
	}
	if n := ix.SetHeight(10); n != 1 {
		t.Errorf("SetHeight(10) unlocked %d, want 1", n)
	}
	if tot := mustTotals(t, ix, addrA); tot.Actual != 100 {
		t.Errorf("after unlock: %+v", tot)
	}
}

func TestReserveSentRelease(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(0, []Received{{Ref: ref(1, 0), Address: addrA, Amount: 1000}}, nil)
	ix.SetHeight(5)

	if err := ix.Reserve(7, []types.OutputRef{ref(1, 0)}); err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	if tot := mustTotals(t, ix, addrA); tot.Actual != 1000 {
		t.Errorf("reserved output should still count as actual: %+v", tot)
	}
	if got := ix.Spendable(nil, false); len(got) != 0 {
		t.Errorf("Spendable() returned reserved output")
	}
	if err := ix.Reserve(8, []types.OutputRef{ref(1, 0)}); !errors.Is(err, walleterr.ErrInvalidParameters) {
		t.Errorf("double Reserve() = %v, want ErrInvalidParameters", err)
	}

	ix.MarkSent(7)
	if tot := mustTotals(t, ix, addrA); tot.Actual != 0 {
		t.Errorf("sent output should leave actual: %+v", tot)
	}

	ix.Release(7)
	if tot := mustTotals(t, ix, addrA); tot.Actual != 1000 {
		t.Errorf("released output should return to actual: %+v", tot)
	}
	if len(ix.Owned(7)) != 0 {
		t.Error("Owned() after Release() should be empty")
	}
}

func TestReserve_AllOrNothing(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(0, []Received{{Ref: ref(1, 0), Address: addrA, Amount: 50}}, nil)

	err := ix.Reserve(1, []types.OutputRef{ref(1, 0), ref(2, 0)})
	if !errors.Is(err, walleterr.ErrUnknownIdentifier) {
		t.Fatalf("Reserve(unknown) = %v, want ErrUnknownIdentifier", err)
	}
	if o, _ := ix.Get(ref(1, 0)); o.State != Free {
		t.Errorf("partial reservation left state %s", o.State)
	}
}

func TestProvisional(t *testing.T) {
	ix := newIndex(t)
	ix.AddProvisional(3, []Provisional{{Address: addrA, Amount: 590}})
	if tot := mustTotals(t, ix, addrA); tot.Provisional != 590 || tot.Pending() != 590 {
		t.Errorf("provisional not counted: %+v", tot)
	}
	ix.DropProvisional(3)
	if g := ix.Global(); g.Provisional != 0 {
		t.Errorf("provisional not dropped: %+v", g)
	}
}

func TestTruncate(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(1, []Received{{Ref: ref(1, 0), Address: addrA, Amount: 100}}, nil)
	ix.Apply(4, []Received{{Ref: ref(4, 0), Address: addrA, Amount: 200}}, nil)
	ix.Reserve(9, []types.OutputRef{ref(4, 0)})
	ix.Apply(5, nil, []Spend{{Ref: ref(1, 0), TxHash: types.Hash{5}}})

	owners := ix.Truncate(4)
	if len(owners) != 1 || owners[0] != 9 {
		t.Errorf("Truncate() owners = %v, want [9]", owners)
	}
	if _, ok := ix.Get(ref(4, 0)); ok {
		t.Error("output created above fork survived")
	}
	o, _ := ix.Get(ref(1, 0))
	if o.State != Free {
		t.Errorf("spend above fork not undone: %s", o.State)
	}
	if ix.Height() != 3 {
		t.Errorf("Height() = %d, want 3", ix.Height())
	}
	if tot := mustTotals(t, ix, addrA); tot.Actual != 100 || tot.Locked != 0 {
		t.Errorf("after truncate: %+v", tot)
	}
}

func TestTruncate_Relocks(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(1, []Received{{Ref: ref(1, 0), Address: addrA, Amount: 100}}, nil)
	ix.SetHeight(6)
	if tot := mustTotals(t, ix, addrA); tot.Actual != 100 {
		t.Fatalf("not mature at 6: %+v", tot)
	}
	ix.Truncate(3)
	if tot := mustTotals(t, ix, addrA); tot.Locked != 100 || tot.Actual != 0 {
		t.Errorf("output should re-lock below maturity: %+v", tot)
	}
}

func TestUntrackTrack(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(0, []Received{
		{Ref: ref(1, 0), Address: addrA, Amount: 100},
		{Ref: ref(1, 1), Address: addrB, Amount: 300},
	}, nil)
	ix.SetHeight(10)

	ix.Untrack(addrB)
	if g := ix.Global(); g.Actual != 100 {
		t.Errorf("global after Untrack = %+v, want actual=100", g)
	}
	if _, err := ix.Totals(addrB); !errors.Is(err, walleterr.ErrUnknownAddress) {
		t.Errorf("Totals(untracked) = %v, want ErrUnknownAddress", err)
	}
	if _, ok := ix.Get(ref(1, 1)); !ok {
		t.Error("outputs of an untracked address should be kept")
	}

	ix.Track(addrB)
	if g := ix.Global(); g.Actual != 400 {
		t.Errorf("global after re-Track = %+v, want actual=400", g)
	}
}

func TestDepositOutputsExcluded(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(0, []Received{{Ref: ref(1, 0), Address: addrA, Amount: 500, DepositTerm: 10}}, nil)
	ix.SetHeight(20)
	if g := ix.Global(); g.Actual != 0 || g.Pending() != 0 {
		t.Errorf("deposit output counted in balances: %+v", g)
	}
	if len(ix.Unspent()) != 0 {
		t.Error("Unspent() should exclude deposit outputs")
	}
}

func TestExportRestore(t *testing.T) {
	ix := newIndex(t)
	ix.Apply(1, []Received{
		{Ref: ref(1, 0), Address: addrA, Amount: 100},
		{Ref: ref(1, 1), Address: addrB, Amount: 7},
	}, nil)
	ix.Apply(3, nil, []Spend{{Ref: ref(1, 0), TxHash: types.Hash{3}}})
	ix.AddProvisional(4, []Provisional{{Address: addrB, Amount: 20}})
	ix.SetHeight(8)

	got, err := Restore(ix.Params(), ix.Export(), []types.Address{addrA, addrB})
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got.Global() != ix.Global() {
		t.Errorf("restored totals = %+v, want %+v", got.Global(), ix.Global())
	}

	// Spends recorded before the save can still be truncated.
	got.Truncate(3)
	if o, _ := got.Get(ref(1, 0)); o.State != Free {
		t.Errorf("restored spend not truncatable: %s", o.State)
	}
}
