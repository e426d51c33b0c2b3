package outputs

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// Params are the network parameters that classify outputs.
type Params struct {
	// DustThreshold is the smallest amount counted as actual balance.
	DustThreshold uint64
	// SpendableAge is the number of blocks before a new output matures.
	SpendableAge uint32
}

// Received describes a new output reported by the synchronization feed.
type Received struct {
	Ref          types.OutputRef
	GlobalIndex  uint64
	Address      types.Address
	Amount       uint64
	UnlockHeight uint32
	DepositTerm  uint32
}

// Spend reports an output consumed on chain by TxHash.
type Spend struct {
	Ref    types.OutputRef
	TxHash types.Hash
}

// Consumed describes an output newly marked Spent by Apply.
type Consumed struct {
	Output    Output
	PrevState State
	PrevOwner uint64
}

// Index holds every output the wallet has received. It is not safe for
// concurrent use; the wallet state lock guards it.
type Index struct {
	params Params
	height uint32

	outputs map[types.OutputRef]*Output
	byAddr  map[types.Address]map[types.OutputRef]*Output
	created map[uint32][]types.OutputRef
	spent   map[uint32][]types.OutputRef
	unlocks map[uint32][]types.OutputRef

	totals      map[types.Address]*Totals
	global      Totals
	provisional map[uint64][]Provisional
}

// New creates an empty index.
func New(params Params) *Index {
	return &Index{
		params:      params,
		outputs:     make(map[types.OutputRef]*Output),
		byAddr:      make(map[types.Address]map[types.OutputRef]*Output),
		created:     make(map[uint32][]types.OutputRef),
		spent:       make(map[uint32][]types.OutputRef),
		unlocks:     make(map[uint32][]types.OutputRef),
		totals:      make(map[types.Address]*Totals),
		provisional: make(map[uint64][]Provisional),
	}
}

// Params returns the classification parameters.
func (ix *Index) Params() Params { return ix.params }

// Height returns the sync height outputs are classified against.
func (ix *Index) Height() uint32 { return ix.height }

func (ix *Index) classAt(o *Output, height uint32) class {
	if o.IsDeposit() || !o.Unspent() {
		return classNone
	}
	if height < o.MaturityHeight(ix.params.SpendableAge) {
		return classLocked
	}
	if o.Amount < ix.params.DustThreshold {
		return classDust
	}
	return classActual
}

// account adds or removes o's contribution in class c.
func (ix *Index) account(o *Output, c class, add bool) {
	t, ok := ix.totals[o.Address]
	if !ok || c == classNone {
		return
	}
	if add {
		t.add(c, o.Amount)
		ix.global.add(c, o.Amount)
	} else {
		t.sub(c, o.Amount)
		ix.global.sub(c, o.Amount)
	}
}

// transition applies mutate to o and moves its contribution between classes.
func (ix *Index) transition(o *Output, mutate func()) {
	before := ix.classAt(o, ix.height)
	mutate()
	after := ix.classAt(o, ix.height)
	if before != after {
		ix.account(o, before, false)
		ix.account(o, after, true)
	}
}

// Track starts maintaining totals for addr. Existing outputs and provisional
// entries of addr are counted.
func (ix *Index) Track(addr types.Address) {
	if _, ok := ix.totals[addr]; ok {
		return
	}
	ix.totals[addr] = &Totals{}
	for _, o := range ix.byAddr[addr] {
		ix.account(o, ix.classAt(o, ix.height), true)
	}
	for _, ps := range ix.provisional {
		for _, p := range ps {
			if p.Address == addr {
				ix.totals[addr].Provisional += p.Amount
				ix.global.Provisional += p.Amount
			}
		}
	}
}

// Untrack stops maintaining totals for addr. Its outputs are kept.
func (ix *Index) Untrack(addr types.Address) {
	t, ok := ix.totals[addr]
	if !ok {
		return
	}
	ix.global.Actual -= t.Actual
	ix.global.Locked -= t.Locked
	ix.global.Dust -= t.Dust
	ix.global.Provisional -= t.Provisional
	delete(ix.totals, addr)
}

// Tracked reports whether totals are maintained for addr.
func (ix *Index) Tracked(addr types.Address) bool {
	_, ok := ix.totals[addr]
	return ok
}

// SetHeight reclassifies outputs whose maturity lies between the current and
// the new height. It returns how many time-locked outputs became spendable.
func (ix *Index) SetHeight(height uint32) int {
	old := ix.height
	if height == old {
		return 0
	}
	lo, hi := old, height
	if height < old {
		lo, hi = height, old
	}

	var heights []uint32
	if uint64(hi-lo) <= uint64(len(ix.unlocks)) {
		for h := lo + 1; h <= hi && h > lo; h++ {
			if _, ok := ix.unlocks[h]; ok {
				heights = append(heights, h)
			}
		}
	} else {
		for h := range ix.unlocks {
			if h > lo && h <= hi {
				heights = append(heights, h)
			}
		}
	}

	unlocked := 0
	for _, h := range heights {
		for _, ref := range ix.unlocks[h] {
			o, ok := ix.outputs[ref]
			if !ok || o.MaturityHeight(ix.params.SpendableAge) != h {
				continue
			}
			before := ix.classAt(o, old)
			after := ix.classAt(o, height)
			if before == after {
				continue
			}
			ix.account(o, before, false)
			ix.account(o, after, true)
			if before == classLocked && o.UnlockHeight > 0 {
				unlocked++
			}
		}
	}
	ix.height = height
	return unlocked
}

// Apply records a block's new outputs and spends at height. Outputs already
// known and spends already recorded are ignored, so replaying a block is a
// no-op. It returns the outputs newly marked Spent and the number of
// time-locked outputs that matured.
func (ix *Index) Apply(height uint32, received []Received, spends []Spend) ([]Consumed, int) {
	unlocked := 0
	if height > ix.height {
		unlocked = ix.SetHeight(height)
	}

	for _, r := range received {
		if _, ok := ix.outputs[r.Ref]; ok {
			continue
		}
		o := &Output{
			Ref:          r.Ref,
			GlobalIndex:  r.GlobalIndex,
			Address:      r.Address,
			Amount:       r.Amount,
			BlockHeight:  height,
			UnlockHeight: r.UnlockHeight,
			DepositTerm:  r.DepositTerm,
			State:        Free,
			Owner:        NoOwner,
		}
		ix.insert(o)
		ix.account(o, ix.classAt(o, ix.height), true)
	}

	var consumed []Consumed
	for _, s := range spends {
		o, ok := ix.outputs[s.Ref]
		if !ok || o.State == Spent {
			continue
		}
		c := Consumed{PrevState: o.State, PrevOwner: o.Owner}
		ix.transition(o, func() {
			o.State = Spent
			o.SpendingTx = s.TxHash
			o.SpentHeight = height
		})
		ix.spent[height] = append(ix.spent[height], o.Ref)
		c.Output = *o
		consumed = append(consumed, c)
	}
	return consumed, unlocked
}

func (ix *Index) insert(o *Output) {
	ix.outputs[o.Ref] = o
	m, ok := ix.byAddr[o.Address]
	if !ok {
		m = make(map[types.OutputRef]*Output)
		ix.byAddr[o.Address] = m
	}
	m[o.Ref] = o
	ix.created[o.BlockHeight] = append(ix.created[o.BlockHeight], o.Ref)
	mh := o.MaturityHeight(ix.params.SpendableAge)
	ix.unlocks[mh] = append(ix.unlocks[mh], o.Ref)
}

func (ix *Index) remove(o *Output) {
	ix.account(o, ix.classAt(o, ix.height), false)
	delete(ix.outputs, o.Ref)
	if m := ix.byAddr[o.Address]; m != nil {
		delete(m, o.Ref)
		if len(m) == 0 {
			delete(ix.byAddr, o.Address)
		}
	}
	mh := o.MaturityHeight(ix.params.SpendableAge)
	refs := ix.unlocks[mh][:0]
	for _, r := range ix.unlocks[mh] {
		if r != o.Ref {
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 {
		delete(ix.unlocks, mh)
	} else {
		ix.unlocks[mh] = refs
	}
}

// Truncate discards everything recorded at or above fork: outputs created
// there are removed and spends recorded there are undone. The height becomes
// fork-1 (or zero). It returns the owners that held a removed output.
func (ix *Index) Truncate(fork uint32) []uint64 {
	owners := make(map[uint64]bool)
	for h, refs := range ix.created {
		if h < fork {
			continue
		}
		for _, ref := range refs {
			o, ok := ix.outputs[ref]
			if !ok || o.BlockHeight != h {
				continue
			}
			if o.State == Reserved || o.State == Sent {
				owners[o.Owner] = true
			}
			ix.remove(o)
		}
		delete(ix.created, h)
	}

	newHeight := uint32(0)
	if fork > 0 {
		newHeight = fork - 1
	}
	if newHeight < ix.height {
		ix.SetHeight(newHeight)
	}

	for h, refs := range ix.spent {
		if h < fork {
			continue
		}
		for _, ref := range refs {
			o, ok := ix.outputs[ref]
			if !ok || o.State != Spent || o.SpentHeight != h {
				continue
			}
			ix.transition(o, func() {
				o.State = Free
				o.Owner = NoOwner
				o.SpendingTx = types.Hash{}
				o.SpentHeight = 0
			})
		}
		delete(ix.spent, h)
	}

	res := make([]uint64, 0, len(owners))
	for owner := range owners {
		res = append(res, owner)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Reserve marks refs as Reserved by owner. Either every output is reserved
// or none is.
func (ix *Index) Reserve(owner uint64, refs []types.OutputRef) error {
	seen := make(map[types.OutputRef]bool, len(refs))
	for _, ref := range refs {
		o, ok := ix.outputs[ref]
		if !ok {
			return errors.Wrapf(walleterr.ErrUnknownIdentifier, "output %s", ref)
		}
		if o.State != Free || seen[ref] {
			return errors.Wrapf(walleterr.ErrInvalidParameters, "output %s is %s", ref, o.State)
		}
		seen[ref] = true
	}
	for _, ref := range refs {
		o := ix.outputs[ref]
		o.State = Reserved
		o.Owner = owner
	}
	return nil
}

// MarkSent moves owner's Reserved outputs to Sent.
func (ix *Index) MarkSent(owner uint64) {
	for _, o := range ix.owned(owner) {
		if o.State == Reserved {
			ix.transition(o, func() { o.State = Sent })
		}
	}
}

// Release frees every output Reserved or Sent by owner.
func (ix *Index) Release(owner uint64) {
	for _, o := range ix.owned(owner) {
		ix.transition(o, func() {
			o.State = Free
			o.Owner = NoOwner
		})
	}
}

// Owned returns the refs Reserved or Sent by owner in ref order.
func (ix *Index) Owned(owner uint64) []types.OutputRef {
	os := ix.owned(owner)
	refs := make([]types.OutputRef, len(os))
	for i, o := range os {
		refs[i] = o.Ref
	}
	return refs
}

func (ix *Index) owned(owner uint64) []*Output {
	var res []*Output
	for _, o := range ix.outputs {
		if o.Owner == owner && (o.State == Reserved || o.State == Sent) {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Ref.Less(res[j].Ref) })
	return res
}

// AddProvisional records incoming outputs a built transaction will create.
func (ix *Index) AddProvisional(owner uint64, ps []Provisional) {
	for _, p := range ps {
		p.Owner = owner
		ix.provisional[owner] = append(ix.provisional[owner], p)
		if t, ok := ix.totals[p.Address]; ok {
			t.Provisional += p.Amount
			ix.global.Provisional += p.Amount
		}
	}
}

// DropProvisional forgets owner's provisional outputs.
func (ix *Index) DropProvisional(owner uint64) {
	for _, p := range ix.provisional[owner] {
		if t, ok := ix.totals[p.Address]; ok {
			t.Provisional -= p.Amount
			ix.global.Provisional -= p.Amount
		}
	}
	delete(ix.provisional, owner)
}

// Get returns a copy of the output at ref.
func (ix *Index) Get(ref types.OutputRef) (Output, bool) {
	o, ok := ix.outputs[ref]
	if !ok {
		return Output{}, false
	}
	return *o, true
}

// Totals returns the running totals of a tracked address.
func (ix *Index) Totals(addr types.Address) (Totals, error) {
	t, ok := ix.totals[addr]
	if !ok {
		return Totals{}, errors.Wrapf(walleterr.ErrUnknownAddress, "%s", addr)
	}
	return *t, nil
}

// Global returns the totals across all tracked addresses.
func (ix *Index) Global() Totals { return ix.global }

// Unspent returns the unspent, non-deposit outputs of addrs (all tracked
// addresses when addrs is empty), oldest first.
func (ix *Index) Unspent(addrs ...types.Address) []Output {
	return ix.collect(addrs, func(o *Output) bool {
		return o.Unspent() && !o.IsDeposit()
	})
}

// Spendable returns Free, mature, non-deposit outputs of addrs, oldest
// first. Dust is included only when includeDust is set.
func (ix *Index) Spendable(addrs []types.Address, includeDust bool) []Output {
	return ix.collect(addrs, func(o *Output) bool {
		if o.State != Free {
			return false
		}
		switch ix.classAt(o, ix.height) {
		case classActual:
			return true
		case classDust:
			return includeDust
		default:
			return false
		}
	})
}

func (ix *Index) collect(addrs []types.Address, keep func(*Output) bool) []Output {
	if len(addrs) == 0 {
		for addr := range ix.totals {
			addrs = append(addrs, addr)
		}
	}
	var res []Output
	for _, addr := range addrs {
		if !ix.Tracked(addr) {
			continue
		}
		for _, o := range ix.byAddr[addr] {
			if keep(o) {
				res = append(res, *o)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].BlockHeight != res[j].BlockHeight {
			return res[i].BlockHeight < res[j].BlockHeight
		}
		return res[i].Ref.Less(res[j].Ref)
	})
	return res
}
