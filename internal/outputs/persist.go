package outputs

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// Data is the serializable form of an Index.
type Data struct {
	Height      uint32        `json:"height"`
	Outputs     []Output      `json:"outputs"`
	Provisional []Provisional `json:"provisional"`
}

// Export returns every output and provisional entry in a canonical order.
func (ix *Index) Export() Data {
	d := Data{
		Height:      ix.height,
		Outputs:     make([]Output, 0, len(ix.outputs)),
		Provisional: make([]Provisional, 0),
	}
	for _, o := range ix.outputs {
		d.Outputs = append(d.Outputs, *o)
	}
	sort.Slice(d.Outputs, func(i, j int) bool { return d.Outputs[i].Ref.Less(d.Outputs[j].Ref) })

	owners := make([]uint64, 0, len(ix.provisional))
	for owner := range ix.provisional {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	for _, owner := range owners {
		d.Provisional = append(d.Provisional, ix.provisional[owner]...)
	}
	return d
}

// Restore rebuilds an index from exported data and recomputes the totals of
// the tracked addresses.
func Restore(params Params, d Data, tracked []types.Address) (*Index, error) {
	ix := New(params)
	ix.height = d.Height
	for i := range d.Outputs {
		o := d.Outputs[i]
		if _, dup := ix.outputs[o.Ref]; dup {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "outputs: duplicate %s", o.Ref)
		}
		if o.State > Spent {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "outputs: %s has state %d", o.Ref, o.State)
		}
		ix.insert(&o)
		if o.State == Spent {
			ix.spent[o.SpentHeight] = append(ix.spent[o.SpentHeight], o.Ref)
		}
	}
	for _, p := range d.Provisional {
		ix.provisional[p.Owner] = append(ix.provisional[p.Owner], p)
	}
	for _, addr := range tracked {
		ix.Track(addr)
	}
	return ix, nil
}
