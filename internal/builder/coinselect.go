package builder

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/cockroachdb/errors"
)

// Selection is the result of input selection.
type Selection struct {
	Inputs []outputs.Output // Selected outputs, oldest first.
	Total  uint64           // Sum of selected amounts.
	Change uint64           // Total - target.
}

// SelectOutputs chooses outputs covering target. Candidates must be ordered
// oldest first. Two strategies are tried:
//  1. Best fit: the smallest single output that covers the target.
//  2. Oldest first: accumulate outputs in age order until the target is met.
//
// The strategy leaving less change wins; ties go to the single output.
func SelectOutputs(candidates []outputs.Output, target uint64) (*Selection, error) {
	if target == 0 {
		return nil, errors.Wrap(walleterr.ErrInvalidParameters, "target must be positive")
	}

	var single *Selection
	for _, o := range candidates {
		if o.Amount < target {
			continue
		}
		if single == nil || o.Amount < single.Total {
			single = &Selection{Inputs: []outputs.Output{o}, Total: o.Amount, Change: o.Amount - target}
		}
	}

	var accum *Selection
	var selected []outputs.Output
	var total uint64
	for _, o := range candidates {
		if o.Amount == 0 {
			continue
		}
		selected = append(selected, o)
		total += o.Amount
		if total >= target {
			accum = &Selection{Inputs: selected, Total: total, Change: total - target}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, errors.Wrapf(walleterr.ErrInsufficientFunds, "have %d, need %d", totalAmount(candidates), target)
	}
}

// SelectSmallest picks up to max of the smallest candidates for
// consolidation, returned oldest first.
func SelectSmallest(candidates []outputs.Output, max int) []outputs.Output {
	sorted := append([]outputs.Output(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount < sorted[j].Amount })
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BlockHeight != sorted[j].BlockHeight {
			return sorted[i].BlockHeight < sorted[j].BlockHeight
		}
		return sorted[i].Ref.Less(sorted[j].Ref)
	})
	return sorted
}

func totalAmount(os []outputs.Output) uint64 {
	var total uint64
	for _, o := range os {
		total += o.Amount
	}
	return total
}
