package outputs

import (
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"pgregory.net/rapid"
)

// recount sums unspent, non-deposit outputs of tracked addresses from scratch.
func recount(ix *Index) uint64 {
	var sum uint64
	for _, o := range ix.outputs {
		if ix.Tracked(o.Address) && o.Unspent() && !o.IsDeposit() {
			sum += o.Amount
		}
	}
	return sum
}

func TestIndex_BalancePartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ix := New(Params{
			DustThreshold: rapid.Uint64Range(0, 50).Draw(rt, "dust"),
			SpendableAge:  rapid.Uint32Range(0, 5).Draw(rt, "age"),
		})
		addrs := []types.Address{{1}, {2}, {3}}
		for _, a := range addrs {
			ix.Track(a)
		}

		var known []types.OutputRef
		height := uint32(0)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 9).Draw(rt, "op") {
			case 0:
				if height > 0 {
					fork := rapid.Uint32Range(0, height).Draw(rt, "fork")
					ix.Truncate(fork)
					if fork > 0 {
						height = fork - 1
					} else {
						height = 0
					}
				}
			case 1:
				addr := rapid.SampledFrom(addrs).Draw(rt, "untrack")
				ix.Untrack(addr)
				if rapid.Bool().Draw(rt, "retrack") {
					ix.Track(addr)
				}
			default:
				height++
				var recv []Received
				n := rapid.IntRange(0, 3).Draw(rt, "recv")
				for j := 0; j < n; j++ {
					r := types.OutputRef{TxHash: types.Hash{byte(height), byte(height >> 8)}, Index: uint32(j)}
					recv = append(recv, Received{
						Ref:          r,
						Address:      rapid.SampledFrom(addrs).Draw(rt, "addr"),
						Amount:       rapid.Uint64Range(1, 1000).Draw(rt, "amount"),
						UnlockHeight: rapid.Uint32Range(0, height+8).Draw(rt, "unlock"),
						DepositTerm:  uint32(rapid.SampledFrom([]int{0, 0, 0, 5}).Draw(rt, "term")),
					})
					known = append(known, r)
				}
				var spends []Spend
				if len(known) > 0 && rapid.Bool().Draw(rt, "spend") {
					spends = append(spends, Spend{Ref: rapid.SampledFrom(known).Draw(rt, "spent")})
				}
				ix.Apply(height, recv, spends)
			}

			g := ix.Global()
			if g.Provisional != 0 {
				rt.Fatalf("provisional without builds: %+v", g)
			}
			if got, want := g.Actual+g.Pending(), recount(ix); got != want {
				rt.Fatalf("actual+pending = %d, unspent sum = %d (height %d)", got, want, ix.Height())
			}

			fresh, err := Restore(ix.Params(), ix.Export(), addrs)
			if err != nil {
				rt.Fatalf("Restore() error: %v", err)
			}
			for _, a := range addrs {
				if !ix.Tracked(a) {
					continue
				}
				inc, _ := ix.Totals(a)
				full, _ := fresh.Totals(a)
				if inc != full {
					rt.Fatalf("incremental totals %+v differ from recomputed %+v", inc, full)
				}
			}
		}
	})
}
