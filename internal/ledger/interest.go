package ledger

import (
	"math"
	"math/bits"
	"sort"
)

// Tier grants RateBP basis points per year to deposits with a term of at
// least MinTerm blocks.
type Tier struct {
	MinTerm uint32 `json:"min_term"`
	RateBP  uint32 `json:"rate_bp"`
}

// Schedule is the deposit interest schedule of a network.
type Schedule struct {
	BlocksPerYear uint32
	Tiers         []Tier
}

// Rate returns the yearly rate in basis points for term. Terms below every
// tier earn nothing.
func (s Schedule) Rate(term uint32) uint32 {
	tiers := append([]Tier(nil), s.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinTerm < tiers[j].MinTerm })
	var rate uint32
	for _, t := range tiers {
		if term >= t.MinTerm {
			rate = t.RateBP
		}
	}
	return rate
}

// Interest returns amount * rate(term) * term / (10000 * BlocksPerYear),
// rounded down. Results beyond uint64 saturate.
func (s Schedule) Interest(amount uint64, term uint32) uint64 {
	rate := s.Rate(term)
	if s.BlocksPerYear == 0 || rate == 0 || amount == 0 || term == 0 {
		return 0
	}
	hi, lo := bits.Mul64(amount, uint64(rate))
	carry, lo := bits.Mul64(lo, uint64(term))
	hi = hi*uint64(term) + carry

	div := 10000 * uint64(s.BlocksPerYear)
	if hi >= div {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, div)
	return q
}
