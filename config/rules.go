package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// =============================================================================
// Network Rules (fixed per network)
// A wallet using rules that differ from the node's builds transactions the
// network rejects or reports balances it does not recognize.
// =============================================================================

// Denomination constants.
// 1 coin = 10^12 base units. All amounts are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// Rules holds the network rules the wallet follows.
type Rules struct {
	// Network identity
	ChainID string `json:"chain_id"`
	Symbol  string `json:"symbol,omitempty"`

	Fees     FeeRules      `json:"fees"`
	Outputs  OutputRules   `json:"outputs"`
	Sync     SyncRules     `json:"sync"`
	Deposits DepositRules  `json:"deposits"`
	Optimize OptimizeRules `json:"optimize"`
}

// FeeRules defines the minimum fee and mixin.
type FeeRules struct {
	MinFee     uint64 `json:"min_fee"`
	FeePerByte uint64 `json:"fee_per_byte"`
	FreeSize   uint64 `json:"free_size"` // Bytes covered by MinFee alone
	MinMixin   uint32 `json:"min_mixin"`
}

// OutputRules defines output maturity and dust.
type OutputRules struct {
	DustThreshold uint64 `json:"dust_threshold"`
	SpendableAge  uint32 `json:"spendable_age"` // Blocks
}

// SyncRules defines synchronization and pending transaction limits.
type SyncRules struct {
	MaxReorgDepth    uint32 `json:"max_reorg_depth"`    // 0 = unbounded
	PendingTxTimeout uint32 `json:"pending_tx_timeout"` // Blocks, 0 = never
}

// DepositRules defines deposit terms and the interest schedule.
type DepositRules struct {
	MinTerm       uint32        `json:"min_term"`
	MaxTerm       uint32        `json:"max_term"`
	MinAmount     uint64        `json:"min_amount"`
	BlocksPerYear uint32        `json:"blocks_per_year"`
	Tiers         []ledger.Tier `json:"tiers"`
}

// OptimizeRules bounds consolidation transactions.
type OptimizeRules struct {
	MinInputs int `json:"min_inputs"`
	MaxInputs int `json:"max_inputs"`
}

// Schedule returns the interest schedule of the deposit rules.
func (d DepositRules) Schedule() ledger.Schedule {
	return ledger.Schedule{
		BlocksPerYear: d.BlocksPerYear,
		Tiers:         append([]ledger.Tier(nil), d.Tiers...),
	}
}

// MainnetRules returns the mainnet wallet rules.
func MainnetRules() *Rules {
	return &Rules{
		ChainID: "klingnet-mainnet-1",
		Symbol:  "KGX",
		Fees: FeeRules{
			MinFee:     MilliCoin,
			FeePerByte: MicroCoin,
			FreeSize:   1024,
			MinMixin:   2,
		},
		Outputs: OutputRules{
			DustThreshold: MicroCoin,
			SpendableAge:  10,
		},
		Sync: SyncRules{
			MaxReorgDepth:    100,
			PendingTxTimeout: 720, // ~1 day at 2 minute blocks
		},
		Deposits: DepositRules{
			MinTerm:       5040,   // ~1 week
			MaxTerm:       262800, // ~1 year
			MinAmount:     Coin,
			BlocksPerYear: 262800,
			Tiers: []ledger.Tier{
				{MinTerm: 5040, RateBP: 300},
				{MinTerm: 21600, RateBP: 500},
				{MinTerm: 64800, RateBP: 700},
				{MinTerm: 131400, RateBP: 900},
			},
		},
		Optimize: OptimizeRules{
			MinInputs: 2,
			MaxInputs: 100,
		},
	}
}

// TestnetRules returns the testnet wallet rules.
func TestnetRules() *Rules {
	r := MainnetRules()
	r.ChainID = "klingnet-testnet-1"
	r.Symbol = "tKGX"
	r.Fees.MinMixin = 0
	r.Outputs.SpendableAge = 2
	r.Sync.PendingTxTimeout = 60
	r.Deposits.MinTerm = 10
	r.Deposits.MinAmount = MilliCoin
	r.Deposits.Tiers = []ledger.Tier{
		{MinTerm: 10, RateBP: 300},
		{MinTerm: 100, RateBP: 500},
		{MinTerm: 1000, RateBP: 900},
	}
	return r
}

// RulesFor returns the built-in rules for a network.
func RulesFor(network NetworkType) *Rules {
	switch network {
	case Testnet:
		return TestnetRules()
	default:
		return MainnetRules()
	}
}

// LoadRules loads network rules from a JSON file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	return &r, nil
}

// Save writes the rules to a file.
func (r *Rules) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}

	return nil
}

// Validate checks that the rules are consistent.
func (r *Rules) Validate() error {
	if r.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if r.Fees.FeePerByte > 0 && r.Fees.FreeSize == 0 {
		return fmt.Errorf("fee_per_byte requires free_size")
	}

	d := r.Deposits
	if d.MinTerm == 0 {
		return fmt.Errorf("deposits.min_term must be positive")
	}
	if d.MaxTerm < d.MinTerm {
		return fmt.Errorf("deposits.max_term %d below min_term %d", d.MaxTerm, d.MinTerm)
	}
	if d.BlocksPerYear == 0 {
		return fmt.Errorf("deposits.blocks_per_year must be positive")
	}
	seen := make(map[uint32]struct{}, len(d.Tiers))
	for i, t := range d.Tiers {
		if t.RateBP > 10_000 {
			return fmt.Errorf("deposits.tiers[%d] rate %d exceeds 10000 bp", i, t.RateBP)
		}
		if _, ok := seen[t.MinTerm]; ok {
			return fmt.Errorf("deposits.tiers has duplicate min_term %d", t.MinTerm)
		}
		seen[t.MinTerm] = struct{}{}
	}
	tiers := append([]ledger.Tier(nil), d.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinTerm < tiers[j].MinTerm })
	for i := 1; i < len(tiers); i++ {
		if tiers[i].RateBP < tiers[i-1].RateBP {
			return fmt.Errorf("deposits.tiers rate falls at min_term %d", tiers[i].MinTerm)
		}
	}

	o := r.Optimize
	if o.MinInputs < 2 {
		return fmt.Errorf("optimize.min_inputs must be at least 2")
	}
	if o.MaxInputs < o.MinInputs {
		return fmt.Errorf("optimize.max_inputs %d below min_inputs %d", o.MaxInputs, o.MinInputs)
	}
	return nil
}

// Hash returns the hash of the rules.
func (r *Rules) Hash() (types.Hash, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
