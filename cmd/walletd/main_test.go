package main

import (
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/config"
)

func TestWalletParams_FromRules(t *testing.T) {
	r := config.MainnetRules()
	p := walletParams(r)

	if p.Outputs.DustThreshold != r.Outputs.DustThreshold || p.Builder.DustThreshold != r.Outputs.DustThreshold {
		t.Error("dust threshold not carried to outputs and builder")
	}
	if p.Outputs.SpendableAge != r.Outputs.SpendableAge {
		t.Errorf("spendable age: got %d, want %d", p.Outputs.SpendableAge, r.Outputs.SpendableAge)
	}
	if p.Tracker.MaxReorgDepth != r.Sync.MaxReorgDepth {
		t.Errorf("max reorg depth: got %d, want %d", p.Tracker.MaxReorgDepth, r.Sync.MaxReorgDepth)
	}
	if p.Builder.MinDepositTerm != r.Deposits.MinTerm || p.Builder.MaxDepositTerm != r.Deposits.MaxTerm {
		t.Error("deposit terms not carried to builder")
	}

	// Tracker and builder compute the same interest.
	term := r.Deposits.MaxTerm
	if a, b := p.Tracker.Schedule.Interest(config.Coin, term), p.Builder.Schedule.Interest(config.Coin, term); a != b || a == 0 {
		t.Errorf("interest mismatch: tracker %d, builder %d", a, b)
	}
}

func TestEncryptionParams(t *testing.T) {
	cfg := config.DefaultMainnet()
	p := encryptionParams(cfg)
	if p.Memory != cfg.Wallet.KDFMemory || p.Iterations != cfg.Wallet.KDFIterations || p.Parallelism != cfg.Wallet.KDFParallelism {
		t.Errorf("got %+v", p)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{config.Coin, "1"},
		{config.Coin + config.MilliCoin*500, "1.5"},
		{1, "0.000000000001"},
		{42*config.Coin + 10, "42.00000000001"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.in); got != tt.want {
			t.Errorf("formatAmount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
