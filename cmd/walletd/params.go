package main

import (
	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/builder"
	"github.com/Klingon-tech/klingnet-wallet/internal/container"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/tracker"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// walletParams maps network rules onto the wallet components.
func walletParams(r *config.Rules) wallet.Params {
	return wallet.Params{
		Outputs: outputs.Params{
			DustThreshold: r.Outputs.DustThreshold,
			SpendableAge:  r.Outputs.SpendableAge,
		},
		Tracker: tracker.Params{
			MaxReorgDepth: r.Sync.MaxReorgDepth,
			Schedule:      r.Deposits.Schedule(),
		},
		Builder: builder.Params{
			MinFee:            r.Fees.MinFee,
			FeePerByte:        r.Fees.FeePerByte,
			FreeSize:          r.Fees.FreeSize,
			MinMixin:          r.Fees.MinMixin,
			DustThreshold:     r.Outputs.DustThreshold,
			PendingTxTimeout:  r.Sync.PendingTxTimeout,
			MinDepositTerm:    r.Deposits.MinTerm,
			MaxDepositTerm:    r.Deposits.MaxTerm,
			MinDepositAmount:  r.Deposits.MinAmount,
			Schedule:          r.Deposits.Schedule(),
			OptimizeMinInputs: r.Optimize.MinInputs,
			OptimizeMaxInputs: r.Optimize.MaxInputs,
		},
	}
}

// encryptionParams returns the container KDF settings of cfg.
func encryptionParams(cfg *config.Config) container.EncryptionParams {
	return container.EncryptionParams{
		Memory:      cfg.Wallet.KDFMemory,
		Iterations:  cfg.Wallet.KDFIterations,
		Parallelism: cfg.Wallet.KDFParallelism,
	}
}
