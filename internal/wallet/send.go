package wallet

import (
	"context"

	"github.com/Klingon-tech/klingnet-wallet/internal/builder"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Transfer builds and commits a transaction. It returns the new record and
// the transaction secret key.
func (w *Wallet) Transfer(ctx context.Context, p builder.Parameters) (ledger.TransactionID, []byte, error) {
	s, err := w.session()
	if err != nil {
		return ledger.NoTransaction, nil, err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	id, secret, err := s.builder.Transfer(gctx, p)
	return id, secret, stoppedErr(ctx, err)
}

// MakeTransaction builds a transaction and holds it for CommitTransaction
// or RollbackUncommittedTransaction.
func (w *Wallet) MakeTransaction(p builder.Parameters) (ledger.TransactionID, error) {
	s, err := w.session()
	if err != nil {
		return ledger.NoTransaction, err
	}
	return s.builder.MakeTransaction(p)
}

// CommitTransaction broadcasts a transaction built by MakeTransaction.
func (w *Wallet) CommitTransaction(ctx context.Context, id ledger.TransactionID) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	return stoppedErr(ctx, s.builder.Commit(gctx, id))
}

// RollbackUncommittedTransaction cancels a transaction built by
// MakeTransaction and frees its inputs.
func (w *Wallet) RollbackUncommittedTransaction(id ledger.TransactionID) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	return s.builder.Rollback(id)
}

// CreateDeposit locks amount from source for term blocks and commits the
// transaction. The deposit output pays destination.
func (w *Wallet) CreateDeposit(ctx context.Context, amount uint64, term uint32, source, destination types.Address) (types.Hash, error) {
	s, err := w.session()
	if err != nil {
		return types.Hash{}, err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	hash, err := s.builder.CreateDeposit(gctx, amount, term, source, destination)
	return hash, stoppedErr(ctx, err)
}

// WithdrawDeposits spends unlocked deposits ids to destination and commits
// the transaction.
func (w *Wallet) WithdrawDeposits(ctx context.Context, ids []ledger.DepositID, destination types.Address) (types.Hash, error) {
	s, err := w.session()
	if err != nil {
		return types.Hash{}, err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	hash, err := s.builder.WithdrawDeposits(gctx, ids, destination)
	return hash, stoppedErr(ctx, err)
}

// CreateOptimizationTransaction merges small outputs of addr into one and
// commits the transaction.
func (w *Wallet) CreateOptimizationTransaction(ctx context.Context, addr types.Address) (types.Hash, error) {
	s, err := w.session()
	if err != nil {
		return types.Hash{}, err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	hash, err := s.builder.CreateOptimizationTransaction(gctx, addr)
	return hash, stoppedErr(ctx, err)
}

// CalculateInterest returns the interest a deposit of amount for term
// would earn.
func (w *Wallet) CalculateInterest(amount uint64, term uint32) uint64 {
	return w.params.Builder.Schedule.Interest(amount, term)
}
