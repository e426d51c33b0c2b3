package builder

import (
	"context"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// CreateDeposit locks amount for term blocks at destination (the source
// address when empty), paying the network minimum fee from source. It
// commits the transaction and returns its hash.
func (b *Builder) CreateDeposit(ctx context.Context, amount uint64, term uint32, source, destination types.Address) (types.Hash, error) {
	if destination.IsZero() {
		destination = source
	}
	p := Parameters{
		Destinations: []Destination{{Address: destination, Amount: amount}},
		Fee:          b.params.MinFee,
		Mixin:        b.params.MinMixin,
		DepositTerm:  term,
	}
	if !source.IsZero() {
		p.SourceAddresses = []types.Address{source}
	}
	id, _, err := b.make(p)
	if err != nil {
		return types.Hash{}, err
	}
	return b.commitHash(ctx, id)
}

// WithdrawDeposits spends unlocked deposits to destination (the first
// deposit's address when empty). Principal plus interest, less the network
// minimum fee, is paid out. It commits the transaction and returns its hash.
func (b *Builder) WithdrawDeposits(ctx context.Context, ids []ledger.DepositID, destination types.Address) (types.Hash, error) {
	if len(ids) == 0 {
		return types.Hash{}, errors.Wrap(walleterr.ErrInvalidParameters, "no deposits")
	}

	var id ledger.TransactionID
	err := b.st.Update(func(st *state.Tx) error {
		pl, err := b.planWithdrawal(st, ids, destination)
		if err != nil {
			return err
		}
		id, _, err = b.record(st, pl)
		return err
	})
	if err != nil {
		return types.Hash{}, err
	}
	return b.commitHash(ctx, id)
}

func (b *Builder) planWithdrawal(st *state.Tx, ids []ledger.DepositID, destination types.Address) (*plan, error) {
	pl := &plan{fee: b.params.MinFee}
	seen := make(map[ledger.DepositID]bool, len(ids))
	var total uint64
	for _, depID := range ids {
		if seen[depID] {
			return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "deposit %d listed twice", depID)
		}
		seen[depID] = true

		d, err := st.Ledger.Deposit(depID)
		if err != nil {
			return nil, err
		}
		if !d.Live() || d.Locked {
			return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "deposit %d is not withdrawable", depID)
		}
		if o, ok := st.Outputs.Get(d.Output); !ok || o.State != outputs.Free {
			return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "deposit %d is already being withdrawn", depID)
		}
		if _, err := st.Keys.SpendSecret(d.Address); err != nil {
			return nil, err
		}
		pl.inputs = append(pl.inputs, input{ref: d.Output, address: d.Address, amount: d.Value(), deposit: true})
		total += d.Value()
		if destination.IsZero() {
			destination = d.Address
		}
	}
	if total <= pl.fee {
		return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "deposits worth %d do not cover fee %d", total, pl.fee)
	}

	amount := total - pl.fee
	pl.outputs = []tx.Output{{Amount: amount, Address: destination}}
	pl.transfers = []ledger.Transfer{{Type: ledger.Usual, Address: destination, Amount: int64(amount)}}
	if st.Keys.Has(destination) {
		pl.provisional = []outputs.Provisional{{Address: destination, Amount: amount}}
	}
	if err := b.checkFee(pl, 0); err != nil {
		return nil, err
	}
	return pl, nil
}

// CreateOptimizationTransaction consolidates the smallest spendable outputs
// of addr, dust included, into one output back to addr. It commits the
// transaction and returns its hash.
func (b *Builder) CreateOptimizationTransaction(ctx context.Context, addr types.Address) (types.Hash, error) {
	var id ledger.TransactionID
	err := b.st.Update(func(st *state.Tx) error {
		pl, err := b.planOptimization(st, addr)
		if err != nil {
			return err
		}
		id, _, err = b.record(st, pl)
		return err
	})
	if err != nil {
		return types.Hash{}, err
	}
	log.Builder.Info().Uint64("tx", uint64(id)).Str("address", addr.String()).Msg("Optimization transaction created")
	return b.commitHash(ctx, id)
}

func (b *Builder) planOptimization(st *state.Tx, addr types.Address) (*plan, error) {
	if _, err := st.Keys.SpendSecret(addr); err != nil {
		return nil, err
	}
	minInputs, maxInputs := b.params.OptimizeMinInputs, b.params.OptimizeMaxInputs
	if minInputs < 2 {
		minInputs = 2
	}
	if maxInputs < minInputs {
		maxInputs = tx.MaxInputs
	}

	candidates := SelectSmallest(st.Outputs.Spendable([]types.Address{addr}, true), maxInputs)
	if len(candidates) < minInputs {
		return nil, errors.Wrapf(walleterr.ErrInvalidParameters,
			"%d outputs to optimize, need at least %d", len(candidates), minInputs)
	}

	pl := &plan{fee: b.params.MinFee}
	dust := st.Outputs.Params().DustThreshold
	var total uint64
	for _, o := range candidates {
		mixin := b.params.MinMixin
		if o.Amount < dust {
			mixin = 0
		}
		pl.inputs = append(pl.inputs, input{ref: o.Ref, address: o.Address, amount: o.Amount, mixin: mixin})
		total += o.Amount
	}
	if total <= pl.fee {
		return nil, errors.Wrapf(walleterr.ErrInsufficientFunds, "outputs worth %d do not cover fee %d", total, pl.fee)
	}

	amount := total - pl.fee
	pl.outputs = []tx.Output{{Amount: amount, Address: addr}}
	pl.transfers = []ledger.Transfer{{Type: ledger.Change, Address: addr, Amount: int64(amount)}}
	pl.provisional = []outputs.Provisional{{Address: addr, Amount: amount}}
	if err := b.checkFee(pl, b.params.MinMixin); err != nil {
		return nil, err
	}
	return pl, nil
}
