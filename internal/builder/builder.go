// Package builder assembles outgoing transactions from the wallet's outputs,
// reserves their inputs and drives commit and rollback.
package builder

import (
	"context"
	"math"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/lightningnetwork/lnd/clock"
)

// Params are the network rules the builder enforces.
type Params struct {
	MinFee     uint64
	FeePerByte uint64
	// FreeSize is the transaction size covered by MinFee alone.
	FreeSize uint64
	MinMixin uint32
	// DustThreshold sizes donation legs.
	DustThreshold uint64
	// PendingTxTimeout is the default number of blocks a committed
	// transaction may stay unconfirmed before it fails. Zero disables it.
	PendingTxTimeout uint32

	MinDepositTerm   uint32
	MaxDepositTerm   uint32
	MinDepositAmount uint64
	Schedule         ledger.Schedule

	// OptimizeMinInputs and OptimizeMaxInputs bound consolidation.
	OptimizeMinInputs int
	OptimizeMaxInputs int
}

// Broadcaster submits signed transactions to the network.
type Broadcaster interface {
	Broadcast(ctx context.Context, blob []byte) error
}

// Builder creates, commits and rolls back local transactions.
type Builder struct {
	st     *state.State
	params Params
	clock  clock.Clock
	sink   Broadcaster

	mu       sync.Mutex
	inflight map[ledger.TransactionID]bool
}

// New creates a builder over st.
func New(st *state.State, params Params, clk clock.Clock, sink Broadcaster) *Builder {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Builder{
		st:       st,
		params:   params,
		clock:    clk,
		sink:     sink,
		inflight: make(map[ledger.TransactionID]bool),
	}
}

// Params returns the builder's network rules.
func (b *Builder) Params() Params { return b.params }

// Interest returns the interest a deposit of amount for term would earn.
func (b *Builder) Interest(amount uint64, term uint32) uint64 {
	return b.params.Schedule.Interest(amount, term)
}

// input is one selected input with the address whose key signs it.
type input struct {
	ref     types.OutputRef
	address types.Address
	amount  uint64
	mixin   uint32
	deposit bool
}

// plan is a transaction ready to be signed and recorded.
type plan struct {
	inputs      []input
	outputs     []tx.Output
	transfers   []ledger.Transfer
	provisional []outputs.Provisional
	fee         uint64
	extra       []byte
	messages    []string
	unlockTime  uint64
	ttl         uint32
}

// MakeTransaction builds, signs and records a transaction without
// broadcasting it. Its inputs are reserved until Commit or Rollback.
func (b *Builder) MakeTransaction(p Parameters) (ledger.TransactionID, error) {
	id, _, err := b.make(p)
	return id, err
}

func (b *Builder) make(p Parameters) (ledger.TransactionID, []byte, error) {
	if err := b.validate(&p); err != nil {
		return ledger.NoTransaction, nil, err
	}

	var id ledger.TransactionID
	var secret []byte
	err := b.st.Update(func(st *state.Tx) error {
		pl, err := b.planTransfer(st, &p)
		if err != nil {
			return err
		}
		id, secret, err = b.record(st, pl)
		return err
	})
	if err != nil {
		log.Builder.Debug().Err(err).Msg("Transaction not built")
		return ledger.NoTransaction, nil, err
	}
	return id, secret, nil
}

// validate checks the request shape before any state is read.
func (b *Builder) validate(p *Parameters) error {
	if len(p.Destinations) == 0 {
		return errors.Wrap(walleterr.ErrInvalidParameters, "no destinations")
	}
	var sum uint64
	for i, d := range p.Destinations {
		if d.Amount == 0 {
			return errors.Wrapf(walleterr.ErrInvalidParameters, "destination %d: zero amount", i)
		}
		if d.Address.IsZero() {
			return errors.Wrapf(walleterr.ErrInvalidParameters, "destination %d: empty address", i)
		}
		if sum > math.MaxUint64-d.Amount {
			return errors.Wrap(walleterr.ErrInvalidParameters, "destination amounts overflow")
		}
		sum += d.Amount
		if p.DepositTerm > 0 {
			if d.Amount < b.params.MinDepositAmount {
				return errors.Wrapf(walleterr.ErrInvalidParameters, "deposit amount %d below minimum %d", d.Amount, b.params.MinDepositAmount)
			}
		}
	}
	if sum > math.MaxUint64-p.Fee {
		return errors.Wrap(walleterr.ErrInvalidParameters, "amount plus fee overflows")
	}
	if p.Fee < b.params.MinFee {
		return errors.Wrapf(walleterr.ErrInvalidParameters, "fee %d below minimum %d", p.Fee, b.params.MinFee)
	}
	if p.Mixin < b.params.MinMixin {
		return errors.Wrapf(walleterr.ErrInvalidParameters, "mixin %d below minimum %d", p.Mixin, b.params.MinMixin)
	}
	if p.DepositTerm > 0 {
		if p.DepositTerm < b.params.MinDepositTerm || (b.params.MaxDepositTerm > 0 && p.DepositTerm > b.params.MaxDepositTerm) {
			return errors.Wrapf(walleterr.ErrInvalidParameters, "deposit term %d outside [%d, %d]",
				p.DepositTerm, b.params.MinDepositTerm, b.params.MaxDepositTerm)
		}
	}
	if p.Donation.Threshold > 0 && p.Donation.Address.IsZero() {
		return errors.Wrap(walleterr.ErrInvalidParameters, "donation threshold without address")
	}
	return nil
}

// sources resolves the spending addresses of a request.
func sources(st *state.Tx, requested []types.Address) ([]types.Address, error) {
	if len(requested) == 0 {
		var addrs []types.Address
		for _, a := range st.Keys.Addresses() {
			if rec, err := st.Keys.Get(a); err == nil && !rec.ViewOnly() {
				addrs = append(addrs, a)
			}
		}
		if len(addrs) == 0 {
			return nil, errors.Wrap(walleterr.ErrUnknownAddress, "no spendable addresses")
		}
		return addrs, nil
	}
	for _, a := range requested {
		rec, err := st.Keys.Get(a)
		if err != nil {
			return nil, err
		}
		if rec.ViewOnly() {
			return nil, errors.Wrapf(walleterr.ErrUnknownAddress, "%s is view-only", a)
		}
	}
	return requested, nil
}

// planTransfer selects inputs and lays out the outputs of a transfer or
// deposit creation.
func (b *Builder) planTransfer(st *state.Tx, p *Parameters) (*plan, error) {
	srcs, err := sources(st, p.SourceAddresses)
	if err != nil {
		return nil, err
	}
	change := p.ChangeDestination
	if change.IsZero() {
		change = srcs[0]
	} else if !st.Keys.Has(change) {
		return nil, errors.Wrapf(walleterr.ErrUnknownAddress, "change destination %s", change)
	}

	var target uint64
	for _, d := range p.Destinations {
		target += d.Amount
	}
	target += p.Fee

	mixin := p.Mixin
	sel, err := SelectOutputs(st.Outputs.Spendable(srcs, false), target)
	if errors.Is(err, walleterr.ErrInsufficientFunds) && p.RelaxMixin {
		sel, err = SelectOutputs(st.Outputs.Spendable(srcs, true), target)
	}
	if err != nil {
		return nil, err
	}

	extra, err := buildExtra(p)
	if err != nil {
		return nil, err
	}

	pl := &plan{
		fee:        p.Fee,
		extra:      extra,
		messages:   append([]string(nil), p.Messages...),
		unlockTime: p.UnlockTimestamp,
		ttl:        p.TTL,
	}
	for _, o := range sel.Inputs {
		in := input{ref: o.Ref, address: o.Address, amount: o.Amount, mixin: mixin}
		if o.Amount < st.Outputs.Params().DustThreshold {
			in.mixin = 0
		}
		pl.inputs = append(pl.inputs, in)
	}

	for _, d := range p.Destinations {
		out := tx.Output{Amount: d.Amount, Address: d.Address, Term: p.DepositTerm}
		pl.outputs = append(pl.outputs, out)
		pl.transfers = append(pl.transfers, ledger.Transfer{Type: ledger.Usual, Address: d.Address, Amount: int64(d.Amount)})
		if p.DepositTerm == 0 && st.Keys.Has(d.Address) {
			pl.provisional = append(pl.provisional, outputs.Provisional{Address: d.Address, Amount: d.Amount})
		}
	}

	rest := sel.Change
	if donate := b.donation(rest, p.Donation); donate > 0 {
		rest -= donate
		pl.outputs = append(pl.outputs, tx.Output{Amount: donate, Address: p.Donation.Address})
		pl.transfers = append(pl.transfers, ledger.Transfer{Type: ledger.Donation, Address: p.Donation.Address, Amount: int64(donate)})
		if st.Keys.Has(p.Donation.Address) {
			pl.provisional = append(pl.provisional, outputs.Provisional{Address: p.Donation.Address, Amount: donate})
		}
	}
	if rest > 0 {
		pl.outputs = append(pl.outputs, tx.Output{Amount: rest, Address: change})
		pl.transfers = append(pl.transfers, ledger.Transfer{Type: ledger.Change, Address: change, Amount: int64(rest)})
		pl.provisional = append(pl.provisional, outputs.Provisional{Address: change, Amount: rest})
	}

	if err := b.checkFee(pl, mixin); err != nil {
		return nil, err
	}
	return pl, nil
}

// donation returns the donation leg for change: the largest multiple of the
// dust threshold not above change or the threshold.
func (b *Builder) donation(change uint64, d Donation) uint64 {
	if d.Address.IsZero() || d.Threshold == 0 || change == 0 {
		return 0
	}
	amount := change
	if d.Threshold < amount {
		amount = d.Threshold
	}
	if dust := b.params.DustThreshold; dust > 0 {
		amount -= amount % dust
	}
	return amount
}

// checkFee rejects plans whose fee is below the size-based minimum.
func (b *Builder) checkFee(pl *plan, mixin uint32) error {
	size := tx.EstimateSize(len(pl.inputs), len(pl.outputs), mixin, len(pl.extra))
	required := tx.RequiredFee(size, b.params.FreeSize, b.params.MinFee, b.params.FeePerByte)
	if pl.fee < required {
		return errors.Wrapf(walleterr.ErrInvalidParameters, "fee %d below required %d for %d bytes", pl.fee, required, size)
	}
	return nil
}

// buildExtra appends the payment id and messages of p to its raw extra.
func buildExtra(p *Parameters) ([]byte, error) {
	extra := append([]byte(nil), p.Extra...)
	if p.HasPaymentID {
		extra = tx.AppendPaymentID(extra, p.PaymentID)
	}
	for _, m := range p.Messages {
		extra = tx.AppendMessage(extra, m)
	}
	if len(extra) > tx.MaxExtraSize {
		return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "extra is %d bytes, max %d", len(extra), tx.MaxExtraSize)
	}
	return extra, nil
}

// record signs pl, inserts its CREATED record and reserves its inputs.
// Everything that can fail happens before the first mutation.
func (b *Builder) record(st *state.Tx, pl *plan) (ledger.TransactionID, []byte, error) {
	if len(pl.inputs) == 0 {
		return ledger.NoTransaction, nil, errors.Wrap(walleterr.ErrInvalidParameters, "no inputs")
	}
	txKey, err := crypto.DeriveTransactionKey(st.Keys.ViewSecret(), pl.inputs[0].ref)
	if err != nil {
		return ledger.NoTransaction, nil, errors.Wrap(err, "derive transaction key")
	}

	tb := tx.NewBuilder().
		SetUnlockTime(pl.unlockTime).
		SetExtra(pl.extra).
		SetTxPubKey(txKey.PublicKey())
	signers := make(map[types.Address]crypto.Signer)
	refAddr := make(map[types.OutputRef]types.Address, len(pl.inputs))
	var plainIn uint64
	for _, in := range pl.inputs {
		tb.AddInput(in.ref, in.amount, in.mixin)
		refAddr[in.ref] = in.address
		if !in.deposit {
			plainIn += in.amount
		}
		if _, ok := signers[in.address]; ok {
			continue
		}
		key, err := st.Keys.SpendSecret(in.address)
		if err != nil {
			return ledger.NoTransaction, nil, err
		}
		defer key.Zero()
		signers[in.address] = key
	}
	var plainOut uint64
	for _, out := range pl.outputs {
		if out.Term > 0 {
			tb.AddDepositOutput(out.Address, out.Amount, out.Term)
			continue
		}
		tb.AddOutput(out.Address, out.Amount)
		if st.Keys.Has(out.Address) {
			plainOut += out.Amount
		}
	}
	if err := tb.SignMulti(signers, refAddr); err != nil {
		return ledger.NoTransaction, nil, errors.Wrap(err, "sign transaction")
	}
	built := tb.Build()
	if err := built.Validate(); err != nil {
		return ledger.NoTransaction, nil, errors.Mark(errors.Wrap(err, "validate transaction"), walleterr.ErrInvalidParameters)
	}
	blob, err := built.Encode()
	if err != nil {
		return ledger.NoTransaction, nil, errors.Wrap(err, "encode transaction")
	}

	refs := make([]types.OutputRef, len(pl.inputs))
	for i, in := range pl.inputs {
		refs[i] = in.ref
		if o, ok := st.Outputs.Get(in.ref); !ok || o.State != outputs.Free {
			return ledger.NoTransaction, nil, errors.Wrapf(walleterr.ErrInvalidParameters, "input %s not free", in.ref)
		}
	}

	secret := txKey.Serialize()
	id := st.Ledger.AddTransaction(ledger.Transaction{
		State:        ledger.Created,
		Hash:         built.Hash(),
		BlockHeight:  ledger.UnconfirmedHeight,
		CreationTime: b.clock.Now().Unix(),
		UnlockTime:   pl.unlockTime,
		TotalAmount:  int64(plainOut) - int64(plainIn),
		Fee:          pl.fee,
		Extra:        pl.extra,
		Messages:     pl.messages,
		SecretKey:    secret,
		FirstInput:   &refs[0],
		Transfers:    pl.transfers,
	})
	// Inputs were checked free under the same lock.
	_ = st.Outputs.Reserve(uint64(id), refs)
	st.Outputs.AddProvisional(uint64(id), pl.provisional)
	h, _ := st.Ledger.Handle(id)
	ttl := pl.ttl
	if ttl == 0 {
		ttl = b.params.PendingTxTimeout
	}
	_ = st.Ledger.SetOutgoing(id, ledger.Outgoing{Handle: h, Blob: blob, Inputs: refs, TTL: ttl})
	st.Notify(events.Notification{Kind: events.KindTransactionCreated, TransactionID: id})

	log.Builder.Info().
		Uint64("tx", uint64(id)).
		Str("hash", built.Hash().String()).
		Int("inputs", len(refs)).
		Uint64("fee", pl.fee).
		Msg("Transaction created")
	return id, secret, nil
}

// Commit broadcasts a built transaction. On success its inputs are marked
// sent and it stays CREATED until the tracker sees it confirmed; one the
// tracker confirmed during the broadcast is already done. A broadcast
// failure leaves the transaction as it was.
func (b *Builder) Commit(ctx context.Context, id ledger.TransactionID) error {
	if err := b.claim(id); err != nil {
		return err
	}
	defer b.unclaim(id)

	var out ledger.Outgoing
	err := b.st.View(func(c *state.Components) error {
		var err error
		out, err = pending(c.Ledger, id)
		return err
	})
	if err != nil {
		return err
	}

	if b.sink == nil {
		return errors.Wrap(walleterr.ErrBroadcast, "no broadcaster configured")
	}
	if err := b.sink.Broadcast(ctx, out.Blob); err != nil {
		bErr := errors.Mark(errors.Wrapf(err, "broadcast transaction %d", id), walleterr.ErrBroadcast)
		log.Builder.Warn().Err(err).Uint64("tx", uint64(id)).Msg("Broadcast failed")
		_ = b.st.Update(func(st *state.Tx) error {
			st.Notify(events.Notification{Kind: events.KindSendTransactionCompleted, TransactionID: id, Err: bErr})
			return nil
		})
		return bErr
	}

	return b.st.Update(func(st *state.Tx) error {
		// The block carrying the transaction may have been applied while
		// it was being broadcast.
		if rec, err := st.Ledger.Transaction(id); err == nil && rec.State == ledger.Succeeded {
			st.Notify(events.Notification{Kind: events.KindSendTransactionCompleted, TransactionID: id})
			log.Builder.Info().Uint64("tx", uint64(id)).Uint32("height", rec.BlockHeight).Msg("Transaction confirmed during broadcast")
			return nil
		}
		cur, err := pending(st.Ledger, id)
		if err != nil {
			return err
		}
		if _, err := st.Ledger.Resolve(cur.Handle); err != nil {
			return errors.Mark(err, walleterr.ErrInvalidTransactionState)
		}
		height := st.Outputs.Height()
		cur.Committed = true
		cur.CommittedAt = height
		if cur.TTL > 0 {
			cur.Deadline = height + cur.TTL
		}
		st.Outputs.MarkSent(uint64(id))
		_ = st.Ledger.SetOutgoing(id, cur)
		st.Notify(events.Notification{Kind: events.KindSendTransactionCompleted, TransactionID: id})
		log.Builder.Info().Uint64("tx", uint64(id)).Uint32("deadline", cur.Deadline).Msg("Transaction committed")
		return nil
	})
}

// Rollback cancels a built, uncommitted transaction and releases its inputs.
func (b *Builder) Rollback(id ledger.TransactionID) error {
	if err := b.claim(id); err != nil {
		return err
	}
	defer b.unclaim(id)

	return b.st.Update(func(st *state.Tx) error {
		if _, err := pending(st.Ledger, id); err != nil {
			return err
		}
		if err := st.Abandon(id, ledger.Cancelled); err != nil {
			return errors.Mark(err, walleterr.ErrInvalidTransactionState)
		}
		log.Builder.Info().Uint64("tx", uint64(id)).Msg("Transaction rolled back")
		return nil
	})
}

// pending returns the outgoing entry of a CREATED, uncommitted transaction.
func pending(l *ledger.Ledger, id ledger.TransactionID) (ledger.Outgoing, error) {
	rec, err := l.Transaction(id)
	if err != nil {
		return ledger.Outgoing{}, errors.Mark(err, walleterr.ErrInvalidTransactionState)
	}
	out, ok := l.Outgoing(id)
	if !ok || rec.State != ledger.Created || out.Committed {
		return ledger.Outgoing{}, errors.Wrapf(walleterr.ErrInvalidTransactionState,
			"transaction %d is %s and cannot be committed or rolled back", id, rec.State)
	}
	return out, nil
}

func (b *Builder) claim(id ledger.TransactionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[id] {
		return errors.Wrapf(walleterr.ErrInvalidTransactionState, "transaction %d is being committed", id)
	}
	b.inflight[id] = true
	return nil
}

func (b *Builder) unclaim(id ledger.TransactionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, id)
}

// Transfer builds and commits a transaction. It returns the record id and
// the transaction secret key. When the broadcast fails the transaction is
// rolled back.
func (b *Builder) Transfer(ctx context.Context, p Parameters) (ledger.TransactionID, []byte, error) {
	id, secret, err := b.make(p)
	if err != nil {
		return ledger.NoTransaction, nil, err
	}
	if err := b.Commit(ctx, id); err != nil {
		b.rollbackUnsent(id, err)
		return ledger.NoTransaction, nil, err
	}
	return id, secret, nil
}

// rollbackUnsent cancels id after commitErr when the transaction never
// reached the network. Any other commit failure leaves the record to the
// tracker.
func (b *Builder) rollbackUnsent(id ledger.TransactionID, commitErr error) {
	if !errors.Is(commitErr, walleterr.ErrBroadcast) {
		return
	}
	if err := b.Rollback(id); err != nil {
		log.Builder.Error().Err(err).Uint64("tx", uint64(id)).Msg("Rollback after failed broadcast")
	}
}

// commitHash commits id and returns its transaction hash.
func (b *Builder) commitHash(ctx context.Context, id ledger.TransactionID) (types.Hash, error) {
	if err := b.Commit(ctx, id); err != nil {
		b.rollbackUnsent(id, err)
		return types.Hash{}, err
	}
	var hash types.Hash
	err := b.st.View(func(c *state.Components) error {
		rec, err := c.Ledger.Transaction(id)
		hash = rec.Hash
		return err
	})
	return hash, err
}
