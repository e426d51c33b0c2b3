package builder

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/balance"
	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/keys"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

var external = types.Address{0xee}

type recorder struct {
	mu    sync.Mutex
	notes []events.Notification
}

func (r *recorder) Publish(ns ...events.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, ns...)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	ks := make([]events.Kind, len(r.notes))
	for i, n := range r.notes {
		ks[i] = n.Kind
	}
	return ks
}

func (r *recorder) last(k events.Kind) (events.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Kind == k {
			return r.notes[i], true
		}
	}
	return events.Notification{}, false
}

type fakeSink struct {
	mu    sync.Mutex
	blobs [][]byte
	err   error
	// relayed runs after a successful broadcast, like a node mining the
	// transaction before the call returns.
	relayed func()
}

func (s *fakeSink) Broadcast(_ context.Context, blob []byte) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.blobs = append(s.blobs, blob)
	relayed := s.relayed
	s.mu.Unlock()

	if relayed != nil {
		relayed()
	}
	return nil
}

func (s *fakeSink) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.blobs...)
}

type fixture struct {
	st    *state.State
	b     *Builder
	sink  *fakeSink
	rec   *recorder
	addr1 types.Address
	addr2 types.Address
	next  byte
}

func testParams() Params {
	return Params{
		MinFee:           10,
		MinMixin:         2,
		DustThreshold:    10,
		PendingTxTimeout: 20,
		MinDepositTerm:   5,
		MaxDepositTerm:   1000,
		MinDepositAmount: 100,
		Schedule:         ledger.Schedule{BlocksPerYear: 100, Tiers: []ledger.Tier{{MinTerm: 1, RateBP: 1000}}},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ks, err := keys.NewFromSeed(bytes.Repeat([]byte{7}, keys.SeedSize))
	require.NoError(t, err)
	r1, err := ks.Create(0)
	require.NoError(t, err)
	r2, err := ks.Create(0)
	require.NoError(t, err)

	idx := outputs.New(outputs.Params{DustThreshold: 10})
	idx.Track(r1.Address)
	idx.Track(r2.Address)

	rec := &recorder{}
	st := state.New(state.Components{Keys: ks, Outputs: idx, Ledger: ledger.New()}, rec)
	sink := &fakeSink{}
	clk := clock.NewTestClock(time.Unix(1700000000, 0))
	return &fixture{
		st:    st,
		b:     New(st, testParams(), clk, sink),
		sink:  sink,
		rec:   rec,
		addr1: r1.Address,
		addr2: r2.Address,
	}
}

// fund adds one confirmed output per amount to addr at height 1.
func (f *fixture) fund(t *testing.T, addr types.Address, amounts ...uint64) {
	t.Helper()
	var recv []outputs.Received
	for _, a := range amounts {
		f.next++
		recv = append(recv, outputs.Received{
			Ref:     types.OutputRef{TxHash: types.Hash{0xf0, f.next}},
			Address: addr,
			Amount:  a,
		})
	}
	require.NoError(t, f.st.Update(func(st *state.Tx) error {
		st.Outputs.Apply(1, recv, nil)
		return nil
	}))
}

func (f *fixture) balance(t *testing.T, addr types.Address) balance.Balance {
	t.Helper()
	var b balance.Balance
	require.NoError(t, f.st.View(func(c *state.Components) error {
		var err error
		b, err = balance.Address(c.Outputs, c.Ledger, addr)
		return err
	}))
	return b
}

func (f *fixture) tx(t *testing.T, id ledger.TransactionID) ledger.Transaction {
	t.Helper()
	var rec ledger.Transaction
	require.NoError(t, f.st.View(func(c *state.Components) error {
		var err error
		rec, err = c.Ledger.Transaction(id)
		return err
	}))
	return rec
}

func (f *fixture) outgoing(t *testing.T, id ledger.TransactionID) (ledger.Outgoing, bool) {
	t.Helper()
	var out ledger.Outgoing
	var ok bool
	_ = f.st.View(func(c *state.Components) error {
		out, ok = c.Ledger.Outgoing(id)
		return nil
	})
	return out, ok
}

func pay(to types.Address, amount uint64) Parameters {
	return Parameters{
		Destinations: []Destination{{Address: to, Amount: amount}},
		Fee:          10,
		Mixin:        2,
	}
}

func TestMakeTransaction_ChangeAndPending(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)

	p := pay(f.addr2, 400)
	p.SourceAddresses = []types.Address{f.addr1}
	id, err := f.b.MakeTransaction(p)
	require.NoError(t, err)

	rec := f.tx(t, id)
	require.Equal(t, ledger.Created, rec.State)
	require.Equal(t, ledger.UnconfirmedHeight, rec.BlockHeight)
	require.Equal(t, int64(1700000000), rec.CreationTime)
	require.Equal(t, uint64(10), rec.Fee)
	require.NotEmpty(t, rec.SecretKey)
	require.Equal(t, []ledger.Transfer{
		{Type: ledger.Usual, Address: f.addr2, Amount: 400},
		{Type: ledger.Change, Address: f.addr1, Amount: 590},
	}, rec.Transfers)
	// 400 to addr2 and 590 back to addr1 against 1000 spent.
	require.Equal(t, int64(-10), rec.TotalAmount)

	b1 := f.balance(t, f.addr1)
	require.Equal(t, uint64(1000), b1.Actual)
	require.Equal(t, uint64(590), b1.Pending)
	require.Equal(t, uint64(400), f.balance(t, f.addr2).Pending)

	out, ok := f.outgoing(t, id)
	require.True(t, ok)
	require.False(t, out.Committed)
	require.Equal(t, uint32(20), out.TTL)

	decoded, err := tx.Decode(out.Blob)
	require.NoError(t, err)
	require.Equal(t, rec.Hash, decoded.Hash())
	require.NoError(t, decoded.VerifySignatures())
	require.Len(t, decoded.Inputs, 1)
	require.Equal(t, uint32(2), decoded.Inputs[0].Mixin)

	require.Contains(t, f.rec.kinds(), events.KindTransactionCreated)
	require.Contains(t, f.rec.kinds(), events.KindPendingBalanceUpdated)
	require.Empty(t, f.sink.sent())
}

func TestMakeTransaction_Validation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)

	tests := []struct {
		name string
		p    Parameters
		want error
	}{
		{"no destinations", Parameters{Fee: 10, Mixin: 2}, walleterr.ErrInvalidParameters},
		{"zero amount", pay(external, 0), walleterr.ErrInvalidParameters},
		{"empty address", pay(types.Address{}, 10), walleterr.ErrInvalidParameters},
		{"fee below minimum", func() Parameters { p := pay(external, 10); p.Fee = 9; return p }(), walleterr.ErrInvalidParameters},
		{"mixin below minimum", func() Parameters { p := pay(external, 10); p.Mixin = 1; return p }(), walleterr.ErrInvalidParameters},
		{"too much", pay(external, 991), walleterr.ErrInsufficientFunds},
		{"unknown source", func() Parameters {
			p := pay(external, 10)
			p.SourceAddresses = []types.Address{external}
			return p
		}(), walleterr.ErrUnknownAddress},
		{"unknown change", func() Parameters { p := pay(external, 10); p.ChangeDestination = external; return p }(), walleterr.ErrUnknownAddress},
		{"extra too large", func() Parameters { p := pay(external, 10); p.Extra = make([]byte, tx.MaxExtraSize+1); return p }(), walleterr.ErrInvalidParameters},
		{"deposit term too short", func() Parameters { p := pay(external, 100); p.DepositTerm = 4; return p }(), walleterr.ErrInvalidParameters},
		{"deposit too small", func() Parameters { p := pay(external, 99); p.DepositTerm = 5; return p }(), walleterr.ErrInvalidParameters},
		{"donation without address", func() Parameters { p := pay(external, 10); p.Donation.Threshold = 5; return p }(), walleterr.ErrInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.b.MakeTransaction(tt.p)
			require.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	// Nothing was recorded or reserved.
	require.NoError(t, f.st.View(func(c *state.Components) error {
		require.Zero(t, c.Ledger.TransactionCount())
		require.Len(t, c.Outputs.Spendable(nil, true), 1)
		return nil
	}))
	require.Equal(t, uint64(0), f.balance(t, f.addr1).Pending)
}

func TestMakeTransaction_ViewOnlySource(t *testing.T) {
	f := newFixture(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var viewOnly types.Address
	require.NoError(t, f.st.Update(func(st *state.Tx) error {
		rec, err := st.Keys.ImportPublic(key.PublicKey(), 0)
		if err != nil {
			return err
		}
		viewOnly = rec.Address
		st.Outputs.Track(viewOnly)
		return nil
	}))
	f.fund(t, viewOnly, 1000)

	p := pay(external, 100)
	p.SourceAddresses = []types.Address{viewOnly}
	_, err = f.b.MakeTransaction(p)
	require.True(t, errors.Is(err, walleterr.ErrUnknownAddress), "got %v", err)

	// View-only funds are not picked by default either.
	_, err = f.b.MakeTransaction(pay(external, 100))
	require.True(t, errors.Is(err, walleterr.ErrInsufficientFunds), "got %v", err)
}

func TestMakeTransaction_ReservationIsExclusive(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 600, 400)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.b.MakeTransaction(pay(external, 700))
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, walleterr.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, workers-1, insufficient)
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)
	before := f.balance(t, f.addr1)

	id, err := f.b.MakeTransaction(pay(f.addr2, 400))
	require.NoError(t, err)
	require.NoError(t, f.b.Rollback(id))

	require.Equal(t, ledger.Cancelled, f.tx(t, id).State)
	require.Equal(t, before, f.balance(t, f.addr1))
	require.Equal(t, balance.Balance{}, f.balance(t, f.addr2))
	_, ok := f.outgoing(t, id)
	require.False(t, ok)

	err = f.b.Rollback(id)
	require.True(t, errors.Is(err, walleterr.ErrInvalidTransactionState), "got %v", err)
	err = f.b.Rollback(ledger.TransactionID(99))
	require.True(t, errors.Is(err, walleterr.ErrInvalidTransactionState), "got %v", err)
	err = f.b.Commit(context.Background(), id)
	require.True(t, errors.Is(err, walleterr.ErrInvalidTransactionState), "got %v", err)

	// The released output is spendable again.
	_, err = f.b.MakeTransaction(pay(external, 990))
	require.NoError(t, err)
}

func TestCommit(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)
	require.NoError(t, f.st.Update(func(st *state.Tx) error {
		st.Outputs.SetHeight(7)
		return nil
	}))

	id, err := f.b.MakeTransaction(pay(external, 400))
	require.NoError(t, err)
	require.NoError(t, f.b.Commit(context.Background(), id))

	blobs := f.sink.sent()
	require.Len(t, blobs, 1)
	decoded, err := tx.Decode(blobs[0])
	require.NoError(t, err)
	rec := f.tx(t, id)
	require.Equal(t, rec.Hash, decoded.Hash())
	require.Equal(t, ledger.Created, rec.State)

	out, ok := f.outgoing(t, id)
	require.True(t, ok)
	require.True(t, out.Committed)
	require.Equal(t, uint32(7), out.CommittedAt)
	require.Equal(t, uint32(27), out.Deadline)

	b1 := f.balance(t, f.addr1)
	require.Equal(t, uint64(0), b1.Actual)
	require.Equal(t, uint64(590), b1.Pending)

	n, ok := f.rec.last(events.KindSendTransactionCompleted)
	require.True(t, ok)
	require.Equal(t, id, n.TransactionID)
	require.NoError(t, n.Err)

	err = f.b.Commit(context.Background(), id)
	require.True(t, errors.Is(err, walleterr.ErrInvalidTransactionState), "got %v", err)
	err = f.b.Rollback(id)
	require.True(t, errors.Is(err, walleterr.ErrInvalidTransactionState), "got %v", err)
}

func TestCommit_BroadcastFailure(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)
	f.sink.err = errors.New("connection refused")

	id, err := f.b.MakeTransaction(pay(external, 400))
	require.NoError(t, err)
	err = f.b.Commit(context.Background(), id)
	require.True(t, errors.Is(err, walleterr.ErrBroadcast), "got %v", err)

	n, ok := f.rec.last(events.KindSendTransactionCompleted)
	require.True(t, ok)
	require.Error(t, n.Err)

	out, ok := f.outgoing(t, id)
	require.True(t, ok)
	require.False(t, out.Committed)
	require.Equal(t, uint64(1000), f.balance(t, f.addr1).Actual)

	require.NoError(t, f.b.Rollback(id))
}

func TestTransfer_RollsBackOnBroadcastFailure(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)
	f.sink.err = errors.New("node down")

	_, _, err := f.b.Transfer(context.Background(), pay(external, 400))
	require.True(t, errors.Is(err, walleterr.ErrBroadcast), "got %v", err)
	require.Equal(t, ledger.Cancelled, f.tx(t, 0).State)
	require.Equal(t, uint64(0), f.balance(t, f.addr1).Pending)

	f.sink.err = nil
	id, secret, err := f.b.Transfer(context.Background(), pay(external, 400))
	require.NoError(t, err)
	require.Equal(t, f.tx(t, id).SecretKey, secret)
}

// confirmOnRelay makes the sink confirm every unconfirmed local transaction
// at height 2 as soon as it is broadcast.
func (f *fixture) confirmOnRelay(t *testing.T, inputs ...types.OutputRef) {
	f.sink.relayed = func() {
		require.NoError(t, f.st.Update(func(st *state.Tx) error {
			for _, id := range st.Ledger.OutgoingIDs() {
				rec, err := st.Ledger.Transaction(id)
				if err != nil {
					return err
				}
				var spends []outputs.Spend
				for _, ref := range inputs {
					spends = append(spends, outputs.Spend{Ref: ref, TxHash: rec.Hash})
				}
				st.Outputs.Apply(2, nil, spends)
				if err := st.Ledger.ConfirmTransaction(id, 2, 1700000000); err != nil {
					return err
				}
				st.Forget(id)
			}
			return nil
		}))
	}
}

func TestCommit_ConfirmedDuringBroadcast(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)
	f.confirmOnRelay(t, types.OutputRef{TxHash: types.Hash{0xf0, 1}})

	id, err := f.b.MakeTransaction(pay(external, 400))
	require.NoError(t, err)
	require.NoError(t, f.b.Commit(context.Background(), id))

	require.Equal(t, ledger.Succeeded, f.tx(t, id).State)
	n, ok := f.rec.last(events.KindSendTransactionCompleted)
	require.True(t, ok)
	require.NoError(t, n.Err)
	_, ok = f.outgoing(t, id)
	require.False(t, ok)
	require.Equal(t, uint64(0), f.balance(t, f.addr1).Actual)
}

func TestTransfer_ConfirmedDuringBroadcast(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)
	f.confirmOnRelay(t, types.OutputRef{TxHash: types.Hash{0xf0, 1}})

	id, secret, err := f.b.Transfer(context.Background(), pay(external, 400))
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.Equal(t, ledger.Succeeded, f.tx(t, id).State, "not rolled back")
}

func TestMakeTransaction_Donation(t *testing.T) {
	tests := []struct {
		threshold uint64
		donated   uint64
		change    uint64
	}{
		{100, 100, 490},
		{95, 90, 500},
		{5000, 590, 0},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.fund(t, f.addr1, 1000)

		p := pay(external, 400)
		p.Donation = Donation{Address: f.addr2, Threshold: tt.threshold}
		id, err := f.b.MakeTransaction(p)
		require.NoError(t, err)

		want := []ledger.Transfer{
			{Type: ledger.Usual, Address: external, Amount: 400},
			{Type: ledger.Donation, Address: f.addr2, Amount: int64(tt.donated)},
		}
		if tt.change > 0 {
			want = append(want, ledger.Transfer{Type: ledger.Change, Address: f.addr1, Amount: int64(tt.change)})
		}
		require.Equal(t, want, f.tx(t, id).Transfers, "threshold %d", tt.threshold)
		require.Equal(t, tt.donated, f.balance(t, f.addr2).Pending)
	}
}

func TestMakeTransaction_RelaxMixin(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 8, 8, 8)

	_, err := f.b.MakeTransaction(pay(external, 5))
	require.True(t, errors.Is(err, walleterr.ErrInsufficientFunds), "got %v", err)

	p := pay(external, 5)
	p.RelaxMixin = true
	id, err := f.b.MakeTransaction(p)
	require.NoError(t, err)

	out, _ := f.outgoing(t, id)
	decoded, err := tx.Decode(out.Blob)
	require.NoError(t, err)
	require.Len(t, decoded.Inputs, 2)
	for _, in := range decoded.Inputs {
		require.Equal(t, uint32(0), in.Mixin)
	}
}

func TestMakeTransaction_PaymentIDAndMessages(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)

	p := pay(external, 100)
	p.PaymentID = types.Hash{0x42}
	p.HasPaymentID = true
	p.Messages = []string{"invoice 17"}
	p.UnlockTimestamp = 55
	id, err := f.b.MakeTransaction(p)
	require.NoError(t, err)

	rec := f.tx(t, id)
	require.Equal(t, []string{"invoice 17"}, rec.Messages)
	require.Equal(t, uint64(55), rec.UnlockTime)
	pid, ok := tx.PaymentIDFromExtra(rec.Extra)
	require.True(t, ok)
	require.Equal(t, p.PaymentID, pid)

	fields, err := tx.ParseExtra(rec.Extra)
	require.NoError(t, err)
	require.Equal(t, []string{"invoice 17"}, fields.Messages)
}

func TestCreateDeposit(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 1000)

	hash, err := f.b.CreateDeposit(context.Background(), 500, 10, f.addr1, types.Address{})
	require.NoError(t, err)

	blobs := f.sink.sent()
	require.Len(t, blobs, 1)
	decoded, err := tx.Decode(blobs[0])
	require.NoError(t, err)
	require.Equal(t, hash, decoded.Hash())
	require.Equal(t, tx.Output{Amount: 500, Address: f.addr1, Term: 10}, decoded.Outputs[0])

	var rec ledger.Transaction
	require.NoError(t, f.st.View(func(c *state.Components) error {
		var err error
		rec, err = c.Ledger.TransactionByHash(hash)
		return err
	}))
	// 1000 in, 490 change back.
	require.Equal(t, int64(-510), rec.TotalAmount)
	require.Equal(t, uint64(490), f.balance(t, f.addr1).Pending)

	_, err = f.b.CreateDeposit(context.Background(), 100, 1001, f.addr1, types.Address{})
	require.True(t, errors.Is(err, walleterr.ErrInvalidParameters), "got %v", err)
	require.Equal(t, uint64(10), f.b.Interest(1000, 10))
}

func TestWithdrawDeposits(t *testing.T) {
	f := newFixture(t)
	ref := types.OutputRef{TxHash: types.Hash{0xd0}}

	var depID ledger.DepositID
	require.NoError(t, f.st.Update(func(st *state.Tx) error {
		st.Outputs.Apply(1, []outputs.Received{{Ref: ref, Address: f.addr1, Amount: 500, DepositTerm: 5}}, nil)
		creator := st.Ledger.AddTransaction(ledger.Transaction{State: ledger.Succeeded, BlockHeight: 1})
		var err error
		depID, err = st.Ledger.AddDeposit(ledger.Deposit{
			CreatingTransactionID: creator,
			Term:                  5,
			Amount:                500,
			Interest:              25,
			Height:                1,
			Output:                ref,
			Address:               f.addr1,
		})
		return err
	}))

	_, err := f.b.WithdrawDeposits(context.Background(), []ledger.DepositID{depID}, types.Address{})
	require.True(t, errors.Is(err, walleterr.ErrInvalidParameters), "locked deposit: got %v", err)
	_, err = f.b.WithdrawDeposits(context.Background(), nil, types.Address{})
	require.True(t, errors.Is(err, walleterr.ErrInvalidParameters), "no deposits: got %v", err)
	_, err = f.b.WithdrawDeposits(context.Background(), []ledger.DepositID{depID + 1}, types.Address{})
	require.True(t, errors.Is(err, walleterr.ErrUnknownIdentifier), "unknown deposit: got %v", err)

	require.NoError(t, f.st.Update(func(st *state.Tx) error {
		st.Outputs.SetHeight(6)
		st.Ledger.UnlockDeposits(6)
		return nil
	}))
	_, err = f.b.WithdrawDeposits(context.Background(), []ledger.DepositID{depID, depID}, types.Address{})
	require.True(t, errors.Is(err, walleterr.ErrInvalidParameters), "duplicate: got %v", err)

	hash, err := f.b.WithdrawDeposits(context.Background(), []ledger.DepositID{depID}, types.Address{})
	require.NoError(t, err)

	blobs := f.sink.sent()
	require.Len(t, blobs, 1)
	decoded, err := tx.Decode(blobs[0])
	require.NoError(t, err)
	require.Equal(t, hash, decoded.Hash())
	require.Equal(t, uint64(525), decoded.Inputs[0].Amount)
	require.Equal(t, []tx.Output{{Amount: 515, Address: f.addr1}}, decoded.Outputs)
	require.Equal(t, uint64(515), f.balance(t, f.addr1).Pending)

	// The deposit output is held by the withdrawal until it confirms.
	_, err = f.b.WithdrawDeposits(context.Background(), []ledger.DepositID{depID}, types.Address{})
	require.True(t, errors.Is(err, walleterr.ErrInvalidParameters), "in flight: got %v", err)
}

func TestCreateOptimizationTransaction(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.addr1, 20, 20, 20, 20, 5)

	hash, err := f.b.CreateOptimizationTransaction(context.Background(), f.addr1)
	require.NoError(t, err)

	decoded, err := tx.Decode(f.sink.sent()[0])
	require.NoError(t, err)
	require.Equal(t, hash, decoded.Hash())
	require.Len(t, decoded.Inputs, 5)
	require.Equal(t, []tx.Output{{Amount: 75, Address: f.addr1}}, decoded.Outputs)

	b1 := f.balance(t, f.addr1)
	require.Equal(t, uint64(0), b1.Actual)
	require.Equal(t, uint64(0), b1.Dust)
	require.Equal(t, uint64(75), b1.Pending)

	// Nothing left to consolidate.
	_, err = f.b.CreateOptimizationTransaction(context.Background(), f.addr1)
	require.True(t, errors.Is(err, walleterr.ErrInvalidParameters), "got %v", err)
	_, err = f.b.CreateOptimizationTransaction(context.Background(), external)
	require.True(t, errors.Is(err, walleterr.ErrUnknownAddress), "got %v", err)
}
