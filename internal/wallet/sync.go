package wallet

import (
	"context"

	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/tracker"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Synchronize applies items from feed until it closes, ctx is done or the
// wallet stops. A divergence the tracker cannot roll back ends the run with
// ErrSynchronizationDivergence; Reset before synchronizing again.
func (w *Wallet) Synchronize(ctx context.Context, feed <-chan tracker.Item) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	return stoppedErr(ctx, s.tracker.Run(gctx, feed))
}

// ProcessItem applies a single feed item.
func (w *Wallet) ProcessItem(it tracker.Item) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	return s.tracker.Handle(it)
}

// Reset discards synchronized state above scanHeight and cancels every
// outstanding local transaction. Synchronization resumes from scanHeight.
func (w *Wallet) Reset(scanHeight uint32) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	return s.tracker.Reset(scanHeight)
}

// SyncStatus returns the tracker state and the best height the feed
// reported.
func (w *Wallet) SyncStatus() (tracker.Status, uint32, error) {
	s, err := w.session()
	if err != nil {
		return tracker.Idle, 0, err
	}
	return s.tracker.Status(), s.tracker.Tip(), nil
}

// Chain returns the wallet's applied chain for a block feed. An
// uninitialized wallet reports no blocks.
func (w *Wallet) Chain() LocalChain {
	return LocalChain{w: w}
}

// LocalChain exposes the applied block hashes.
type LocalChain struct {
	w *Wallet
}

// BlockCount returns the number of applied blocks.
func (c LocalChain) BlockCount() uint32 {
	n, _ := c.w.GetBlockCount()
	return n
}

// BlockHash returns the hash applied at height.
func (c LocalChain) BlockHash(height uint32) (types.Hash, bool) {
	var (
		hash types.Hash
		ok   bool
	)
	_ = c.w.view(func(cs *state.Components) error {
		hash, ok = cs.Ledger.BlockHash(height)
		return nil
	})
	return hash, ok
}

// GetEvent blocks until the next event, ctx is done or the wallet stops.
// Stop and Shutdown wake it with ErrStopped.
func (w *Wallet) GetEvent(ctx context.Context) (events.Event, error) {
	s, err := w.session()
	if err != nil {
		return nil, err
	}
	gctx, cancel := w.guard(ctx, s)
	defer cancel()
	e, err := s.hub.Queue().Get(gctx)
	return e, stoppedErr(ctx, err)
}

// AddObserver registers o for every observer callback. Observers outlive
// Shutdown and see InitCompleted of later sessions.
func (w *Wallet) AddObserver(o events.Observer) events.ListenerID {
	return w.dispatcher.AttachObserver(o)
}

// RemoveObserver unregisters an observer. It reports whether id was
// registered.
func (w *Wallet) RemoveObserver(id events.ListenerID) bool {
	return w.dispatcher.Detach(id)
}
