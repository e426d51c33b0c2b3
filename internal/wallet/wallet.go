// Package wallet is the public face of the wallet engine. It owns the
// lifecycle of one wallet container and routes every operation to the key
// store, output index, ledger, synchronization tracker and transaction
// builder behind a single state lock.
package wallet

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/builder"
	"github.com/Klingon-tech/klingnet-wallet/internal/container"
	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/keys"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/snapshot"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/tracker"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/cockroachdb/errors"
	"github.com/lightningnetwork/lnd/clock"
)

// Params are the network rules a wallet runs with.
type Params struct {
	Outputs outputs.Params
	Tracker tracker.Params
	Builder builder.Params
}

// KeyPair is a public key with its secret. Secret is nil when the wallet
// only holds the public half.
type KeyPair struct {
	Public []byte
	Secret []byte
}

// session is one initialized or loaded container.
type session struct {
	name     string
	password []byte

	hub     *events.Hub
	st      *state.State
	tracker *tracker.Tracker
	builder *builder.Builder
	// done is closed by Shutdown.
	done chan struct{}
}

// Wallet is safe for concurrent use.
type Wallet struct {
	store  *container.Store
	params Params
	clock  clock.Clock
	sink   builder.Broadcaster

	// dispatcher outlives sessions so observers survive Shutdown.
	dispatcher *events.Dispatcher

	mu      sync.RWMutex
	s       *session
	stopped bool
	stop    chan struct{}

	// saveMu orders container writes against password changes.
	saveMu sync.Mutex
}

// New creates an uninitialized wallet persisting to store and broadcasting
// through sink.
func New(store *container.Store, params Params, clk clock.Clock, sink builder.Broadcaster) *Wallet {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Wallet{
		store:      store,
		params:     params,
		clock:      clk,
		sink:       sink,
		dispatcher: events.NewDispatcher(),
		stop:       make(chan struct{}),
	}
}

// session returns the active session. It fails when the wallet is not
// initialized or stopped.
func (w *Wallet) session() (*session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.s == nil {
		return nil, walleterr.ErrNotInitialized
	}
	if w.stopped {
		return nil, walleterr.ErrStopped
	}
	return w.s, nil
}

func (w *Wallet) credentials() (string, []byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.s.name, append([]byte(nil), w.s.password...)
}

// open installs a session over c. Callers hold w.mu.
func (w *Wallet) open(name string, password []byte, c state.Components) {
	hub := events.NewSharedHub(w.dispatcher)
	st := state.New(c, hub)
	w.s = &session{
		name:     name,
		password: append([]byte(nil), password...),
		hub:      hub,
		st:       st,
		tracker:  tracker.New(st, w.params.Tracker),
		builder:  builder.New(st, w.params.Builder, w.clock, w.sink),
		done:     make(chan struct{}),
	}
}

func (w *Wallet) initCompleted(err error) {
	w.dispatcher.Dispatch(events.Notification{Kind: events.KindInitCompleted, Err: err})
}

// Initialize creates container name holding a new seeded wallet without
// addresses.
func (w *Wallet) Initialize(name string, password []byte) error {
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		return err
	}
	return w.initializeFromMnemonic(name, password, mnemonic, 0)
}

// GenerateNewWallet creates container name holding a new seeded wallet with
// one address and returns the mnemonic that restores it.
func (w *Wallet) GenerateNewWallet(name string, password []byte) (string, error) {
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		return "", err
	}
	if err := w.initializeFromMnemonic(name, password, mnemonic, 1); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// InitializeFromMnemonic restores a seeded wallet into container name. The
// first address is derived so a rescan finds its history.
func (w *Wallet) InitializeFromMnemonic(name string, password []byte, mnemonic string) error {
	return w.initializeFromMnemonic(name, password, mnemonic, 1)
}

func (w *Wallet) initializeFromMnemonic(name string, password []byte, mnemonic string, addresses int) error {
	seed, err := keys.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return errors.Mark(err, walleterr.ErrInvalidParameters)
	}
	ks, err := keys.NewFromSeed(seed)
	if err != nil {
		return err
	}
	return w.initialize(name, password, ks, addresses)
}

// InitializeWithViewKey creates container name around an existing view
// secret. Addresses are added afterwards.
func (w *Wallet) InitializeWithViewKey(name string, password, viewSecret []byte) error {
	ks, err := keys.NewFromViewSecret(viewSecret)
	if err != nil {
		return err
	}
	return w.initialize(name, password, ks, 0)
}

func (w *Wallet) initialize(name string, password []byte, ks *keys.Store, addresses int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s != nil {
		return walleterr.ErrAlreadyInitialized
	}

	ix := outputs.New(w.params.Outputs)
	now := w.clock.Now().Unix()
	for i := 0; i < addresses; i++ {
		rec, err := ks.Create(now)
		if err != nil {
			return err
		}
		ix.Track(rec.Address)
	}
	l := ledger.New()

	snap, err := snapshot.Capture(snapshot.All, ks, ix, l, true, nil)
	if err != nil {
		return err
	}
	blob, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	if err := w.store.Create(name, password, blob); err != nil {
		w.initCompleted(err)
		return err
	}

	w.open(name, password, state.Components{Keys: ks, Outputs: ix, Ledger: l})
	logger := log.WithWallet(name)
	logger.Info().Int("addresses", addresses).Bool("seeded", ks.HasSeed()).Msg("Wallet initialized")
	w.initCompleted(nil)
	return nil
}

// Load opens container name and returns the caller data stored with the
// last save.
func (w *Wallet) Load(name string, password []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s != nil {
		return nil, walleterr.ErrAlreadyInitialized
	}

	snap, err := w.read(name, password)
	if err != nil {
		w.initCompleted(err)
		return nil, err
	}
	ks, ix, l, err := snap.Restore(w.params.Outputs)
	if err != nil {
		w.initCompleted(err)
		return nil, err
	}

	w.open(name, password, state.Components{Keys: ks, Outputs: ix, Ledger: l})
	logger := log.WithWallet(name)
	logger.Info().
		Stringer("level", snap.Level).
		Int("addresses", ks.Count()).
		Uint32("blocks", l.BlockCount()).
		Msg("Wallet loaded")
	w.initCompleted(nil)
	return snap.Extra, nil
}

func (w *Wallet) read(name string, password []byte) (*snapshot.Snapshot, error) {
	blob, err := w.store.Read(name, password)
	if err != nil {
		return nil, err
	}
	return snapshot.Decode(blob)
}

// capture encodes the session at level.
func (s *session) capture(level snapshot.Level, withSecrets bool, extra []byte) ([]byte, error) {
	var blob []byte
	err := s.st.View(func(c *state.Components) error {
		snap, err := snapshot.Capture(level, c.Keys, c.Outputs, c.Ledger, withSecrets, extra)
		if err != nil {
			return err
		}
		blob, err = snapshot.Encode(snap)
		return err
	})
	return blob, err
}

// Save writes the wallet to its container at level, together with extra.
// Observers get SaveCompleted either way.
func (w *Wallet) Save(level snapshot.Level, extra []byte) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	name, password := w.credentials()
	blob, err := s.capture(level, true, extra)
	if err == nil {
		err = w.store.Write(name, password, blob)
	}
	_ = s.st.Update(func(tx *state.Tx) error {
		tx.Notify(events.Notification{Kind: events.KindSaveCompleted, Err: err})
		return nil
	})
	logger := log.WithWallet(name)
	if err != nil {
		logger.Error().Err(err).Msg("Save failed")
		return err
	}
	logger.Debug().Stringer("level", level).Int("bytes", len(blob)).Msg("Wallet saved")
	return nil
}

// Export writes a copy of the wallet into the new container name under
// password. Without secrets the copy is view-only.
func (w *Wallet) Export(name string, password []byte, level snapshot.Level, withSecrets bool) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	blob, err := s.capture(level, withSecrets, nil)
	if err != nil {
		return err
	}
	if err := w.store.Create(name, password, blob); err != nil {
		return err
	}
	log.Wallet.Info().Str("container", name).Stringer("level", level).Bool("secrets", withSecrets).Msg("Wallet exported")
	return nil
}

// ChangePassword re-encrypts the container. oldPassword must match the one
// the wallet was opened with.
func (w *Wallet) ChangePassword(oldPassword, newPassword []byte) error {
	if _, err := w.session(); err != nil {
		return err
	}
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	name, current := w.credentials()
	if subtle.ConstantTimeCompare(current, oldPassword) != 1 {
		return walleterr.ErrWrongPassword
	}
	if err := w.store.ChangePassword(name, oldPassword, newPassword); err != nil {
		return err
	}
	w.mu.Lock()
	if w.s != nil && w.s.name == name {
		w.s.password = append([]byte(nil), newPassword...)
	}
	w.mu.Unlock()
	return nil
}

// Start resumes a stopped wallet.
func (w *Wallet) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.stopped = false
		w.stop = make(chan struct{})
	}
}

// Stop wakes every blocked call with ErrStopped and rejects new calls until
// Start.
func (w *Wallet) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
}

// Shutdown closes the session without saving. The wallet can then be
// initialized or loaded again.
func (w *Wallet) Shutdown() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s == nil {
		return walleterr.ErrNotInitialized
	}
	close(w.s.done)
	w.s.hub.Close()
	for i := range w.s.password {
		w.s.password[i] = 0
	}
	logger := log.WithWallet(w.s.name)
	logger.Info().Msg("Wallet shut down")
	w.s = nil
	if w.stopped {
		w.stopped = false
		w.stop = make(chan struct{})
	}
	return nil
}

// Close shuts the wallet down, if needed, and stops observer delivery.
func (w *Wallet) Close() {
	_ = w.Shutdown()
	w.dispatcher.Stop()
}

// guard derives a context that ends with ctx, Stop or Shutdown.
func (w *Wallet) guard(ctx context.Context, s *session) (context.Context, context.CancelFunc) {
	w.mu.RLock()
	stop := w.stop
	w.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-stop:
		case <-s.done:
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}

// stoppedErr maps a cancellation caused by guard to ErrStopped.
func stoppedErr(parent context.Context, err error) error {
	if err != nil && parent.Err() == nil && errors.Is(err, context.Canceled) {
		return walleterr.ErrStopped
	}
	return err
}
