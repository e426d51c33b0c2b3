// Package keys owns per-address key material: spend key pairs and the
// wallet-wide view key.
package keys

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// NoIndex marks an address that was not derived from the seed.
const NoIndex = ^uint32(0)

// Record is the key material of one address.
type Record struct {
	Address     types.Address
	SpendPublic []byte
	// SpendSecret is nil for view-only addresses.
	SpendSecret  []byte
	Index        uint32
	CreationTime int64
}

// ViewOnly reports whether the address lacks a spend secret.
func (r *Record) ViewOnly() bool {
	return len(r.SpendSecret) == 0
}

// Store maps addresses to key material. It is not safe for concurrent use;
// the wallet state lock guards it.
type Store struct {
	viewSecret []byte
	viewPublic []byte
	seed       []byte
	master     *hdKey
	nextIndex  uint32

	order   []types.Address
	records map[types.Address]*Record
}

// NewFromSeed creates a store whose addresses are derived from seed. The
// view key is derived from the seed as well.
func NewFromSeed(seed []byte) (*Store, error) {
	master, err := newMasterKey(seed)
	if err != nil {
		return nil, errors.Mark(err, walleterr.ErrInvalidParameters)
	}
	view, err := crypto.DeriveViewKey(seed)
	if err != nil {
		return nil, err
	}
	s := newStore(view)
	s.seed = append([]byte(nil), seed...)
	s.master = master
	return s, nil
}

// NewFromViewSecret creates a store with an externally supplied view key and
// no seed. createAddress() then draws random spend keys.
func NewFromViewSecret(viewSecret []byte) (*Store, error) {
	view, err := crypto.PrivateKeyFromBytes(viewSecret)
	if err != nil {
		return nil, errors.Mark(err, walleterr.ErrInvalidParameters)
	}
	return newStore(view), nil
}

func newStore(view *crypto.PrivateKey) *Store {
	return &Store{
		viewSecret: view.Serialize(),
		viewPublic: view.PublicKey(),
		records:    make(map[types.Address]*Record),
	}
}

// ViewSecret returns the wallet view secret.
func (s *Store) ViewSecret() []byte { return append([]byte(nil), s.viewSecret...) }

// ViewPublic returns the wallet view public key.
func (s *Store) ViewPublic() []byte { return append([]byte(nil), s.viewPublic...) }

// HasSeed reports whether addresses can be derived deterministically.
func (s *Store) HasSeed() bool { return s.master != nil }

// Create generates and registers a fresh address. With a seed the next HD
// index is used, otherwise a random key.
func (s *Store) Create(now int64) (*Record, error) {
	if s.master == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		return s.register(key.Serialize(), key.PublicKey(), NoIndex, now)
	}

	for {
		idx := s.nextIndex
		key, err := s.master.deriveSpend(idx)
		s.nextIndex++
		if err != nil {
			// bip32 rejects a negligible set of indices; skip them.
			continue
		}
		addr := crypto.AddressFromKeys(key.PublicKey(), s.viewPublic)
		if _, ok := s.records[addr]; ok {
			continue
		}
		return s.register(key.Serialize(), key.PublicKey(), idx, now)
	}
}

// CheckImport validates a spend secret without registering it.
func (s *Store) CheckImport(secret []byte) (types.Address, error) {
	key, err := crypto.PrivateKeyFromBytes(secret)
	if err != nil {
		return types.Address{}, errors.Mark(err, walleterr.ErrInvalidParameters)
	}
	addr := crypto.AddressFromKeys(key.PublicKey(), s.viewPublic)
	if _, ok := s.records[addr]; ok {
		return types.Address{}, errors.Wrapf(walleterr.ErrInvalidParameters, "address %s already exists", addr)
	}
	return addr, nil
}

// Import registers an externally supplied spend secret.
func (s *Store) Import(secret []byte, now int64) (*Record, error) {
	if _, err := s.CheckImport(secret); err != nil {
		return nil, err
	}
	key, _ := crypto.PrivateKeyFromBytes(secret)
	return s.register(key.Serialize(), key.PublicKey(), NoIndex, now)
}

// ImportPublic registers a view-only address from a spend public key.
func (s *Store) ImportPublic(public []byte, now int64) (*Record, error) {
	if err := crypto.ValidatePublicKey(public); err != nil {
		return nil, errors.Mark(err, walleterr.ErrInvalidParameters)
	}
	addr := crypto.AddressFromKeys(public, s.viewPublic)
	if _, ok := s.records[addr]; ok {
		return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "address %s already exists", addr)
	}
	return s.register(nil, public, NoIndex, now)
}

func (s *Store) register(secret, public []byte, index uint32, now int64) (*Record, error) {
	rec := &Record{
		Address:      crypto.AddressFromKeys(public, s.viewPublic),
		SpendPublic:  append([]byte(nil), public...),
		SpendSecret:  append([]byte(nil), secret...),
		Index:        index,
		CreationTime: now,
	}
	if len(secret) == 0 {
		rec.SpendSecret = nil
	}
	s.records[rec.Address] = rec
	s.order = append(s.order, rec.Address)
	return rec, nil
}

// Delete removes addr from the active set.
func (s *Store) Delete(addr types.Address) error {
	if _, ok := s.records[addr]; !ok {
		return errors.Wrapf(walleterr.ErrUnknownAddress, "%s", addr)
	}
	delete(s.records, addr)
	for i, a := range s.order {
		if a == addr {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every address. The view key and seed are kept.
func (s *Store) Clear() {
	s.order = nil
	s.records = make(map[types.Address]*Record)
}

// Has reports whether addr is in the active set.
func (s *Store) Has(addr types.Address) bool {
	_, ok := s.records[addr]
	return ok
}

// Get returns the record for addr.
func (s *Store) Get(addr types.Address) (*Record, error) {
	rec, ok := s.records[addr]
	if !ok {
		return nil, errors.Wrapf(walleterr.ErrUnknownAddress, "%s", addr)
	}
	return rec, nil
}

// At returns the address at position index in creation order.
func (s *Store) At(index int) (types.Address, error) {
	if index < 0 || index >= len(s.order) {
		return types.Address{}, errors.Wrapf(walleterr.ErrInvalidParameters, "address index %d out of range", index)
	}
	return s.order[index], nil
}

// Count returns the number of active addresses.
func (s *Store) Count() int { return len(s.order) }

// Addresses returns the active addresses in creation order.
func (s *Store) Addresses() []types.Address {
	return append([]types.Address(nil), s.order...)
}

// SpendKey returns the spend public key of addr.
func (s *Store) SpendKey(addr types.Address) ([]byte, error) {
	rec, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), rec.SpendPublic...), nil
}

// SpendSecret returns a signer for addr. View-only addresses yield
// ErrUnknownAddress.
func (s *Store) SpendSecret(addr types.Address) (*crypto.PrivateKey, error) {
	rec, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	if rec.ViewOnly() {
		return nil, errors.Wrapf(walleterr.ErrUnknownAddress, "%s is view-only", addr)
	}
	return crypto.PrivateKeyFromBytes(rec.SpendSecret)
}

// IsViewOnly reports whether no active address can spend.
func (s *Store) IsViewOnly() bool {
	for _, rec := range s.records {
		if !rec.ViewOnly() {
			return false
		}
	}
	return len(s.records) > 0
}
