package wallet

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/keys"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// addAddress registers one address with fn and starts tracking it.
func (w *Wallet) addAddress(fn func(ks *keys.Store, now int64) (*keys.Record, error)) (types.Address, error) {
	s, err := w.session()
	if err != nil {
		return types.Address{}, err
	}
	var addr types.Address
	err = s.st.Update(func(tx *state.Tx) error {
		rec, err := fn(tx.Keys, w.clock.Now().Unix())
		if err != nil {
			return err
		}
		tx.Outputs.Track(rec.Address)
		tx.Ledger.TrackDeposits(rec.Address)
		addr = rec.Address
		return nil
	})
	if err != nil {
		return types.Address{}, err
	}
	log.Keys.Info().Str("address", addr.String()).Msg("Address added")
	return addr, nil
}

// CreateAddress adds a fresh address. Seeded wallets derive it from the
// seed.
func (w *Wallet) CreateAddress() (types.Address, error) {
	return w.addAddress(func(ks *keys.Store, now int64) (*keys.Record, error) {
		return ks.Create(now)
	})
}

// CreateAddressFromSecret adds the address of an existing spend secret.
// Its history appears only after a Reset below its first use.
func (w *Wallet) CreateAddressFromSecret(secret []byte) (types.Address, error) {
	return w.addAddress(func(ks *keys.Store, now int64) (*keys.Record, error) {
		return ks.Import(secret, now)
	})
}

// CreateAddressFromPublic adds a view-only address from its spend public
// key.
func (w *Wallet) CreateAddressFromPublic(public []byte) (types.Address, error) {
	return w.addAddress(func(ks *keys.Store, now int64) (*keys.Record, error) {
		return ks.ImportPublic(public, now)
	})
}

// CreateAddressList imports every secret or none. With reset the wallet
// rescans from the first block so the new addresses' history is found.
func (w *Wallet) CreateAddressList(secrets [][]byte, reset bool) ([]types.Address, error) {
	s, err := w.session()
	if err != nil {
		return nil, err
	}
	if len(secrets) == 0 {
		return nil, errors.Wrap(walleterr.ErrInvalidParameters, "no secrets")
	}

	addrs := make([]types.Address, 0, len(secrets))
	err = s.st.Update(func(tx *state.Tx) error {
		seen := make(map[types.Address]bool, len(secrets))
		for _, secret := range secrets {
			addr, err := tx.Keys.CheckImport(secret)
			if err != nil {
				return err
			}
			if seen[addr] {
				return errors.Wrapf(walleterr.ErrInvalidParameters, "duplicate secret for %s", addr)
			}
			seen[addr] = true
		}
		now := w.clock.Now().Unix()
		for _, secret := range secrets {
			// Checked above under the same lock.
			rec, _ := tx.Keys.Import(secret, now)
			tx.Outputs.Track(rec.Address)
			tx.Ledger.TrackDeposits(rec.Address)
			addrs = append(addrs, rec.Address)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Keys.Info().Int("count", len(addrs)).Bool("reset", reset).Msg("Addresses imported")

	if reset {
		if err := s.tracker.Reset(0); err != nil {
			return addrs, err
		}
	}
	return addrs, nil
}

// DeleteAddress removes addr from the active set. Its outputs, deposits and
// history stay in the ledger but no longer count toward balances.
func (w *Wallet) DeleteAddress(addr types.Address) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	err = s.st.Update(func(tx *state.Tx) error {
		if err := tx.Keys.Delete(addr); err != nil {
			return err
		}
		tx.Outputs.Untrack(addr)
		tx.Ledger.UntrackDeposits(addr)
		return nil
	})
	if err != nil {
		return err
	}
	log.Keys.Info().Str("address", addr.String()).Msg("Address deleted")
	return nil
}

// GetAddress returns the address at index in creation order.
func (w *Wallet) GetAddress(index int) (types.Address, error) {
	var addr types.Address
	err := w.view(func(c *state.Components) (err error) {
		addr, err = c.Keys.At(index)
		return err
	})
	return addr, err
}

// GetAddressCount returns the number of active addresses.
func (w *Wallet) GetAddressCount() (int, error) {
	var n int
	err := w.view(func(c *state.Components) error {
		n = c.Keys.Count()
		return nil
	})
	return n, err
}

// GetAddresses returns every active address in creation order.
func (w *Wallet) GetAddresses() ([]types.Address, error) {
	var addrs []types.Address
	err := w.view(func(c *state.Components) error {
		addrs = c.Keys.Addresses()
		return nil
	})
	return addrs, err
}

// GetAddressSpendKey returns the spend key pair of addr. View-only
// addresses have no spend secret and fail with ErrUnknownAddress.
func (w *Wallet) GetAddressSpendKey(addr types.Address) (KeyPair, error) {
	var kp KeyPair
	err := w.view(func(c *state.Components) error {
		rec, err := c.Keys.Get(addr)
		if err != nil {
			return err
		}
		kp, err = spendKeyPair(rec)
		return err
	})
	return kp, err
}

// GetAddressSpendKeyAt returns the spend key pair of the address at index
// in creation order.
func (w *Wallet) GetAddressSpendKeyAt(index int) (KeyPair, error) {
	var kp KeyPair
	err := w.view(func(c *state.Components) error {
		addr, err := c.Keys.At(index)
		if err != nil {
			return err
		}
		rec, err := c.Keys.Get(addr)
		if err != nil {
			return err
		}
		kp, err = spendKeyPair(rec)
		return err
	})
	return kp, err
}

// GetAddressSpendPublicKey returns the spend public key of addr, view-only
// addresses included.
func (w *Wallet) GetAddressSpendPublicKey(addr types.Address) ([]byte, error) {
	var pub []byte
	err := w.view(func(c *state.Components) error {
		rec, err := c.Keys.Get(addr)
		if err != nil {
			return err
		}
		pub = append([]byte(nil), rec.SpendPublic...)
		return nil
	})
	return pub, err
}

func spendKeyPair(rec *keys.Record) (KeyPair, error) {
	if rec.ViewOnly() {
		return KeyPair{}, errors.Wrapf(walleterr.ErrUnknownAddress, "%s is view-only", rec.Address)
	}
	return KeyPair{
		Public: append([]byte(nil), rec.SpendPublic...),
		Secret: append([]byte(nil), rec.SpendSecret...),
	}, nil
}

// GetViewKey returns the wallet view key pair.
func (w *Wallet) GetViewKey() (KeyPair, error) {
	var kp KeyPair
	err := w.view(func(c *state.Components) error {
		kp = KeyPair{Public: c.Keys.ViewPublic(), Secret: c.Keys.ViewSecret()}
		return nil
	})
	return kp, err
}

// IsViewOnly reports whether no address can spend.
func (w *Wallet) IsViewOnly() (bool, error) {
	var viewOnly bool
	err := w.view(func(c *state.Components) error {
		viewOnly = c.Keys.IsViewOnly()
		return nil
	})
	return viewOnly, err
}
