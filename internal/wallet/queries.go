package wallet

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/balance"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// view runs fn with shared access to the session's components.
func (w *Wallet) view(fn func(c *state.Components) error) error {
	s, err := w.session()
	if err != nil {
		return err
	}
	return s.st.View(fn)
}

// Balance returns the balance of every active address.
func (w *Wallet) Balance() (balance.Balance, error) {
	var b balance.Balance
	err := w.view(func(c *state.Components) error {
		b = balance.Global(c.Outputs, c.Ledger)
		return nil
	})
	return b, err
}

// AddressBalance returns the balance of one active address.
func (w *Wallet) AddressBalance(addr types.Address) (balance.Balance, error) {
	var b balance.Balance
	err := w.view(func(c *state.Components) (err error) {
		if !c.Keys.Has(addr) {
			return errors.Wrapf(walleterr.ErrUnknownAddress, "%s", addr)
		}
		b, err = balance.Address(c.Outputs, c.Ledger, addr)
		return err
	})
	return b, err
}

// GetTransactionCount returns the number of transaction records.
func (w *Wallet) GetTransactionCount() (int, error) {
	var n int
	err := w.view(func(c *state.Components) error {
		n = c.Ledger.TransactionCount()
		return nil
	})
	return n, err
}

// GetTransaction returns transaction id.
func (w *Wallet) GetTransaction(id ledger.TransactionID) (ledger.Transaction, error) {
	var t ledger.Transaction
	err := w.view(func(c *state.Components) (err error) {
		t, err = c.Ledger.Transaction(id)
		return err
	})
	return t, err
}

// GetTransactionByHash returns the live record with hash.
func (w *Wallet) GetTransactionByHash(hash types.Hash) (ledger.Transaction, error) {
	var t ledger.Transaction
	err := w.view(func(c *state.Components) (err error) {
		t, err = c.Ledger.TransactionByHash(hash)
		return err
	})
	return t, err
}

// GetTransactionTransferCount returns the number of transfers of id.
func (w *Wallet) GetTransactionTransferCount(id ledger.TransactionID) (int, error) {
	var n int
	err := w.view(func(c *state.Components) (err error) {
		n, err = c.Ledger.TransferCount(id)
		return err
	})
	return n, err
}

// GetTransactionTransfer returns transfer index of id.
func (w *Wallet) GetTransactionTransfer(id ledger.TransactionID, index int) (ledger.Transfer, error) {
	var tr ledger.Transfer
	err := w.view(func(c *state.Components) (err error) {
		tr, err = c.Ledger.Transfer(id, index)
		return err
	})
	return tr, err
}

// GetTransactions groups confirmed transactions by block for count blocks
// starting at height from.
func (w *Wallet) GetTransactions(from, count uint32) ([]ledger.BlockTransactions, error) {
	var res []ledger.BlockTransactions
	err := w.view(func(c *state.Components) error {
		res = c.Ledger.TransactionsInBlocks(from, count)
		return nil
	})
	return res, err
}

// GetTransactionsByBlockHash is GetTransactions starting at the block with
// hash.
func (w *Wallet) GetTransactionsByBlockHash(hash types.Hash, count uint32) ([]ledger.BlockTransactions, error) {
	var res []ledger.BlockTransactions
	err := w.view(func(c *state.Components) (err error) {
		res, err = c.Ledger.TransactionsByBlockHash(hash, count)
		return err
	})
	return res, err
}

// GetUnconfirmedTransactions returns committed transactions awaiting
// confirmation.
func (w *Wallet) GetUnconfirmedTransactions() ([]ledger.Transaction, error) {
	var res []ledger.Transaction
	err := w.view(func(c *state.Components) error {
		for _, id := range c.Ledger.Unconfirmed() {
			t, err := c.Ledger.Transaction(id)
			if err != nil {
				return err
			}
			res = append(res, t)
		}
		return nil
	})
	return res, err
}

// GetDelayedTransactionIDs returns transactions built but not committed.
func (w *Wallet) GetDelayedTransactionIDs() ([]ledger.TransactionID, error) {
	var ids []ledger.TransactionID
	err := w.view(func(c *state.Components) error {
		ids = c.Ledger.Delayed()
		return nil
	})
	return ids, err
}

// GetTransactionsByPaymentIDs returns confirmed transactions grouped by the
// payment id in their extra field, one group per requested id.
func (w *Wallet) GetTransactionsByPaymentIDs(ids []types.Hash) ([]ledger.PaymentIDTransactions, error) {
	var res []ledger.PaymentIDTransactions
	err := w.view(func(c *state.Components) error {
		res = c.Ledger.TransactionsByPaymentIDs(ids)
		return nil
	})
	return res, err
}

// GetTransactionSecretKey returns the secret key a local transaction was
// built with.
func (w *Wallet) GetTransactionSecretKey(id ledger.TransactionID) ([]byte, error) {
	var key []byte
	err := w.view(func(c *state.Components) error {
		t, err := c.Ledger.Transaction(id)
		if err != nil {
			return err
		}
		if len(t.SecretKey) == 0 {
			return errors.Wrapf(walleterr.ErrInvalidParameters, "transaction %d has no secret key", id)
		}
		key = t.SecretKey
		return nil
	})
	return key, err
}

// GetTransactionDeterministicSecretKey re-derives the secret key of the
// transaction with hash from the view secret and its first input. Only
// transactions spending wallet outputs have one.
func (w *Wallet) GetTransactionDeterministicSecretKey(hash types.Hash) ([]byte, error) {
	var key []byte
	err := w.view(func(c *state.Components) error {
		t, err := c.Ledger.TransactionByHash(hash)
		if err != nil {
			return err
		}
		if t.FirstInput == nil {
			return errors.Wrapf(walleterr.ErrInvalidParameters, "transaction %s spends no wallet output", hash)
		}
		k, err := crypto.DeriveTransactionKey(c.Keys.ViewSecret(), *t.FirstInput)
		if err != nil {
			return err
		}
		key = k.Serialize()
		return nil
	})
	return key, err
}

// GetBlockHashes returns up to count block hashes starting at height from.
func (w *Wallet) GetBlockHashes(from, count uint32) ([]types.Hash, error) {
	var hs []types.Hash
	err := w.view(func(c *state.Components) error {
		hs = c.Ledger.BlockHashes(from, count)
		return nil
	})
	return hs, err
}

// GetBlockCount returns the number of applied blocks.
func (w *Wallet) GetBlockCount() (uint32, error) {
	var n uint32
	err := w.view(func(c *state.Components) error {
		n = c.Ledger.BlockCount()
		return nil
	})
	return n, err
}

// GetUnspentOutputs returns the unspent outputs of addrs, or of every
// active address when none are given.
func (w *Wallet) GetUnspentOutputs(addrs ...types.Address) ([]outputs.Output, error) {
	var res []outputs.Output
	err := w.view(func(c *state.Components) error {
		for _, a := range addrs {
			if !c.Keys.Has(a) {
				return errors.Wrapf(walleterr.ErrUnknownAddress, "%s", a)
			}
		}
		res = c.Outputs.Unspent(addrs...)
		return nil
	})
	return res, err
}

// GetUnspentOutputsCount returns len(GetUnspentOutputs()).
func (w *Wallet) GetUnspentOutputsCount() (int, error) {
	res, err := w.GetUnspentOutputs()
	return len(res), err
}

// GetDeposit returns deposit id.
func (w *Wallet) GetDeposit(id ledger.DepositID) (ledger.Deposit, error) {
	var d ledger.Deposit
	err := w.view(func(c *state.Components) (err error) {
		d, err = c.Ledger.Deposit(id)
		return err
	})
	return d, err
}

// GetDepositCount returns the number of deposit records.
func (w *Wallet) GetDepositCount() (int, error) {
	var n int
	err := w.view(func(c *state.Components) error {
		n = c.Ledger.DepositCount()
		return nil
	})
	return n, err
}

// GetDeposits groups deposits by creating block for count blocks starting
// at height from.
func (w *Wallet) GetDeposits(from, count uint32) ([]ledger.BlockDeposits, error) {
	var res []ledger.BlockDeposits
	err := w.view(func(c *state.Components) error {
		res = c.Ledger.DepositsInBlocks(from, count)
		return nil
	})
	return res, err
}

// GetDepositsByBlockHash is GetDeposits starting at the block with hash.
func (w *Wallet) GetDepositsByBlockHash(hash types.Hash, count uint32) ([]ledger.BlockDeposits, error) {
	var res []ledger.BlockDeposits
	err := w.view(func(c *state.Components) (err error) {
		res, err = c.Ledger.DepositsByBlockHash(hash, count)
		return err
	})
	return res, err
}
