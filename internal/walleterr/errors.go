// Package walleterr defines the error taxonomy shared by every wallet component.
//
// Components wrap these sentinels with context; callers match them with
// errors.Is.
package walleterr

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidParameters is returned for malformed requests, including a
	// reset height above the best known block.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrUnknownAddress is returned for addresses not in the active set, or
	// when a spend secret is requested for a view-only address.
	ErrUnknownAddress = errors.New("unknown address")
	// ErrUnknownIdentifier is returned for unknown transaction, transfer or deposit ids.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrTransactionNotFound is returned when a hash lookup misses.
	ErrTransactionNotFound = errors.Wrap(ErrUnknownIdentifier, "transaction not found")
	// ErrInvalidTransactionState is returned for commit/rollback on a
	// transaction that is not in a state permitting it.
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	// ErrInsufficientFunds is returned when unreserved outputs cannot cover a request.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSynchronizationDivergence is returned when the feed diverges beyond
	// the rollback window or delivers an unsignalled gap.
	ErrSynchronizationDivergence = errors.New("synchronization divergence")
	// ErrPersistenceCorruption is returned when a saved payload fails its
	// version or checksum check.
	ErrPersistenceCorruption = errors.New("persistence corruption")
	// ErrWrongPassword is returned when a container fails to decrypt.
	ErrWrongPassword = errors.New("wrong password")
	// ErrNotInitialized is returned when the wallet is used before init/load.
	ErrNotInitialized = errors.New("wallet not initialized")
	// ErrAlreadyInitialized is returned on a second init/load.
	ErrAlreadyInitialized = errors.New("wallet already initialized")
	// ErrStopped is returned by blocking calls woken by stop/shutdown.
	ErrStopped = errors.New("wallet stopped")
	// ErrBroadcast is returned when the broadcast sink rejects a transaction.
	ErrBroadcast = errors.New("broadcast failed")
)
