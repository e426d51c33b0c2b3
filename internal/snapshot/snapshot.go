// Package snapshot serializes the wallet model into a versioned, checksummed
// byte stream and restores it.
//
// Format: magic(4) | version(4, big-endian) | blake3(payload)(32) | payload
//
// The payload is the JSON encoding of a Snapshot. Every exported collection
// is emitted in a fixed order, so equal models encode to equal bytes.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/keys"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/outputs"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/cockroachdb/errors"
	"github.com/zeebo/blake3"
)

// Magic identifies a wallet snapshot.
const Magic = "KLWS"

// Version is the current schema version.
const Version uint32 = 1

const headerSize = len(Magic) + 4 + 32

// Level selects how much of the model a snapshot carries.
type Level uint8

const (
	// KeysOnly stores addresses and keys; the history is rebuilt by a full
	// rescan.
	KeysOnly Level = iota + 1
	// KeysAndTransactions adds the transaction and deposit history. Outputs
	// are rebuilt by a rescan; saved block hashes become checkpoints that
	// discard records of blocks replaced in the meantime.
	KeysAndTransactions
	// All stores the complete model.
	All
)

func (l Level) String() string {
	switch l {
	case KeysOnly:
		return "keys"
	case KeysAndTransactions:
		return "transactions"
	case All:
		return "all"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// ParseLevel parses the String form of a level.
func ParseLevel(s string) (Level, error) {
	for _, l := range []Level{KeysOnly, KeysAndTransactions, All} {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, errors.Wrapf(walleterr.ErrInvalidParameters, "unknown save level %q", s)
}

// Snapshot is the decoded payload.
type Snapshot struct {
	Level   Level         `json:"level"`
	Keys    keys.Data     `json:"keys"`
	Ledger  *ledger.Data  `json:"ledger,omitempty"`
	Outputs *outputs.Data `json:"outputs,omitempty"`
	// Extra is opaque caller data stored alongside the model.
	Extra []byte `json:"extra,omitempty"`
}

// Capture exports the components at level. Spend secrets and the seed are
// kept only when withSecrets is set.
func Capture(level Level, ks *keys.Store, ix *outputs.Index, l *ledger.Ledger, withSecrets bool, extra []byte) (*Snapshot, error) {
	s := &Snapshot{
		Level: level,
		Keys:  ks.Export(withSecrets),
		Extra: append([]byte(nil), extra...),
	}
	switch level {
	case KeysOnly:
	case KeysAndTransactions:
		d := l.Export()
		d.DetachBlockHashes()
		d.Outgoing = []ledger.StoredOutgoing{}
		s.Ledger = &d
	case All:
		ld := l.Export()
		od := ix.Export()
		s.Ledger = &ld
		s.Outputs = &od
	default:
		return nil, errors.Wrapf(walleterr.ErrInvalidParameters, "unknown save level %d", level)
	}
	return s, nil
}

// Restore rebuilds the components. Transactions still CREATED in a
// KeysAndTransactions snapshot are cancelled since their reserved outputs
// are not part of it.
func (s *Snapshot) Restore(params outputs.Params) (*keys.Store, *outputs.Index, *ledger.Ledger, error) {
	ks, err := keys.Restore(s.Keys)
	if err != nil {
		return nil, nil, nil, err
	}
	tracked := ks.Addresses()

	switch s.Level {
	case KeysOnly:
		ix := outputs.New(params)
		for _, addr := range tracked {
			ix.Track(addr)
		}
		return ks, ix, ledger.New(), nil

	case KeysAndTransactions:
		if s.Ledger == nil {
			return nil, nil, nil, errors.Wrap(walleterr.ErrPersistenceCorruption, "snapshot: missing ledger")
		}
		l, err := ledger.Restore(*s.Ledger)
		if err != nil {
			return nil, nil, nil, err
		}
		l.CancelPending()
		l.RetainDeposits(tracked)
		ix := outputs.New(params)
		for _, addr := range tracked {
			ix.Track(addr)
		}
		return ks, ix, l, nil

	case All:
		if s.Ledger == nil || s.Outputs == nil {
			return nil, nil, nil, errors.Wrap(walleterr.ErrPersistenceCorruption, "snapshot: missing ledger or outputs")
		}
		l, err := ledger.Restore(*s.Ledger)
		if err != nil {
			return nil, nil, nil, err
		}
		l.RetainDeposits(tracked)
		ix, err := outputs.Restore(params, *s.Outputs, tracked)
		if err != nil {
			return nil, nil, nil, err
		}
		return ks, ix, l, nil

	default:
		return nil, nil, nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "snapshot: unknown level %d", s.Level)
	}
}

// Encode serializes s.
func Encode(s *Snapshot) ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	sum := blake3.Sum256(payload)

	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, Magic...)
	out = binary.BigEndian.AppendUint32(out, Version)
	out = append(out, sum[:]...)
	out = append(out, payload...)
	return out, nil
}

// Decode parses and verifies an encoded snapshot.
func Decode(blob []byte) (*Snapshot, error) {
	if len(blob) < headerSize {
		return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "snapshot too short: %d bytes", len(blob))
	}
	if !bytes.Equal(blob[:len(Magic)], []byte(Magic)) {
		return nil, errors.Wrap(walleterr.ErrPersistenceCorruption, "not a wallet snapshot")
	}
	if v := binary.BigEndian.Uint32(blob[len(Magic):]); v != Version {
		return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "snapshot version %d, want %d", v, Version)
	}
	payload := blob[headerSize:]
	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], blob[len(Magic)+4:headerSize]) {
		return nil, errors.Wrap(walleterr.ErrPersistenceCorruption, "snapshot checksum mismatch")
	}

	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "decode snapshot: %v", err)
	}
	return &s, nil
}
