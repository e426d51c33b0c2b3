package keys

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/cockroachdb/errors"
)

// Data is the serializable form of a Store.
type Data struct {
	ViewSecret []byte       `json:"view_secret"`
	ViewPublic []byte       `json:"view_public"`
	Seed       []byte       `json:"seed,omitempty"`
	NextIndex  uint32       `json:"next_index"`
	Records    []RecordData `json:"records"`
}

// RecordData is the serializable form of a Record.
type RecordData struct {
	SpendPublic  []byte `json:"spend_public"`
	SpendSecret  []byte `json:"spend_secret,omitempty"`
	Index        uint32 `json:"index"`
	CreationTime int64  `json:"creation_time"`
}

// Export returns the store contents. The seed and spend secrets are omitted
// unless withSecrets is set; the result then restores as a view-only store.
func (s *Store) Export(withSecrets bool) Data {
	d := Data{
		ViewSecret: s.ViewSecret(),
		ViewPublic: s.ViewPublic(),
		NextIndex:  s.nextIndex,
		Records:    make([]RecordData, 0, len(s.order)),
	}
	if withSecrets {
		d.Seed = append([]byte(nil), s.seed...)
	}
	for _, addr := range s.order {
		rec := s.records[addr]
		rd := RecordData{
			SpendPublic:  append([]byte(nil), rec.SpendPublic...),
			Index:        rec.Index,
			CreationTime: rec.CreationTime,
		}
		if withSecrets {
			rd.SpendSecret = append([]byte(nil), rec.SpendSecret...)
		}
		d.Records = append(d.Records, rd)
	}
	return d
}

// Restore rebuilds a store from exported data.
func Restore(d Data) (*Store, error) {
	var (
		s   *Store
		err error
	)
	switch {
	case len(d.Seed) > 0:
		s, err = NewFromSeed(d.Seed)
	case len(d.ViewSecret) > 0:
		s, err = NewFromViewSecret(d.ViewSecret)
	default:
		return nil, errors.Wrap(walleterr.ErrPersistenceCorruption, "keys: missing view secret")
	}
	if err != nil {
		return nil, errors.Mark(err, walleterr.ErrPersistenceCorruption)
	}
	if len(d.ViewSecret) > 0 && string(s.viewSecret) != string(d.ViewSecret) {
		return nil, errors.Wrap(walleterr.ErrPersistenceCorruption, "keys: view secret does not match seed")
	}

	s.nextIndex = d.NextIndex
	for i, rd := range d.Records {
		if len(rd.SpendSecret) > 0 {
			key, err := crypto.PrivateKeyFromBytes(rd.SpendSecret)
			if err != nil {
				return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "keys: record %d: %v", i, err)
			}
			if string(key.PublicKey()) != string(rd.SpendPublic) {
				return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "keys: record %d: public key mismatch", i)
			}
		} else if err := crypto.ValidatePublicKey(rd.SpendPublic); err != nil {
			return nil, errors.Wrapf(walleterr.ErrPersistenceCorruption, "keys: record %d: %v", i, err)
		}
		if _, err := s.register(rd.SpendSecret, rd.SpendPublic, rd.Index, rd.CreationTime); err != nil {
			return nil, err
		}
	}
	return s, nil
}
