package container

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/cockroachdb/errors"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	namespace = "wallet/"
	keyMeta   = "meta"
	keyData   = "data"

	metaVersion = 1
)

// Meta describes a stored container.
type Meta struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages named, encrypted wallet containers. Each container lives in
// its own namespace of db.
type Store struct {
	db     storage.DB
	params EncryptionParams
	clock  clock.Clock
}

// NewStore creates a container store over db.
func NewStore(db storage.DB, params EncryptionParams, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Store{db: db, params: params, clock: clk}
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return errors.Wrapf(walleterr.ErrInvalidParameters, "invalid container name %q", name)
	}
	return nil
}

func (s *Store) ns(name string) *storage.PrefixDB {
	return storage.NewPrefixDB(s.db, []byte(namespace+name+"/"))
}

// Exists reports whether a container called name is stored.
func (s *Store) Exists(name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	return s.ns(name).Has([]byte(keyMeta))
}

// Create stores a new container. It fails if name is taken.
func (s *Store) Create(name string, password, blob []byte) error {
	ok, err := s.Exists(name)
	if err != nil {
		return err
	}
	if ok {
		return errors.Wrapf(walleterr.ErrInvalidParameters, "container %q already exists", name)
	}
	now := s.clock.Now().UTC()
	if err := s.write(name, password, blob, Meta{Version: metaVersion, CreatedAt: now, UpdatedAt: now}); err != nil {
		return err
	}
	log.Storage.Info().Str("container", name).Msg("Container created")
	return nil
}

// Write replaces the contents of an existing container.
func (s *Store) Write(name string, password, blob []byte) error {
	m, err := s.Meta(name)
	if err != nil {
		return err
	}
	m.UpdatedAt = s.clock.Now().UTC()
	return s.write(name, password, blob, m)
}

// Read decrypts the contents of a container.
func (s *Store) Read(name string, password []byte) ([]byte, error) {
	if _, err := s.Meta(name); err != nil {
		return nil, err
	}
	enc, err := s.ns(name).Get([]byte(keyData))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read container %q", name), walleterr.ErrPersistenceCorruption)
	}
	return Decrypt(enc, password)
}

// ChangePassword re-encrypts a container under a new password.
func (s *Store) ChangePassword(name string, oldPassword, newPassword []byte) error {
	blob, err := s.Read(name, oldPassword)
	if err != nil {
		return err
	}
	defer zero(blob)
	if err := s.Write(name, newPassword, blob); err != nil {
		return err
	}
	log.Storage.Info().Str("container", name).Msg("Container password changed")
	return nil
}

// Meta returns the metadata of a container.
func (s *Store) Meta(name string) (Meta, error) {
	if err := validName(name); err != nil {
		return Meta{}, err
	}
	raw, err := s.ns(name).Get([]byte(keyMeta))
	if errors.Is(err, storage.ErrNotFound) {
		return Meta{}, errors.Wrapf(walleterr.ErrInvalidParameters, "container %q not found", name)
	}
	if err != nil {
		return Meta{}, errors.Wrapf(err, "read container %q", name)
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return Meta{}, errors.Wrapf(walleterr.ErrPersistenceCorruption, "container %q metadata: %v", name, err)
	}
	if m.Version != metaVersion {
		return Meta{}, errors.Wrapf(walleterr.ErrPersistenceCorruption, "container %q version %d", name, m.Version)
	}
	return m, nil
}

// List returns the names of all stored containers in key order.
func (s *Store) List() ([]string, error) {
	var names []string
	suffix := []byte("/" + keyMeta)
	err := s.db.ForEach([]byte(namespace), func(key, _ []byte) error {
		rest := key[len(namespace):]
		if bytes.HasSuffix(rest, suffix) {
			names = append(names, string(rest[:len(rest)-len(suffix)]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list containers")
	}
	return names, nil
}

// Delete removes a container.
func (s *Store) Delete(name string) error {
	if _, err := s.Meta(name); err != nil {
		return err
	}
	return s.ns(name).DeleteAll()
}

func (s *Store) write(name string, password, blob []byte, m Meta) error {
	enc, err := Encrypt(blob, password, s.params)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode metadata")
	}

	ns := s.ns(name)
	b := ns.NewBatch()
	if err := b.Put([]byte(keyData), enc); err != nil {
		return err
	}
	if err := b.Put([]byte(keyMeta), raw); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return errors.Wrapf(err, "write container %q", name)
	}
	return nil
}
