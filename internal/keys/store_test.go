package keys

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
)

// testSeed returns the BIP-39 test vector seed ("abandon" x11 + "about", "TREZOR").
func testSeed(t *testing.T) []byte {
	t.Helper()
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := SeedFromMnemonic(mnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewFromSeed(testSeed(t))
	if err != nil {
		t.Fatalf("NewFromSeed() error: %v", err)
	}
	return s
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	if _, err := SeedFromMnemonic(m, ""); err != nil {
		t.Errorf("generated mnemonic does not derive a seed: %v", err)
	}
	if _, err := SeedFromMnemonic("not a mnemonic", ""); err == nil {
		t.Error("SeedFromMnemonic() should reject an invalid mnemonic")
	}
}

func TestStore_CreateDeterministic(t *testing.T) {
	s1 := seededStore(t)
	s2 := seededStore(t)

	for i := 0; i < 3; i++ {
		r1, err := s1.Create(100)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		r2, err := s2.Create(100)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if r1.Address != r2.Address {
			t.Errorf("address %d differs between stores from the same seed", i)
		}
		if r1.Index != uint32(i) {
			t.Errorf("record index = %d, want %d", r1.Index, i)
		}
	}
	if s1.Count() != 3 {
		t.Errorf("Count() = %d, want 3", s1.Count())
	}
	if !bytes.Equal(s1.ViewPublic(), s2.ViewPublic()) {
		t.Error("view key should derive from the seed")
	}
}

func TestStore_ImportAndDuplicate(t *testing.T) {
	s := seededStore(t)
	key, _ := crypto.GenerateKey()

	rec, err := s.Import(key.Serialize(), 5)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if rec.Index != NoIndex || rec.ViewOnly() {
		t.Errorf("imported record = %+v", rec)
	}
	if _, err := s.Import(key.Serialize(), 5); !errors.Is(err, walleterr.ErrInvalidParameters) {
		t.Errorf("duplicate Import() = %v, want ErrInvalidParameters", err)
	}
}

func TestStore_ViewOnly(t *testing.T) {
	s := seededStore(t)
	key, _ := crypto.GenerateKey()

	rec, err := s.ImportPublic(key.PublicKey(), 0)
	if err != nil {
		t.Fatalf("ImportPublic() error: %v", err)
	}
	if !rec.ViewOnly() {
		t.Error("public import should be view-only")
	}
	if !s.IsViewOnly() {
		t.Error("store with only view-only addresses should report IsViewOnly")
	}
	if _, err := s.SpendKey(rec.Address); err != nil {
		t.Errorf("SpendKey() error: %v", err)
	}
	if _, err := s.SpendSecret(rec.Address); !errors.Is(err, walleterr.ErrUnknownAddress) {
		t.Errorf("SpendSecret(view-only) = %v, want ErrUnknownAddress", err)
	}
	if _, err := s.ImportPublic([]byte("junk"), 0); !errors.Is(err, walleterr.ErrInvalidParameters) {
		t.Errorf("ImportPublic(junk) = %v, want ErrInvalidParameters", err)
	}
}

func TestStore_DeleteKeepsOrder(t *testing.T) {
	s := seededStore(t)
	a, _ := s.Create(0)
	b, _ := s.Create(0)
	c, _ := s.Create(0)

	if err := s.Delete(b.Address); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(b.Address); !errors.Is(err, walleterr.ErrUnknownAddress) {
		t.Errorf("second Delete() = %v, want ErrUnknownAddress", err)
	}
	got := s.Addresses()
	if len(got) != 2 || got[0] != a.Address || got[1] != c.Address {
		t.Errorf("Addresses() = %v", got)
	}
	if first, _ := s.At(0); first != a.Address {
		t.Errorf("At(0) = %s, want %s", first, a.Address)
	}
	if _, err := s.At(2); !errors.Is(err, walleterr.ErrInvalidParameters) {
		t.Errorf("At(2) = %v, want ErrInvalidParameters", err)
	}

	// A deleted HD address is not re-created by the next Create.
	d, _ := s.Create(0)
	if d.Address == b.Address || d.Index != 3 {
		t.Errorf("Create() after delete = index %d", d.Index)
	}
}

func TestStore_SignWithSpendSecret(t *testing.T) {
	s := seededStore(t)
	rec, _ := s.Create(0)

	key, err := s.SpendSecret(rec.Address)
	if err != nil {
		t.Fatalf("SpendSecret() error: %v", err)
	}
	digest := crypto.Hash([]byte("msg"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(digest[:], sig, rec.SpendPublic) {
		t.Error("signature does not verify against the spend public key")
	}
}

func TestStore_RandomWithoutSeed(t *testing.T) {
	view, _ := crypto.GenerateKey()
	s, err := NewFromViewSecret(view.Serialize())
	if err != nil {
		t.Fatalf("NewFromViewSecret() error: %v", err)
	}
	if s.HasSeed() {
		t.Error("HasSeed() = true without a seed")
	}
	rec, err := s.Create(0)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if rec.Index != NoIndex {
		t.Errorf("random address index = %d, want NoIndex", rec.Index)
	}
}

func TestExportRestore(t *testing.T) {
	s := seededStore(t)
	s.Create(1)
	s.Create(2)
	key, _ := crypto.GenerateKey()
	s.ImportPublic(key.PublicKey(), 3)

	full, err := Restore(s.Export(true))
	if err != nil {
		t.Fatalf("Restore(full) error: %v", err)
	}
	if full.Count() != 3 || !full.HasSeed() {
		t.Errorf("restored Count() = %d, HasSeed() = %v", full.Count(), full.HasSeed())
	}
	next1, _ := s.Create(0)
	next2, _ := full.Create(0)
	if next1.Address != next2.Address {
		t.Error("restored store should continue the HD sequence")
	}

	watch, err := Restore(s.Export(false))
	if err != nil {
		t.Fatalf("Restore(no secrets) error: %v", err)
	}
	first, _ := watch.At(0)
	if _, err := watch.SpendSecret(first); !errors.Is(err, walleterr.ErrUnknownAddress) {
		t.Errorf("SpendSecret() on secret-less restore = %v, want ErrUnknownAddress", err)
	}
}

func TestRestore_Corrupted(t *testing.T) {
	s := seededStore(t)
	s.Create(0)
	d := s.Export(true)
	d.Records[0].SpendPublic[5] ^= 0xff

	if _, err := Restore(d); !errors.Is(err, walleterr.ErrPersistenceCorruption) {
		t.Errorf("Restore(tampered) = %v, want ErrPersistenceCorruption", err)
	}
	if _, err := Restore(Data{}); !errors.Is(err, walleterr.ErrPersistenceCorruption) {
		t.Errorf("Restore(empty) = %v, want ErrPersistenceCorruption", err)
	}
}
