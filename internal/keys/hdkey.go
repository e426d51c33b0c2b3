package keys

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 derivation path constants.
// Full path: m/44'/CoinType'/account'/0/index
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44
	CoinType     = bip32.FirstHardenedChild + 8888
	// Account is the single BIP-44 account used for spend keys.
	Account = bip32.FirstHardenedChild + 0
)

// hdKey wraps a BIP-32 extended key.
type hdKey struct {
	key *bip32.Key
}

func newMasterKey(seed []byte) (*hdKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &hdKey{key: master}, nil
}

func (k *hdKey) derivePath(indices ...uint32) (*hdKey, error) {
	current := k.key
	for _, idx := range indices {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
		current = child
	}
	return &hdKey{key: current}, nil
}

// deriveSpend derives the spend key at m/44'/8888'/0'/0/index.
func (k *hdKey) deriveSpend(index uint32) (*crypto.PrivateKey, error) {
	child, err := k.derivePath(PurposeBIP44, CoinType, Account, 0, index)
	if err != nil {
		return nil, err
	}
	return crypto.PrivateKeyFromBytes(child.privateKeyBytes())
}

// privateKeyBytes strips the leading zero bip32 stores on private keys.
func (k *hdKey) privateKeyBytes() []byte {
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}
