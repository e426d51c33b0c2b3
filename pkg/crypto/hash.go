// Package crypto provides the default cryptographic capabilities used by the
// wallet: hashing, key pairs, transaction keys and proof signatures.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Domain separation tags.
const (
	txKeyDomain   = "klingnet-wallet/tx-key"
	viewKeyDomain = "klingnet-wallet/view-key"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of two hashes.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// AddressFromKeys derives an address from a spend public key and the
// wallet view public key.
// Address = BLAKE3(spend_pub || view_pub)[:20].
func AddressFromKeys(spendPub, viewPub []byte) types.Address {
	h := blake3.New()
	h.Write(spendPub)
	h.Write(viewPub)
	var sum types.Hash
	copy(sum[:], h.Sum(nil))

	var addr types.Address
	copy(addr[:], sum[:types.AddressSize])
	return addr
}

// DeriveTransactionKey deterministically derives the per-transaction secret
// key from the wallet view secret and the first input spent by the
// transaction. The same inputs always yield the same key.
func DeriveTransactionKey(viewSecret []byte, first types.OutputRef) (*PrivateKey, error) {
	buf := make([]byte, 0, len(txKeyDomain)+len(viewSecret)+types.HashSize+4)
	buf = append(buf, txKeyDomain...)
	buf = append(buf, viewSecret...)
	buf = append(buf, first.TxHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, first.Index)
	sum := Hash(buf)
	return PrivateKeyFromBytes(sum[:])
}

// DeriveViewKey derives the wallet-wide view key from a seed.
func DeriveViewKey(seed []byte) (*PrivateKey, error) {
	buf := make([]byte, 0, len(viewKeyDomain)+len(seed))
	buf = append(buf, viewKeyDomain...)
	buf = append(buf, seed...)
	sum := Hash(buf)
	return PrivateKeyFromBytes(sum[:])
}
