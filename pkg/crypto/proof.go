package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Proof string prefixes.
const (
	TxProofPrefix      = "TxProofV1"
	ReserveProofPrefix = "ReserveProofV1"
)

// EncodeProof signs the digest of payload and renders prefix followed by the
// hex signature.
func EncodeProof(prefix string, signer Signer, payload []byte) (string, error) {
	digest := Hash(payload)
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(sig), nil
}

// DecodeProof strips prefix and returns the raw signature.
func DecodeProof(prefix, proof string) ([]byte, error) {
	if !strings.HasPrefix(proof, prefix) {
		return nil, fmt.Errorf("proof must start with %q", prefix)
	}
	sig, err := hex.DecodeString(proof[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("proof signature must be %d bytes, got %d", SignatureSize, len(sig))
	}
	return sig, nil
}

// VerifyProof checks a proof produced by EncodeProof.
func VerifyProof(prefix, proof string, payload, publicKey []byte) bool {
	sig, err := DecodeProof(prefix, proof)
	if err != nil {
		return false
	}
	digest := Hash(payload)
	return VerifySignature(digest[:], sig, publicKey)
}
