package wallet

import (
	"bytes"
	"encoding/json"

	"github.com/Klingon-tech/klingnet-wallet/internal/builder"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
)

// ReserveOutput is one output backing a reserve proof.
type ReserveOutput struct {
	Ref    types.OutputRef `json:"ref"`
	Amount uint64          `json:"amount"`
}

// ReserveProof shows that the holder of an address spend key controls
// outputs worth at least the proven amount.
type ReserveProof struct {
	Address   types.Address   `json:"address"`
	SpendKey  []byte          `json:"spend_key"`
	ViewKey   []byte          `json:"view_key"`
	Message   string          `json:"message"`
	Outputs   []ReserveOutput `json:"outputs"`
	Signature string          `json:"signature"`
}

// Total returns the sum of the proven outputs.
func (p *ReserveProof) Total() uint64 {
	var total uint64
	for _, o := range p.Outputs {
		total += o.Amount
	}
	return total
}

// payload is the signed part of the proof.
func (p *ReserveProof) payload() ([]byte, error) {
	body := *p
	body.Signature = ""
	return json.Marshal(body)
}

// GetReserveProof proves that addr holds at least reserve in unspent
// outputs. The proof is signed with the address spend key and binds message.
func (w *Wallet) GetReserveProof(addr types.Address, reserve uint64, message string) (*ReserveProof, error) {
	if reserve == 0 {
		return nil, errors.Wrap(walleterr.ErrInvalidParameters, "reserve must be positive")
	}
	var proof *ReserveProof
	err := w.view(func(c *state.Components) error {
		key, err := c.Keys.SpendSecret(addr)
		if err != nil {
			return err
		}
		defer key.Zero()

		sel, err := builder.SelectOutputs(c.Outputs.Unspent(addr), reserve)
		if err != nil {
			return err
		}
		p := &ReserveProof{
			Address:  addr,
			SpendKey: key.PublicKey(),
			ViewKey:  c.Keys.ViewPublic(),
			Message:  message,
		}
		for _, o := range sel.Inputs {
			p.Outputs = append(p.Outputs, ReserveOutput{Ref: o.Ref, Amount: o.Amount})
		}
		payload, err := p.payload()
		if err != nil {
			return err
		}
		if p.Signature, err = crypto.EncodeProof(crypto.ReserveProofPrefix, key, payload); err != nil {
			return err
		}
		proof = p
		return nil
	})
	return proof, err
}

// VerifyReserveProof checks that p is signed by the owner of p.Address and
// returns the proven amount. It does not check that the outputs are still
// unspent.
func VerifyReserveProof(p *ReserveProof) (uint64, error) {
	if p == nil || len(p.Outputs) == 0 {
		return 0, errors.Wrap(walleterr.ErrInvalidParameters, "empty reserve proof")
	}
	if crypto.AddressFromKeys(p.SpendKey, p.ViewKey) != p.Address {
		return 0, errors.Wrap(walleterr.ErrInvalidParameters, "reserve proof keys do not match address")
	}
	payload, err := p.payload()
	if err != nil {
		return 0, err
	}
	if !crypto.VerifyProof(crypto.ReserveProofPrefix, p.Signature, payload, p.SpendKey) {
		return 0, errors.Wrap(walleterr.ErrInvalidParameters, "invalid reserve proof signature")
	}
	return p.Total(), nil
}

func txProofPayload(hash types.Hash, addr types.Address) []byte {
	var buf bytes.Buffer
	buf.Write(hash[:])
	buf.Write(addr[:])
	return buf.Bytes()
}

// GetTxProof proves that the transaction with hash paid addr by signing
// both with the transaction secret key.
func (w *Wallet) GetTxProof(hash types.Hash, addr types.Address, txKey []byte) (string, error) {
	if addr.IsZero() {
		return "", errors.Wrap(walleterr.ErrInvalidParameters, "empty address")
	}
	key, err := crypto.PrivateKeyFromBytes(txKey)
	if err != nil {
		return "", errors.Mark(err, walleterr.ErrInvalidParameters)
	}
	defer key.Zero()

	err = w.view(func(c *state.Components) error {
		_, err := c.Ledger.TransactionByHash(hash)
		return err
	})
	if err != nil {
		return "", err
	}
	return crypto.EncodeProof(crypto.TxProofPrefix, key, txProofPayload(hash, addr))
}

// CheckTxProof verifies a proof from GetTxProof against the transaction
// public key.
func CheckTxProof(hash types.Hash, addr types.Address, txPublicKey []byte, proof string) bool {
	return crypto.VerifyProof(crypto.TxProofPrefix, proof, txProofPayload(hash, addr), txPublicKey)
}
