// Package tx defines the wallet's transaction wire model.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// CurrentVersion is the transaction version produced by the builder.
const CurrentVersion = 1

// Transaction is a signed wallet transaction ready for broadcast.
type Transaction struct {
	Version    uint32   `json:"version"`
	Inputs     []Input  `json:"inputs"`
	Outputs    []Output `json:"outputs"`
	UnlockTime uint64   `json:"unlock_time"`
	Extra      []byte   `json:"extra,omitempty"`
	// TxPubKey is the public half of the per-transaction secret key.
	TxPubKey []byte `json:"tx_pubkey,omitempty"`
}

// Input spends a previously received output.
type Input struct {
	PrevOut types.OutputRef `json:"prevout"`
	Amount  uint64          `json:"amount"`
	// Mixin is the number of decoys requested for this input.
	Mixin     uint32 `json:"mixin"`
	Signature []byte `json:"signature"`
	PubKey    []byte `json:"pubkey"`
}

type inputJSON struct {
	PrevOut   types.OutputRef `json:"prevout"`
	Amount    uint64          `json:"amount"`
	Mixin     uint32          `json:"mixin"`
	Signature *string         `json:"signature"`
	PubKey    *string         `json:"pubkey"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut, Amount: in.Amount, Mixin: in.Mixin}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut, in.Amount, in.Mixin = j.PrevOut, j.Amount, j.Mixin
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// Output pays Amount to Address. A non-zero Term makes it a deposit output
// locked for Term blocks.
type Output struct {
	Amount  uint64        `json:"amount"`
	Address types.Address `json:"address"`
	Term    uint32        `json:"term,omitempty"`
}

// IsDeposit reports whether the output locks a deposit.
func (o Output) IsDeposit() bool {
	return o.Term > 0
}

// Hash computes the transaction ID (BLAKE3 of the signing bytes).
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: version(4) | in_count(4) | [txhash(32) index(4) amount(8) mixin(4)]... |
// out_count(4) | [amount(8) address(20) term(4)]... | unlock(8) | extra_len(4) extra |
// txpub_len(4) txpub
func (tx *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 32+48*len(tx.Inputs)+32*len(tx.Outputs)+len(tx.Extra)+len(tx.TxPubKey))

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxHash[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		buf = binary.LittleEndian.AppendUint64(buf, in.Amount)
		buf = binary.LittleEndian.AppendUint32(buf, in.Mixin)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
		buf = append(buf, out.Address[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, out.Term)
	}

	buf = binary.LittleEndian.AppendUint64(buf, tx.UnlockTime)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Extra)))
	buf = append(buf, tx.Extra...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.TxPubKey)))
	buf = append(buf, tx.TxPubKey...)

	return buf
}

// TotalInputValue returns the sum of all input amounts.
func (tx *Transaction) TotalInputValue() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		if total > math.MaxUint64-in.Amount {
			return 0, fmt.Errorf("input value overflow")
		}
		total += in.Amount
	}
	return total, nil
}

// TotalOutputValue returns the sum of all output values.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// Fee returns inputs minus outputs.
func (tx *Transaction) Fee() (uint64, error) {
	in, err := tx.TotalInputValue()
	if err != nil {
		return 0, err
	}
	out, err := tx.TotalOutputValue()
	if err != nil {
		return 0, err
	}
	if out > in {
		return 0, fmt.Errorf("outputs %d exceed inputs %d", out, in)
	}
	return in - out, nil
}

// Encode returns the broadcast blob.
func (tx *Transaction) Encode() ([]byte, error) {
	return json.Marshal(tx)
}

// Decode parses a blob produced by Encode.
func Decode(blob []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(blob, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}
