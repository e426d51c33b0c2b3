package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: CurrentVersion},
	}
}

// AddInput adds an input spending ref.
func (b *Builder) AddInput(ref types.OutputRef, amount uint64, mixin uint32) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: ref, Amount: amount, Mixin: mixin})
	return b
}

// AddOutput adds a plain payment output.
func (b *Builder) AddOutput(addr types.Address, amount uint64) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Amount: amount, Address: addr})
	return b
}

// AddDepositOutput adds an output locked for term blocks.
func (b *Builder) AddDepositOutput(addr types.Address, amount uint64, term uint32) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Amount: amount, Address: addr, Term: term})
	return b
}

// SetUnlockTime sets the transaction unlock time.
func (b *Builder) SetUnlockTime(t uint64) *Builder {
	b.tx.UnlockTime = t
	return b
}

// SetExtra sets the raw extra field.
func (b *Builder) SetExtra(extra []byte) *Builder {
	b.tx.Extra = append([]byte(nil), extra...)
	return b
}

// SetTxPubKey sets the public half of the transaction key.
func (b *Builder) SetTxPubKey(pub []byte) *Builder {
	b.tx.TxPubKey = append([]byte(nil), pub...)
	return b
}

// SignMulti signs each input with the key that owns its output.
// refAddr maps each input's output to its owning address.
// signers maps each address to the signer that can spend from it.
func (b *Builder) SignMulti(
	signers map[types.Address]crypto.Signer,
	refAddr map[types.OutputRef]types.Address,
) error {
	hash := b.tx.Hash()

	// Same key always produces the same sig for the same hash.
	type sigPub struct {
		sig    []byte
		pubKey []byte
	}
	cache := make(map[types.Address]*sigPub)

	for i := range b.tx.Inputs {
		addr, ok := refAddr[b.tx.Inputs[i].PrevOut]
		if !ok {
			return fmt.Errorf("no address mapping for input %d", i)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}

		sp, cached := cache[addr]
		if !cached {
			sig, err := key.Sign(hash[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			sp = &sigPub{sig: sig, pubKey: key.PublicKey()}
			cache[addr] = sp
		}
		b.tx.Inputs[i].Signature = sp.sig
		b.tx.Inputs[i].PubKey = sp.pubKey
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; call Validate separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
