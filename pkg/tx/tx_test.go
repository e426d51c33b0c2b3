package tx

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func testRef(b byte, idx uint32) types.OutputRef {
	return types.OutputRef{TxHash: types.Hash{b}, Index: idx}
}

func signedTx(t *testing.T) (*Transaction, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	owner := types.Address{0x01}
	ref := testRef(0xaa, 0)

	b := NewBuilder().
		AddInput(ref, 1000, 2).
		AddOutput(types.Address{0x02}, 400).
		AddOutput(owner, 590)
	err = b.SignMulti(
		map[types.Address]crypto.Signer{owner: key},
		map[types.OutputRef]types.Address{ref: owner},
	)
	if err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}
	return b.Build(), key
}

func TestTransaction_HashExcludesSignatures(t *testing.T) {
	tx, _ := signedTx(t)
	h1 := tx.Hash()
	tx.Inputs[0].Signature = bytes.Repeat([]byte{0x01}, 64)
	if tx.Hash() != h1 {
		t.Error("hash should not depend on signatures")
	}
	tx.Extra = AppendMessage(nil, "hi")
	if tx.Hash() == h1 {
		t.Error("hash should commit to extra")
	}
}

func TestTransaction_Fee(t *testing.T) {
	tx, _ := signedTx(t)
	fee, err := tx.Fee()
	if err != nil {
		t.Fatalf("Fee() error: %v", err)
	}
	if fee != 10 {
		t.Errorf("Fee() = %d, want 10", fee)
	}
}

func TestTransaction_ValidateAndVerify(t *testing.T) {
	tx, _ := signedTx(t)
	if err := tx.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		t.Fatalf("VerifySignatures() error: %v", err)
	}

	tx.Outputs[0].Amount++
	if err := tx.VerifySignatures(); !errors.Is(err, ErrInvalidSig) {
		t.Errorf("VerifySignatures() after tamper = %v, want ErrInvalidSig", err)
	}
}

func TestTransaction_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"no inputs", func(tx *Transaction) { tx.Inputs = nil }, ErrNoInputs},
		{"no outputs", func(tx *Transaction) { tx.Outputs = nil }, ErrNoOutputs},
		{"duplicate input", func(tx *Transaction) { tx.Inputs = append(tx.Inputs, tx.Inputs[0]) }, ErrDuplicateInput},
		{"zero output", func(tx *Transaction) { tx.Outputs[0].Amount = 0 }, ErrZeroOutput},
		{"missing sig", func(tx *Transaction) { tx.Inputs[0].Signature = nil }, ErrMissingSig},
		{"unbalanced", func(tx *Transaction) { tx.Outputs[0].Amount = 5000 }, ErrUnbalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, _ := signedTx(t)
			tt.mutate(tx)
			if err := tx.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransaction_EncodeDecode(t *testing.T) {
	tx, _ := signedTx(t)
	tx.Extra = AppendPaymentID(nil, types.Hash{0x42})
	blob, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Hash() != tx.Hash() {
		t.Error("decoded transaction hash differs")
	}
	if err := got.VerifySignatures(); err != nil {
		t.Errorf("decoded VerifySignatures() error: %v", err)
	}
}

func TestSignMulti_MissingSigner(t *testing.T) {
	b := NewBuilder().AddInput(testRef(1, 0), 10, 0).AddOutput(types.Address{0x02}, 5)
	err := b.SignMulti(map[types.Address]crypto.Signer{}, map[types.OutputRef]types.Address{testRef(1, 0): {0x01}})
	if err == nil {
		t.Error("SignMulti() should fail without a signer")
	}
}

func TestExtra_PaymentIDAndMessages(t *testing.T) {
	id := types.Hash{0xde, 0xad}
	extra := AppendPaymentID(nil, id)
	extra = AppendMessage(extra, "first")
	extra = AppendMessage(extra, "second")

	f, err := ParseExtra(extra)
	if err != nil {
		t.Fatalf("ParseExtra() error: %v", err)
	}
	if !f.HasPaymentID || f.PaymentID != id {
		t.Errorf("payment id = %x (%v), want %x", f.PaymentID, f.HasPaymentID, id)
	}
	if len(f.Messages) != 2 || f.Messages[0] != "first" || f.Messages[1] != "second" {
		t.Errorf("messages = %v", f.Messages)
	}

	got, ok := PaymentIDFromExtra(extra)
	if !ok || got != id {
		t.Errorf("PaymentIDFromExtra() = %x, %v", got, ok)
	}
}

func TestExtra_Malformed(t *testing.T) {
	tests := [][]byte{
		{ExtraTagNonce},
		{ExtraTagNonce, 5, 1},
		{ExtraTagMessage, 10, 'a'},
		{0x7f},
		{ExtraTagPadding, 0, 1},
	}
	for _, extra := range tests {
		if _, err := ParseExtra(extra); !errors.Is(err, ErrMalformedExtra) {
			t.Errorf("ParseExtra(%x) = %v, want ErrMalformedExtra", extra, err)
		}
	}
	if _, ok := PaymentIDFromExtra([]byte{0x7f}); ok {
		t.Error("PaymentIDFromExtra() on malformed extra should report false")
	}
}

func TestEstimateSize_GrowsWithMixin(t *testing.T) {
	base := EstimateSize(2, 2, 0, 0)
	mixed := EstimateSize(2, 2, 3, 0)
	if mixed != base+2*3*36 {
		t.Errorf("EstimateSize with mixin = %d, want %d", mixed, base+2*3*36)
	}
}

func TestRequiredFee(t *testing.T) {
	if got := RequiredFee(100, 200, 10, 1); got != 10 {
		t.Errorf("RequiredFee(small) = %d, want 10", got)
	}
	if got := RequiredFee(250, 200, 10, 2); got != 110 {
		t.Errorf("RequiredFee(large) = %d, want 110", got)
	}
}
