package tx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Extra field tags.
const (
	ExtraTagPadding = 0x00
	ExtraTagNonce   = 0x02
	ExtraTagMessage = 0x04

	// NoncePaymentID prefixes a payment id inside a nonce field.
	NoncePaymentID = 0x00
	// MaxNonceSize bounds a single nonce field.
	MaxNonceSize = 255
)

// ErrMalformedExtra is returned when the extra field cannot be parsed.
var ErrMalformedExtra = errors.New("malformed extra field")

// ExtraFields is the decoded content of a transaction extra field.
type ExtraFields struct {
	PaymentID    types.Hash
	HasPaymentID bool
	Messages     []string
	Nonces       [][]byte
}

// AppendPaymentID appends a payment id nonce to extra.
func AppendPaymentID(extra []byte, id types.Hash) []byte {
	nonce := make([]byte, 0, 1+types.HashSize)
	nonce = append(nonce, NoncePaymentID)
	nonce = append(nonce, id[:]...)
	return AppendNonce(extra, nonce)
}

// AppendNonce appends an arbitrary nonce field to extra.
func AppendNonce(extra, nonce []byte) []byte {
	extra = append(extra, ExtraTagNonce, byte(len(nonce)))
	return append(extra, nonce...)
}

// AppendMessage appends a plaintext message field to extra.
func AppendMessage(extra []byte, msg string) []byte {
	extra = append(extra, ExtraTagMessage)
	extra = binary.AppendUvarint(extra, uint64(len(msg)))
	return append(extra, msg...)
}

// ParseExtra decodes every field of an extra blob.
func ParseExtra(extra []byte) (ExtraFields, error) {
	var f ExtraFields
	for i := 0; i < len(extra); {
		tag := extra[i]
		i++
		switch tag {
		case ExtraTagPadding:
			// Padding runs to the end and must be all zeros.
			for ; i < len(extra); i++ {
				if extra[i] != 0 {
					return f, fmt.Errorf("%w: non-zero padding", ErrMalformedExtra)
				}
			}
		case ExtraTagNonce:
			if i >= len(extra) {
				return f, fmt.Errorf("%w: truncated nonce", ErrMalformedExtra)
			}
			n := int(extra[i])
			i++
			if i+n > len(extra) {
				return f, fmt.Errorf("%w: nonce length %d", ErrMalformedExtra, n)
			}
			nonce := extra[i : i+n]
			i += n
			f.Nonces = append(f.Nonces, nonce)
			if n == 1+types.HashSize && nonce[0] == NoncePaymentID && !f.HasPaymentID {
				copy(f.PaymentID[:], nonce[1:])
				f.HasPaymentID = true
			}
		case ExtraTagMessage:
			n, read := binary.Uvarint(extra[i:])
			if read <= 0 || uint64(len(extra)-i-read) < n {
				return f, fmt.Errorf("%w: message length", ErrMalformedExtra)
			}
			i += read
			f.Messages = append(f.Messages, string(extra[i:i+int(n)]))
			i += int(n)
		default:
			return f, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformedExtra, tag)
		}
	}
	return f, nil
}

// PaymentIDFromExtra returns the payment id carried in extra, if any.
func PaymentIDFromExtra(extra []byte) (types.Hash, bool) {
	f, err := ParseExtra(extra)
	if err != nil {
		return types.Hash{}, false
	}
	return f.PaymentID, f.HasPaymentID
}
