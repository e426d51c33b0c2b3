package types

import "fmt"

// OutputRef references a specific output of a transaction.
type OutputRef struct {
	TxHash Hash   `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

// IsZero returns true if the reference has a zero hash and zero index.
func (o OutputRef) IsZero() bool {
	return o.TxHash.IsZero() && o.Index == 0
}

// String returns "txhash:index" in hex.
func (o OutputRef) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash.String(), o.Index)
}

// Less orders references by hash, then index.
func (o OutputRef) Less(p OutputRef) bool {
	if o.TxHash != p.TxHash {
		return o.TxHash.Less(p.TxHash)
	}
	return o.Index < p.Index
}
