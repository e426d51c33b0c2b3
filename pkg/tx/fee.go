package tx

// EstimateSize returns the approximate serialized size of a transaction with
// the given shape. Each decoy adds a ring member reference to its input.
//
//	version(4) + counts(8) + unlock(8) + extra(4+n) + txpub(4+33)
//	input:  ref(36) + amount(8) + mixin(4) + sig(64) + pubkey(33) + decoys(36*mixin)
//	output: amount(8) + address(20) + term(4)
func EstimateSize(numInputs, numOutputs int, mixin uint32, extraLen int) uint64 {
	const overhead = 4 + 4 + 4 + 8 + 4 + 4 + 33
	const perInput = 36 + 8 + 4 + 64 + 33
	const perDecoy = 36
	const perOutput = 8 + 20 + 4

	in := uint64(perInput+perDecoy*int(mixin)) * uint64(numInputs)
	return uint64(overhead+extraLen) + in + uint64(perOutput*numOutputs)
}

// RequiredFee returns the minimum fee for a transaction: the flat network
// minimum plus perByte for every byte above freeSize.
func RequiredFee(size, freeSize, minFee, perByte uint64) uint64 {
	if size <= freeSize {
		return minFee
	}
	return minFee + (size-freeSize)*perByte
}
