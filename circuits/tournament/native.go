package tournament

import "math/bits"

// Native evaluates the reduction over plaintext uint64 values using branch
// free arithmetic. Selectors are always 0 or 1.
type Native struct{}

// GreaterOrEqual derives the selector from the borrow of a - b.
func (Native) GreaterOrEqual(a, b uint64) uint64 {
	_, borrow := bits.Sub64(a, b, 0)
	return borrow ^ 1
}

// Select masks instead of branching on sel.
func (Native) Select(sel, a, b uint64) uint64 {
	mask := -sel
	return b ^ ((a ^ b) & mask)
}

// Constant returns v.
func (Native) Constant(v uint64) uint64 {
	return v
}

// Max runs the tournament over plaintext bids and returns the winning index
// and value.
func Max(bids []uint64) (index, value uint64) {
	return Tournament[uint64](Native{}, bids)
}
