// Package tournament computes the maximum of a bid vector and the index of
// its first occurrence with a fixed sequence of oblivious operations. The
// same reduction runs natively over uint64 values and inside a gnark
// circuit, so the comparison and selection pattern never depends on the
// values being compared.
package tournament

// Evaluator provides the primitives the reduction is built from. T is the
// value domain: uint64 for native evaluation, frontend.Variable in-circuit.
type Evaluator[T any] interface {
	// GreaterOrEqual returns 1 when a >= b and 0 otherwise.
	GreaterOrEqual(a, b T) T
	// Select returns a when sel is 1 and b when sel is 0.
	Select(sel, a, b T) T
	// Constant lifts a public value into the domain.
	Constant(v uint64) T
}

// Tournament reduces bids pairwise, round by round, keeping at each match
// the larger value and the index it came from. The left entrant wins ties,
// and since left entrants always carry lower indices the reported index is
// the first occurrence of the maximum. A trailing odd entrant advances to
// the next round unopposed.
//
// The number of comparisons and selections depends only on len(bids).
func Tournament[T any](ev Evaluator[T], bids []T) (index, value T) {
	if len(bids) == 0 {
		return ev.Constant(0), ev.Constant(0)
	}
	values := make([]T, len(bids))
	copy(values, bids)
	indexes := make([]T, len(bids))
	for i := range bids {
		indexes[i] = ev.Constant(uint64(i))
	}
	for len(values) > 1 {
		n := (len(values) + 1) / 2
		nextValues := make([]T, n)
		nextIndexes := make([]T, n)
		for j := 0; j+1 < len(values); j += 2 {
			ge := ev.GreaterOrEqual(values[j], values[j+1])
			nextValues[j/2] = ev.Select(ge, values[j], values[j+1])
			nextIndexes[j/2] = ev.Select(ge, indexes[j], indexes[j+1])
		}
		if len(values)%2 == 1 {
			nextValues[n-1] = values[len(values)-1]
			nextIndexes[n-1] = indexes[len(indexes)-1]
		}
		values, indexes = nextValues, nextIndexes
	}
	return indexes[0], values[0]
}

// Comparisons returns the number of matches Tournament plays for n bids.
func Comparisons(n int) int {
	if n <= 1 {
		return 0
	}
	return n - 1
}
