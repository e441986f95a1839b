package circuits

import "github.com/consensys/gnark/frontend"

// Uint64sToVariables converts native values into circuit assignments.
func Uint64sToVariables(values []uint64) []frontend.Variable {
	vars := make([]frontend.Variable, len(values))
	for i, v := range values {
		vars[i] = v
	}
	return vars
}
