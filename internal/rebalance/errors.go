package rebalance

import (
	"errors"
	"fmt"
)

// ErrAllocationInfeasible signals that no non-negative leftover could be reached.
// Fatal: it indicates a violated invariant (e.g. fees ≥ 100%), never a bad allocator window.
var ErrAllocationInfeasible = errors.New("allocation infeasible")

// InfeasibleError carries the state that failed the post-repair check
type InfeasibleError struct {
	Fees     float64
	Leftover float64
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("%s: fees=%g leftover=%g", ErrAllocationInfeasible, e.Fees, e.Leftover)
}

// Unwrap lets errors.Is match ErrAllocationInfeasible
func (e *InfeasibleError) Unwrap() error {
	return ErrAllocationInfeasible
}
