package allocation

import "errors"

// Recoverable allocator failures: drivers keep the prior state (or record NaN)
var (
	ErrOptimization     = errors.New("optimization failed")
	ErrInvalidInput     = errors.New("invalid allocator input")
	ErrUnknownAllocator = errors.New("unknown allocator")
)
