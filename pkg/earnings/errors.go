package earnings

import "errors"

// Domain-level error values returned by the calculator.
var (
	ErrNonMonotonicDuration = errors.New("non-monotonic duration")
	ErrInvalidPolicy        = errors.New("invalid reward policy")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidLevel         = errors.New("invalid level")
)
