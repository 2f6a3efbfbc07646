package attempt

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers map these to 404/403/400; anything else is a
// storage failure and surfaces as 500.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")

	ErrQuizInactive     = fmt.Errorf("%w: quiz is not active", ErrInvalidState)
	ErrQuizExpired      = fmt.Errorf("%w: expired", ErrInvalidState)
	ErrNoActiveAttempt  = fmt.Errorf("%w: no active quiz attempt", ErrInvalidState)
	ErrAlreadyAnswered  = fmt.Errorf("%w: question already answered", ErrInvalidState)
	ErrAlreadyCompleted = fmt.Errorf("%w: attempt already completed", ErrInvalidState)
	ErrInvalidOption    = fmt.Errorf("%w: selected options do not belong to this question", ErrValidation)
)

func notFound(what string) error { return fmt.Errorf("%w: %s", ErrNotFound, what) }
