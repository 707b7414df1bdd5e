package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPattern = errors.New("unknown movement pattern")

	// Review inputs: the gateway refuses transitions with empty
	// human-supplied content.
	ErrEmptyPublished = errors.New("approval requires a published analysis")
	ErrEmptyReason    = errors.New("rejection requires a reason")
	ErrEmptyNotes     = errors.New("revision request requires notes")

	ErrNotOwner = errors.New("analysis belongs to another user")
)

// GatingDeniedError reports that a submission was refused before any
// record or debit was made. Shortfall is how many points the user is
// missing.
type GatingDeniedError struct {
	Cost      int
	Available int
}

func (e *GatingDeniedError) Error() string {
	return fmt.Sprintf("insufficient fitness points for video analysis: need %d, have %d", e.Cost, e.Available)
}

func (e *GatingDeniedError) Shortfall() int {
	return e.Cost - e.Available
}
