// Package premium computes the gap between domestic and converted foreign
// prices of one coin (the "kimchi premium").
package premium

import "errors"

var (
	// ErrInsufficientData means no premium could be computed from the
	// current answers. It is not a zero premium.
	ErrInsufficientData = errors.New("insufficient data for premium")
	// ErrNoForeignReference is returned by New when no reference source is configured.
	ErrNoForeignReference = errors.New("foreign reference source not configured")
)
