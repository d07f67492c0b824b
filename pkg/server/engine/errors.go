// Package engine is the read-only facade over price collection,
// comparison and premium computation.
package engine

import "errors"

// ErrNoData means no source answered, so there is nothing to compare.
var ErrNoData = errors.New("no price data available")
