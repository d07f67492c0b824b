// Package aggregator fans a quote request out to price sources concurrently
// and merges the survivors into one ordered price set.
package aggregator

import "errors"

var (
	// ErrUnknownSource indicates a named source is not in the registry.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidSymbol indicates an empty or malformed symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrSourcePanic wraps a recovered panic from a source call.
	ErrSourcePanic = errors.New("source panicked")
	// ErrInvalidQuote indicates a source returned an unusable quote.
	ErrInvalidQuote = errors.New("invalid quote")
)
