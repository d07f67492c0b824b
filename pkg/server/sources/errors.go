// Package sources provides price source interfaces and implementations.
package sources

import (
	"errors"
	"fmt"
)

var (
	// ErrSymbolNotFound indicates the source does not list the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrRateLimitExceeded indicates that a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrAPIError indicates the source answered with an application level error.
	ErrAPIError = errors.New("API error")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrRankingUnsupported indicates the source cannot rank its markets.
	ErrRankingUnsupported = errors.New("ranking not supported by source")
	// ErrSourceStopped indicates that the source has been stopped.
	ErrSourceStopped = errors.New("source stopped")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoPairsConfigured indicates that no pairs are configured.
	ErrNoPairsConfigured = errors.New("no pairs configured")
	// ErrInvalidSymbolFormat indicates that the symbol format is invalid.
	ErrInvalidSymbolFormat = errors.New("symbol must be an upper-case ticker")
	// ErrInvalidRegion indicates an unknown region name.
	ErrInvalidRegion = errors.New("region must be DOMESTIC or FOREIGN")
	// ErrUnknownSourceFactory indicates no factory is registered for a source key.
	ErrUnknownSourceFactory = errors.New("unknown source")
	// ErrDuplicateSource indicates two configured sources share a name.
	ErrDuplicateSource = errors.New("duplicate source name")
)

// SourceError is the only error shape that leaves an adapter. It names the
// source and operation and unwraps to one of the sentinel errors above (or
// to a transport error).
type SourceError struct {
	Source string
	Op     string
	Symbol string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Source, e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the source does not list the symbol.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSymbolNotFound)
}
