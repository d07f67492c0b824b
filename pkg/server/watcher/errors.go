// Package watcher recomputes premiums on a fixed interval so notifiers see
// fresh values without client traffic.
package watcher

import "errors"

// Watcher errors.
var (
	ErrNoSymbols       = errors.New("watcher has no symbols")
	ErrInvalidInterval = errors.New("watcher interval must be positive")
)
