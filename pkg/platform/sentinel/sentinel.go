// Package sentinel holds infrastructure facts returned by stores, caches and
// outbound clients. Services translate them into domain errors at their
// boundary; handlers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound: the entity (group, summary, user email) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable: a dependency could not be reached or its breaker is open.
	ErrUnavailable = errors.New("unavailable")
)
