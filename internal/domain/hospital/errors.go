package hospital

import "errors"

var (
	// ErrSourceUnavailable means the live hospital data source could not be
	// reached. Callers with a fallback path (cached snapshots, the static
	// candidate set) absorb it; it surfaces only when no fallback has data.
	ErrSourceUnavailable = errors.New("hospital data source unavailable")

	// ErrNotFound means the requested hospital or snapshot does not exist at
	// the source. It is never masked by fallbacks.
	ErrNotFound = errors.New("hospital not found")

	// ErrNoCandidates means no hospital satisfies the routing constraints
	// even after every fallback was tried.
	ErrNoCandidates = errors.New("no candidate hospitals")
)
