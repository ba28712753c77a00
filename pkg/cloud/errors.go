package cloud

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks fatal configuration problems. They are surfaced
	// to the caller and never retried locally.
	ErrConfiguration = errors.New("configuration error")

	// ErrBackendUnavailable marks a failed call against a remote backend.
	// Retrying is left to the caller.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrProfileNotFound is returned when a cloud profile is not configured.
	ErrProfileNotFound = fmt.Errorf("%w: cloud profile not found", ErrConfiguration)

	// ErrUnknownProviderType is returned when a profile names a provider type
	// that has no registered factory.
	ErrUnknownProviderType = fmt.Errorf("%w: unknown provider type", ErrConfiguration)

	// ErrInvalidNodeID is returned when a node id does not match the format a
	// provider expects.
	ErrInvalidNodeID = fmt.Errorf("%w: invalid node id", ErrConfiguration)
)

// backendError wraps err from a remote call so it matches ErrBackendUnavailable
// while keeping the original error reachable through errors.As.
func backendError(op, id string, err error) error {
	return fmt.Errorf("%s %s: %w", op, id, errors.Join(ErrBackendUnavailable, err))
}

// splitNodeID splits a "<location>/<native-id>" node id. The location may
// itself contain separators; the native id is always the last element.
func splitNodeID(id string) (location, native string) {
	i := strings.LastIndex(id, "/")
	if i < 0 {
		return "", id
	}
	return id[:i], id[i+1:]
}
