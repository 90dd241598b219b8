package keycache

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/key-cache/remote"
)

var (
	// ErrRemoteUnavailable is matched by every GetKey failure: the remote fetch
	// failed and no cached value, fresh or stale, was available.
	ErrRemoteUnavailable = errors.New("keycache: remote unavailable and no cached value")
)

// RemoteUnavailableError is the error GetKey returns when it cannot produce a
// value. It matches ErrRemoteUnavailable and the underlying fetch error with
// errors.Is, and keeps the failure kind for diagnostics.
type RemoteUnavailableError struct {
	Name string
	Kind remote.Kind
	Err  error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("keycache: %s: remote unavailable (%s): %v", e.Name, e.Kind, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() []error {
	return []error{ErrRemoteUnavailable, e.Err}
}
