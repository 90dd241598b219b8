package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when no such key exists upstream.
	ErrNotFound = errors.New("remote: key not found")

	// ErrUnavailable is returned when the upstream could not be reached or
	// reported a transient failure.
	ErrUnavailable = errors.New("remote: unavailable")
)

// Kind classifies a fetch failure for diagnostics.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindUnavailable
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// KindOf classifies err. Network errors and deadlines count as unavailable.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	return KindOther
}

// StatusError carries the HTTP status an upstream answered with.
type StatusError struct {
	Status int
	Err    error
}

// NewStatusError builds a StatusError whose chain also carries the sentinel
// matching the status class, so KindOf works without inspecting Status.
func NewStatusError(status int, body string) *StatusError {
	var err error
	switch {
	case status == http.StatusNotFound:
		err = ErrNotFound
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		err = ErrUnavailable
	}
	body = strings.TrimSpace(body)
	if body != "" {
		if err != nil {
			err = fmt.Errorf("%w: %s", err, body)
		} else {
			err = errors.New(body)
		}
	}
	return &StatusError{Status: status, Err: err}
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Status)
	if e.Err == nil {
		return fmt.Sprintf("upstream returned %d %s", e.Status, text)
	}
	return fmt.Sprintf("upstream returned %d %s: %v", e.Status, text, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
