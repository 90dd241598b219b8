// Package awsprovider adapts AWS SSM Parameter Store and Secrets Manager
// lookups into remote.Provider. The AWS SDK clients are hidden behind small
// interfaces so callers pick their own SDK version and credentials chain.
package awsprovider

import (
	"fmt"
	"strings"

	"github.com/wolfeidau/key-cache/remote"
)

// NotFoundFunc reports whether a client error means the key does not exist.
type NotFoundFunc func(err error) bool

type options struct {
	prefix   string
	notFound NotFoundFunc
}

// Option configures an AWS provider.
type Option func(*options)

// WithPrefix prepends prefix to every key name, e.g. "/prod/api-keys/".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithNotFound overrides how client errors are recognised as "not found".
func WithNotFound(fn NotFoundFunc) Option {
	return func(o *options) {
		o.notFound = fn
	}
}

func newOptions(opts []Option) options {
	o := options{notFound: defaultNotFound}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// defaultNotFound matches the error codes the AWS APIs use for missing items.
func defaultNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ParameterNotFound") ||
		strings.Contains(msg, "ResourceNotFoundException")
}

func (o options) wrap(op, ref string, err error) error {
	if o.notFound(err) {
		return fmt.Errorf("%s %q: %w: %w", op, ref, remote.ErrNotFound, err)
	}
	return fmt.Errorf("%s %q: %w", op, ref, err)
}
