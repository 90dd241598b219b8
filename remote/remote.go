// Package remote defines the upstream lookup a key cache fetches secrets from,
// and the error taxonomy the cache uses to describe why a lookup failed.
package remote

import "context"

// Provider resolves a key name to its current secret value.
type Provider interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, name string) (string, error)

// Fetch calls f(ctx, name).
func (f ProviderFunc) Fetch(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}
