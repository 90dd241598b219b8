package awsprovider

import (
	"context"

	"github.com/wolfeidau/key-cache/remote"
)

// SSMClient is the interface for AWS SSM Parameter Store operations.
type SSMClient interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// SSM returns a provider that resolves key names as SSM parameters.
func SSM(client SSMClient, opts ...Option) remote.Provider {
	o := newOptions(opts)
	return remote.ProviderFunc(func(ctx context.Context, name string) (string, error) {
		ref := o.prefix + name
		val, err := client.GetParameter(ctx, ref)
		if err != nil {
			return "", o.wrap("SSM GetParameter", ref, err)
		}
		return val, nil
	})
}
