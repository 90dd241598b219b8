package awsprovider

import (
	"context"

	"github.com/wolfeidau/key-cache/remote"
)

// SecretsManagerClient is the interface for AWS Secrets Manager operations.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, secretID string) (string, error)
}

// SecretsManager returns a provider that resolves key names as secret IDs.
func SecretsManager(client SecretsManagerClient, opts ...Option) remote.Provider {
	o := newOptions(opts)
	return remote.ProviderFunc(func(ctx context.Context, name string) (string, error) {
		ref := o.prefix + name
		val, err := client.GetSecretValue(ctx, ref)
		if err != nil {
			return "", o.wrap("SecretsManager GetSecretValue", ref, err)
		}
		return val, nil
	})
}
