// Package httpprovider fetches keys from an HTTP key service speaking
// GET {base}/v1/keys/{name}. A key-cache server exposes the same route, so
// instances can be chained.
package httpprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfeidau/key-cache/remote"
	"github.com/wolfeidau/key-cache/telemetry"
)

const (
	// DefaultTimeout is the default timeout for upstream requests.
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps how much of an upstream response is read.
	maxBodySize = 1 << 20
)

// KeyResponse is the JSON body returned for a key lookup.
type KeyResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Provider fetches keys from an upstream key service.
type Provider struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithBearerToken sets the bearer token for upstream authentication.
func WithBearerToken(token string) Option {
	return func(p *Provider) {
		p.token = token
	}
}

// New creates a provider for the service at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: telemetry.NewInstrumentedTransport(nil, "http"),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch implements remote.Provider.
func (p *Provider) Fetch(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s/v1/keys/%s", p.baseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("performing request: %w", ctx.Err())
		}
		return "", fmt.Errorf("performing request: %w: %w", remote.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxBodySize)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(body)
		return "", remote.NewStatusError(resp.StatusCode, string(msg))
	}

	var kr KeyResponse
	if err := json.NewDecoder(body).Decode(&kr); err != nil {
		return "", fmt.Errorf("decoding response for %q: %w", name, err)
	}
	if kr.Value == "" {
		return "", fmt.Errorf("%q: empty value: %w", name, remote.ErrNotFound)
	}
	return kr.Value, nil
}

var _ remote.Provider = (*Provider)(nil)
