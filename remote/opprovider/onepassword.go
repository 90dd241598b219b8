// Package opprovider resolves key names with the 1Password CLI (`op read`).
package opprovider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"

	"github.com/wolfeidau/key-cache/remote"
)

// DefaultReference maps a key name to a secret reference.
const DefaultReference = "op://Private/{{ .Name }}/credential"

// Options configures the 1Password provider.
type Options struct {
	// Reference is a text/template producing the `op read` reference.
	// The key name is available as .Name.
	Reference string
	// Binary is the op executable, resolved on PATH when relative.
	Binary string
}

// OnePassword returns a provider that runs `op read <reference>`.
func OnePassword(opts Options) (remote.Provider, error) {
	if opts.Reference == "" {
		opts.Reference = DefaultReference
	}
	if opts.Binary == "" {
		opts.Binary = "op"
	}

	tmpl, err := template.New("reference").Option("missingkey=error").Parse(opts.Reference)
	if err != nil {
		return nil, fmt.Errorf("parsing reference template: %w", err)
	}

	return remote.ProviderFunc(func(ctx context.Context, name string) (string, error) {
		var ref strings.Builder
		if err := tmpl.Execute(&ref, struct{ Name string }{name}); err != nil {
			return "", fmt.Errorf("rendering reference for %q: %w", name, err)
		}

		cmd := exec.CommandContext(ctx, opts.Binary, "read", ref.String())

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return "", classify(ctx, ref.String(), strings.TrimSpace(stderr.String()), err)
		}

		return strings.TrimSpace(stdout.String()), nil
	}), nil
}

func classify(ctx context.Context, ref, stderr string, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("op read %q: %w", ref, ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("op read %q: %w: %w", ref, remote.ErrUnavailable, err)
	case strings.Contains(stderr, "isn't an item") || strings.Contains(stderr, "not found"):
		return fmt.Errorf("op read %q: %w: %s", ref, remote.ErrNotFound, stderr)
	default:
		return fmt.Errorf("op read %q: %s: %w", ref, stderr, err)
	}
}
