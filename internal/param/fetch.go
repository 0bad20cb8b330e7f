package param

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("neither value nor parameter name configured")

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
	FetchAll(context.Context, string) ([]string, error)
}

// Resolve prefers a literal value and falls back to fetching the named parameter.
func Resolve(ctx context.Context, f Fetcher, value, name string) (string, error) {
	if value != "" {
		return value, nil
	}
	if name == "" || f == nil {
		return "", ErrNotConfigured
	}
	return f.Fetch(ctx, name)
}

// ResolveAll is Resolve for lists.
func ResolveAll(ctx context.Context, f Fetcher, values []string, path string) ([]string, error) {
	if len(values) > 0 {
		return values, nil
	}
	if path == "" || f == nil {
		return nil, ErrNotConfigured
	}
	return f.FetchAll(ctx, path)
}
