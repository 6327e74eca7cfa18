package crawler

import (
	"context"
	"errors"
)

// ErrRedirectRefused marks a fetch that stopped at a redirect the crawl may
// not follow.
var ErrRedirectRefused = errors.New("redirect refused")

// RedirectCheck vets a redirect target before a Fetcher follows it. A non-nil
// error stops the fetch.
type RedirectCheck func(to NormalizedURL) error

type redirectCheckKey struct{}

// WithRedirectCheck returns a context carrying check for the fetch made with it.
func WithRedirectCheck(ctx context.Context, check RedirectCheck) context.Context {
	return context.WithValue(ctx, redirectCheckKey{}, check)
}

// RedirectCheckFrom returns the check stored in ctx, or nil.
func RedirectCheckFrom(ctx context.Context) RedirectCheck {
	check, _ := ctx.Value(redirectCheckKey{}).(RedirectCheck)
	return check
}
