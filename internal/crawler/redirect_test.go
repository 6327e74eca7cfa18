package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedirectCheckContext(t *testing.T) {
	t.Parallel()

	require.Nil(t, RedirectCheckFrom(context.Background()))

	var seen NormalizedURL
	ctx := WithRedirectCheck(context.Background(), func(to NormalizedURL) error {
		seen = to
		return ErrRedirectRefused
	})
	check := RedirectCheckFrom(ctx)
	require.NotNil(t, check)
	require.ErrorIs(t, check("http://example.com/next"), ErrRedirectRefused)
	require.Equal(t, NormalizedURL("http://example.com/next"), seen)
}
