package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func TestPersister_SaveAndGet(t *testing.T) {
	t.Parallel()

	p := New()
	body := []byte("<html>hi</html>")
	uri, err := p.Save(context.Background(), "http://example.com/", body)
	require.NoError(t, err)
	require.Equal(t, "memory://"+crawler.SafeName("http://example.com/"), uri)

	body[0] = 'X'
	got, ok := p.Get("http://example.com/")
	require.True(t, ok)
	require.Equal(t, "<html>hi</html>", string(got))

	_, ok = p.Get("http://example.com/missing")
	require.False(t, ok)
}

func TestPersister_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := crawler.NormalizedURL(fmt.Sprintf("http://example.com/%02d", i))
			_, err := p.Save(context.Background(), u, []byte("x"))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, p.Len())
	urls := p.URLs()
	require.Equal(t, crawler.NormalizedURL("http://example.com/00"), urls[0])
	require.Equal(t, crawler.NormalizedURL("http://example.com/49"), urls[49])
}

func TestPersister_SaveCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Save(ctx, "http://example.com/", nil)
	require.ErrorIs(t, err, crawler.ErrStorage)
}
