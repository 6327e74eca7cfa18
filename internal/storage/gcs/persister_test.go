package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func newOfflineClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint("http://127.0.0.1:1/storage/v1/"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "pages"})
	require.ErrorIs(t, err, crawler.ErrInvalidConfig)

	_, err = New(newOfflineClient(t), Config{Bucket: "  "})
	require.ErrorIs(t, err, crawler.ErrInvalidConfig)
}

func TestPersister_ObjectName(t *testing.T) {
	t.Parallel()

	u := crawler.NormalizedURL("http://example.com/a/b")

	p, err := New(newOfflineClient(t), Config{Bucket: "pages", Prefix: "/crawls/run-1/"})
	require.NoError(t, err)
	require.Equal(t, "crawls/run-1/"+crawler.SafeName(u), p.ObjectName(u))

	bare, err := New(newOfflineClient(t), Config{Bucket: "pages"})
	require.NoError(t, err)
	require.Equal(t, crawler.SafeName(u), bare.ObjectName(u))
}

func TestPersister_SaveUnreachableEndpoint(t *testing.T) {
	t.Parallel()

	p, err := New(newOfflineClient(t), Config{Bucket: "pages"})
	require.NoError(t, err)

	_, err = p.Save(context.Background(), "http://example.com/", []byte("<html></html>"))
	require.ErrorIs(t, err, crawler.ErrStorage)
}
