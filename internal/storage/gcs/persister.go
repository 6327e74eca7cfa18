// Package gcs saves crawled pages as objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Config captures the bucket and optional object prefix.
type Config struct {
	Bucket string `mapstructure:"gcs_bucket"`
	Prefix string `mapstructure:"prefix"`
}

// Persister uploads page bodies to a configured GCS bucket.
type Persister struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed persister around an existing client.
func New(client *storage.Client, cfg Config) (*Persister, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: storage client is required", crawler.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: bucket name is required", crawler.ErrInvalidConfig)
	}
	return &Persister{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Open dials GCS with Application Default Credentials and checks that the
// bucket is reachable before any page is fetched.
func Open(ctx context.Context, cfg Config) (*Persister, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %q: %w", cfg.Bucket, err)
	}
	p, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return p, nil
}

// Save uploads body to the object named after u and returns a gs:// URI.
func (p *Persister) Save(ctx context.Context, u crawler.NormalizedURL, body []byte) (string, error) {
	name := p.ObjectName(u)
	writer := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = http.DetectContentType(body)
	writer.Metadata = map[string]string{"source_url": u.String()}
	if _, err := writer.Write(body); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("%w: write object %s: %w (close writer: %v)", crawler.ErrStorage, name, err, closeErr)
		}
		return "", fmt.Errorf("%w: write object %s: %w", crawler.ErrStorage, name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: close writer for %s: %w", crawler.ErrStorage, name, err)
	}
	return fmt.Sprintf("gs://%s/%s", p.bucket, name), nil
}

// ObjectName returns the object key for u under the configured prefix.
func (p *Persister) ObjectName(u crawler.NormalizedURL) string {
	return path.Join(p.prefix, crawler.SafeName(u))
}

// Close releases the underlying client.
func (p *Persister) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
