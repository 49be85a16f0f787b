// Package gcs archives pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/recipe-ingest/internal/archive"
)

// Config names the destination bucket.
type Config struct {
	Bucket string
}

type objectWriterFactory func(ctx context.Context, bucket, object string) io.WriteCloser

// Store uploads objects to one bucket.
type Store struct {
	bucket    string
	newWriter objectWriterFactory
}

var _ archive.Archive = (*Store)(nil)

// New builds a Store over client.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newStore(cfg, func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = archive.ContentTypeHTML
		return w
	})
}

func newStore(cfg Config, factory objectWriterFactory) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("archive bucket name is required")
	}
	return &Store{bucket: cfg.Bucket, newWriter: factory}, nil
}

// PutObject uploads r and returns a gs:// URI.
func (s *Store) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", fmt.Errorf("object path is required")
	}
	w := s.newWriter(ctx, s.bucket, objectPath)
	if sw, ok := w.(*storage.Writer); ok && contentType != "" {
		sw.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectPath), nil
}
