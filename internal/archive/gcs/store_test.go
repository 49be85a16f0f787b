package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	buf      bytes.Buffer
	closed   bool
	writeErr error
	closeErr error
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func factoryFor(w *fakeWriter, gotBucket, gotObject *string) objectWriterFactory {
	return func(_ context.Context, bucket, object string) io.WriteCloser {
		*gotBucket, *gotObject = bucket, object
		return w
	}
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var bucket, object string
	w := &fakeWriter{}
	s, err := newStore(Config{Bucket: "recipes-archive"}, factoryFor(w, &bucket, &object))
	require.NoError(t, err)

	uri, err := s.PutObject(context.Background(), "pages/run/01-soup.html", "text/html", strings.NewReader("<html>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://recipes-archive/pages/run/01-soup.html", uri)
	assert.Equal(t, "recipes-archive", bucket)
	assert.Equal(t, "pages/run/01-soup.html", object)
	assert.Equal(t, "<html>", w.buf.String())
	assert.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	var bucket, object string
	w := &fakeWriter{writeErr: errors.New("boom")}
	s, err := newStore(Config{Bucket: "b"}, factoryFor(w, &bucket, &object))
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "p", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "copy object")
	assert.True(t, w.closed)

	w = &fakeWriter{closeErr: errors.New("finalize failed")}
	s, err = newStore(Config{Bucket: "b"}, factoryFor(w, &bucket, &object))
	require.NoError(t, err)
	_, err = s.PutObject(context.Background(), "p", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "close writer")

	_, err = s.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = newStore(Config{}, nil)
	require.Error(t, err)
}
