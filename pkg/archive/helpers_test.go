package archive_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/illmade-knight/go-resourcesync/pkg/gcsobject"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	bytes.Buffer
	contentType string
	closeErr    error
	closed      bool
}

func (m *mockWriter) Close() error {
	m.closed = true
	return m.closeErr
}

// mockGCS records every object written to any bucket.
type mockGCS struct {
	mu       sync.Mutex
	objects  map[string]*mockWriter
	buckets  []string
	closeErr error
}

func newMockGCS() *mockGCS {
	return &mockGCS{objects: make(map[string]*mockWriter)}
}

func (m *mockGCS) Bucket(name string) gcsobject.BucketHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = append(m.buckets, name)
	return &mockBucket{gcs: m}
}

type mockBucket struct{ gcs *mockGCS }

func (b *mockBucket) Object(name string) gcsobject.ObjectHandle {
	return &mockObject{gcs: b.gcs, name: name}
}

type mockObject struct {
	gcs  *mockGCS
	name string
}

func (o *mockObject) NewReader(context.Context) (io.ReadCloser, error) {
	return nil, errors.New("archive objects are write-only in tests")
}

func (o *mockObject) NewWriter(_ context.Context, contentType string) io.WriteCloser {
	o.gcs.mu.Lock()
	defer o.gcs.mu.Unlock()
	w := &mockWriter{closeErr: o.gcs.closeErr, contentType: contentType}
	o.gcs.objects[o.name] = w
	return w
}

func (m *mockGCS) snapshot() map[string]*mockWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]*mockWriter, len(m.objects))
	for k, v := range m.objects {
		cp[k] = v
	}
	return cp
}

func decodeObject(t *testing.T, w *mockWriter) []events.MutationEvent {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(w.Bytes()))
	require.NoError(t, err)
	dec := json.NewDecoder(gz)
	var out []events.MutationEvent
	for dec.More() {
		var e events.MutationEvent
		require.NoError(t, dec.Decode(&e))
		out = append(out, e)
	}
	return out
}

// mockUploader captures batches for publisher tests.
type mockUploader struct {
	mu      sync.Mutex
	batches [][]events.MutationEvent
	err     error
	closed  bool
}

func (m *mockUploader) UploadBatch(_ context.Context, batch []events.MutationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]events.MutationEvent{}, batch...)
	m.batches = append(m.batches, cp)
	return m.err
}

func (m *mockUploader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockUploader) count() (batches, events int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		events += len(b)
	}
	return len(m.batches), events
}

var errUpload = errors.New("bucket unavailable")
