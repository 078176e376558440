// Package gcsobject narrows *storage.Client to the object reads and writes
// this module performs, so callers can be tested without Cloud Storage.
package gcsobject

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// Client abstracts a *storage.Client.
type Client interface {
	Bucket(name string) BucketHandle
}

// BucketHandle abstracts a *storage.BucketHandle.
type BucketHandle interface {
	Object(name string) ObjectHandle
}

// ObjectHandle abstracts a *storage.ObjectHandle.
type ObjectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	// NewWriter returns a writer that commits the object on Close.
	NewWriter(ctx context.Context, contentType string) io.WriteCloser
}

type clientAdapter struct {
	client *storage.Client
}

// NewClientAdapter wraps a *storage.Client. A nil client yields nil.
func NewClientAdapter(client *storage.Client) Client {
	if client == nil {
		return nil
	}
	return &clientAdapter{client: client}
}

func (a *clientAdapter) Bucket(name string) BucketHandle {
	return &bucketHandleAdapter{handle: a.client.Bucket(name)}
}

type bucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *bucketHandleAdapter) Object(name string) ObjectHandle {
	return &objectHandleAdapter{handle: a.handle.Object(name)}
}

type objectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *objectHandleAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return a.handle.NewReader(ctx)
}

func (a *objectHandleAdapter) NewWriter(ctx context.Context, contentType string) io.WriteCloser {
	w := a.handle.NewWriter(ctx)
	w.ContentType = contentType
	return w
}
