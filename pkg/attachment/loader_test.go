package attachment_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/illmade-knight/go-resourcesync/pkg/attachment"
	"github.com/illmade-knight/go-resourcesync/pkg/gcsobject"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

// mockGCSClient serves objects from a map keyed by "bucket/object".
type mockGCSClient struct {
	objects map[string][]byte
}

func (m *mockGCSClient) Bucket(name string) gcsobject.BucketHandle {
	return &mockBucket{client: m, name: name}
}

type mockBucket struct {
	client *mockGCSClient
	name   string
}

func (b *mockBucket) Object(name string) gcsobject.ObjectHandle {
	return &mockObject{data: b.client.objects[b.name+"/"+name]}
}

type mockObject struct {
	data []byte
}

func (o *mockObject) NewReader(context.Context) (io.ReadCloser, error) {
	if o.data == nil {
		return nil, errors.New("object doesn't exist")
	}
	return io.NopCloser(strings.NewReader(string(o.data))), nil
}

func (o *mockObject) NewWriter(context.Context, string) io.WriteCloser {
	panic("the loader never writes objects")
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()
	gcs := &mockGCSClient{objects: map[string][]byte{"cellar/labels/rioja.png": pngBytes}}
	loader := attachment.NewLoader(nil, gcs, zerolog.Nop())

	t.Run("local and storage images", func(t *testing.T) {
		// Arrange
		local := writeFile(t, "dish.png", pngBytes)

		// Act
		files, err := loader.Load(ctx, local, "gs://cellar/labels/rioja.png")

		// Assert
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, attachment.FieldImages, files[0].Field)
		assert.Equal(t, "dish.png", files[0].Name)
		assert.Equal(t, "image/png", files[0].ContentType)
		assert.Equal(t, "rioja.png", files[1].Name)
		content, err := io.ReadAll(files[1].Content)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, content)
	})

	t.Run("rejects non-images", func(t *testing.T) {
		local := writeFile(t, "notes.txt", []byte("just some tasting notes"))
		_, err := loader.Load(ctx, local)
		assert.ErrorContains(t, err, "not an image")
	})

	t.Run("rejects oversized attachments", func(t *testing.T) {
		small := attachment.NewLoader(&attachment.Config{MaxBytes: 8}, nil, zerolog.Nop())
		local := writeFile(t, "dish.png", pngBytes)
		_, err := small.Load(ctx, local)
		assert.ErrorContains(t, err, "exceeds")
	})

	t.Run("storage errors", func(t *testing.T) {
		_, err := loader.Load(ctx, "gs://cellar")
		assert.ErrorContains(t, err, "malformed")

		_, err = loader.Load(ctx, "gs://cellar/missing.png")
		assert.ErrorContains(t, err, "failed to open")

		localOnly := attachment.NewLoader(nil, nil, zerolog.Nop())
		_, err = localOnly.Load(ctx, "gs://cellar/labels/rioja.png")
		assert.ErrorContains(t, err, "storage client")
	})

	t.Run("requires at least one ref", func(t *testing.T) {
		_, err := loader.Load(ctx)
		assert.Error(t, err)
	})
}

func TestMultipart(t *testing.T) {
	withPrompt := attachment.Multipart(nil, "which grape?")
	assert.Equal(t, map[string]string{attachment.FieldPrompt: "which grape?"}, withPrompt.Fields)

	withoutPrompt := attachment.Multipart(nil, "  ")
	assert.Nil(t, withoutPrompt.Fields)
}
