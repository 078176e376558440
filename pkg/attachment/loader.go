// Package attachment loads the images sent with analyze requests from local
// paths or gs:// objects and turns them into multipart parts.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/illmade-knight/go-resourcesync/pkg/gcsobject"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
	"github.com/rs/zerolog"
)

const (
	// FieldImages is the multipart field the analyze endpoints read files from.
	FieldImages = "images"
	// FieldPrompt is the optional text field sent alongside the images.
	FieldPrompt = "prompt"
	// DefaultMaxBytes caps a single attachment.
	DefaultMaxBytes int64 = 10 << 20

	gcsScheme = "gs://"
)

// Config holds the Loader limits.
type Config struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// Loader reads image attachments. A nil GCS client limits it to local files.
type Loader struct {
	gcs      gcsobject.Client
	maxBytes int64
	logger   zerolog.Logger
}

func NewLoader(cfg *Config, gcs gcsobject.Client, logger zerolog.Logger) *Loader {
	maxBytes := DefaultMaxBytes
	if cfg != nil && cfg.MaxBytes > 0 {
		maxBytes = cfg.MaxBytes
	}
	return &Loader{
		gcs:      gcs,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "AttachmentLoader").Logger(),
	}
}

// Load reads every ref and returns one images part per ref. The content type
// is detected from the bytes; anything that is not an image is rejected.
func (l *Loader) Load(ctx context.Context, refs ...string) ([]transport.File, error) {
	if len(refs) == 0 {
		return nil, errors.New("at least one image is required")
	}
	files := make([]transport.File, 0, len(refs))
	for _, ref := range refs {
		data, name, err := l.read(ctx, ref)
		if err != nil {
			return nil, err
		}
		mtype := mimetype.Detect(data)
		if !strings.HasPrefix(mtype.String(), "image/") {
			return nil, fmt.Errorf("attachment %s is %s, not an image", ref, mtype.String())
		}
		l.logger.Debug().Str("ref", ref).Str("content_type", mtype.String()).Int("bytes", len(data)).Msg("Loaded attachment.")
		files = append(files, transport.File{
			Field:       FieldImages,
			Name:        name,
			ContentType: mtype.String(),
			Content:     bytes.NewReader(data),
		})
	}
	return files, nil
}

func (l *Loader) read(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, gcsScheme) {
		return l.readGCS(ctx, ref)
	}
	f, err := os.Open(ref)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open attachment %s: %w", ref, err)
	}
	defer f.Close()
	data, err := l.readLimited(f, ref)
	return data, filepath.Base(ref), err
}

func (l *Loader) readGCS(ctx context.Context, ref string) ([]byte, string, error) {
	if l.gcs == nil {
		return nil, "", fmt.Errorf("attachment %s needs a storage client", ref)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(ref, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return nil, "", fmt.Errorf("malformed storage reference %q", ref)
	}
	r, err := l.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", ref, err)
	}
	defer r.Close()
	data, err := l.readLimited(r, ref)
	return data, path.Base(object), err
}

func (l *Loader) readLimited(r io.Reader, ref string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %s: %w", ref, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("attachment %s exceeds %d bytes", ref, l.maxBytes)
	}
	return data, nil
}

// Multipart builds the analyze request body from files and an optional prompt.
func Multipart(files []transport.File, prompt string) *transport.Multipart {
	mp := &transport.Multipart{Files: files}
	if strings.TrimSpace(prompt) != "" {
		mp.Fields = map[string]string{FieldPrompt: prompt}
	}
	return mp
}
