package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/illmade-knight/go-resourcesync/pkg/gcsobject"
	"github.com/rs/zerolog"
)

const contentType = "application/gzip"

// UploaderConfig names where archived events are written.
type UploaderConfig struct {
	BucketName   string
	ObjectPrefix string
}

// BatchKey groups events by the UTC day they occurred, e.g. "2026/10/19".
func BatchKey(event events.MutationEvent) string {
	t := event.OccurredAt.UTC()
	return fmt.Sprintf("%d/%02d/%02d", t.Year(), t.Month(), t.Day())
}

// GCSUploader writes each day's events of a batch to one gzipped JSON-lines
// object under <prefix>/<yyyy>/<mm>/<dd>/.
type GCSUploader struct {
	client gcsobject.Client
	cfg    UploaderConfig
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewGCSUploader(client gcsobject.Client, cfg UploaderConfig, logger zerolog.Logger) (*GCSUploader, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSUploader{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "ArchiveUploader").Logger(),
	}, nil
}

// UploadBatch uploads the groups of a batch in parallel and returns every
// group's failure joined.
func (u *GCSUploader) UploadBatch(ctx context.Context, batch []events.MutationEvent) error {
	if len(batch) == 0 {
		return nil
	}
	groups := make(map[string][]events.MutationEvent)
	for _, event := range batch {
		key := BatchKey(event)
		groups[key] = append(groups[key], event)
	}

	var mu sync.Mutex
	var errs []error
	var uploads sync.WaitGroup
	for key, group := range groups {
		uploads.Add(1)
		u.wg.Add(1)
		go func() {
			defer uploads.Done()
			defer u.wg.Done()
			if err := u.uploadGroup(ctx, key, group); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	uploads.Wait()
	return errors.Join(errs...)
}

func (u *GCSUploader) uploadGroup(ctx context.Context, key string, group []events.MutationEvent) error {
	objectName := path.Join(u.cfg.ObjectPrefix, key, uuid.NewString()+".jsonl.gz")
	w := u.client.Bucket(u.cfg.BucketName).Object(objectName).NewWriter(ctx, contentType)
	pr, pw := io.Pipe()

	go func() {
		var err error
		defer func() { _ = pw.CloseWithError(err) }()
		gz := gzip.NewWriter(pw)
		enc := json.NewEncoder(gz)
		for _, event := range group {
			if err = enc.Encode(event); err != nil {
				err = fmt.Errorf("json encoding failed for %s: %w", objectName, err)
				return
			}
		}
		err = gz.Close()
	}()

	written, copyErr := io.Copy(w, pr)
	closeErr := w.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to stream events to %s: %w", objectName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", objectName, closeErr)
	}

	u.logger.Info().Str("object_name", objectName).Int("events", len(group)).Int64("bytes_written", written).Msg("Archived mutation events.")
	return nil
}

// Close waits for uploads still in progress.
func (u *GCSUploader) Close() error {
	u.wg.Wait()
	return nil
}
