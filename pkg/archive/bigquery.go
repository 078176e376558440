package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// BigQueryConfig names the table mutation rows are streamed into.
type BigQueryConfig struct {
	DatasetID string
	TableID   string
}

// MutationRow is the table layout of an archived mutation event.
type MutationRow struct {
	EventID     string    `bigquery:"event_id"`
	Origin      string    `bigquery:"origin"`
	UserID      string    `bigquery:"user_id"`
	Operation   string    `bigquery:"operation"`
	Collection  string    `bigquery:"collection"`
	TargetID    string    `bigquery:"target_id"`
	Invalidated []string  `bigquery:"invalidated"`
	ClearedAll  bool      `bigquery:"cleared_all"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
}

// NewMutationRow flattens an event into a row.
func NewMutationRow(event events.MutationEvent) *MutationRow {
	return &MutationRow{
		EventID:     event.ID,
		Origin:      event.Origin,
		UserID:      event.UserID,
		Operation:   event.Operation,
		Collection:  event.Collection,
		TargetID:    event.TargetID,
		Invalidated: event.Invalidated,
		ClearedAll:  event.ClearedAll,
		OccurredAt:  event.OccurredAt.UTC(),
	}
}

// RowInserter streams rows into a table. *bigquery.Inserter satisfies it.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryUploader streams each batch into a BigQuery table, one row per event.
type BigQueryUploader struct {
	inserter RowInserter
	logger   zerolog.Logger
}

// NewBigQueryUploader connects to the configured table, creating it from the
// MutationRow schema when it does not exist yet.
func NewBigQueryUploader(ctx context.Context, client *bigquery.Client, cfg BigQueryConfig, logger zerolog.Logger) (*BigQueryUploader, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg.DatasetID == "" || cfg.TableID == "" {
		return nil, errors.New("bigquery dataset and table are required")
	}
	logger = logger.With().Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()

	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := table.Metadata(ctx); err != nil {
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
			return nil, fmt.Errorf("failed to get bigquery table metadata: %w", err)
		}
		schema, err := bigquery.InferSchema(MutationRow{})
		if err != nil {
			return nil, fmt.Errorf("failed to infer mutation row schema: %w", err)
		}
		if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return nil, fmt.Errorf("failed to create bigquery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
		}
		logger.Info().Msg("Created mutation archive table.")
	}
	return NewBigQueryUploaderWithInserter(table.Inserter(), logger)
}

// NewBigQueryUploaderWithInserter builds an uploader around an existing inserter.
func NewBigQueryUploaderWithInserter(inserter RowInserter, logger zerolog.Logger) (*BigQueryUploader, error) {
	if inserter == nil {
		return nil, errors.New("row inserter cannot be nil")
	}
	return &BigQueryUploader{
		inserter: inserter,
		logger:   logger.With().Str("component", "BigQueryArchive").Logger(),
	}, nil
}

func (u *BigQueryUploader) UploadBatch(ctx context.Context, batch []events.MutationEvent) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]*MutationRow, len(batch))
	for i, event := range batch {
		rows[i] = NewMutationRow(event)
	}
	if err := u.inserter.Put(ctx, rows); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			for _, rowErr := range multi {
				log := u.logger.Error().Int("row_index", rowErr.RowIndex)
				if rowErr.RowIndex >= 0 && rowErr.RowIndex < len(rows) {
					log = log.Str("event_id", rows[rowErr.RowIndex].EventID)
				}
				log.Msgf("Row rejected: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("failed to insert %d mutation rows: %w", len(rows), err)
	}
	u.logger.Debug().Int("rows", len(rows)).Msg("Inserted mutation rows.")
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (u *BigQueryUploader) Close() error {
	return nil
}
