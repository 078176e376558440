// Package archive keeps a durable record of committed mutations by batching
// mutation events into gzipped JSON-lines objects in Cloud Storage.
package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Publish after Stop.
var ErrStopped = errors.New("archive publisher is stopped")

// Uploader writes one batch of events.
type Uploader interface {
	UploadBatch(ctx context.Context, batch []events.MutationEvent) error
	Close() error
}

// PublisherConfig controls batching.
type PublisherConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	UploadTimeout time.Duration
}

// Publisher is an events.Publisher that buffers events and uploads them in
// batches, when BatchSize is reached or every FlushInterval. A failed batch is
// logged and dropped; the cache it describes is already reconciled.
type Publisher struct {
	cfg      PublisherConfig
	uploader Uploader
	logger   zerolog.Logger

	mu      sync.Mutex
	stopped bool
	input   chan events.MutationEvent
	wg      sync.WaitGroup
}

// NewPublisher starts the batching worker.
func NewPublisher(cfg *PublisherConfig, uploader Uploader, logger zerolog.Logger) (*Publisher, error) {
	if uploader == nil {
		return nil, errors.New("uploader cannot be nil")
	}
	c := PublisherConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Minute
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 30 * time.Second
	}

	p := &Publisher{
		cfg:      c,
		uploader: uploader,
		logger:   logger.With().Str("component", "ArchivePublisher").Logger(),
		input:    make(chan events.MutationEvent, c.BatchSize*2),
	}
	p.wg.Add(1)
	go p.worker()
	p.logger.Info().Int("batch_size", c.BatchSize).Dur("flush_interval", c.FlushInterval).Msg("Archive publisher started.")
	return p, nil
}

// Publish queues event. It blocks only while the queue is full.
func (p *Publisher) Publish(ctx context.Context, event events.MutationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.input <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop flushes queued events and waits for the upload, up to ctx's deadline.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.input)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		if err := p.uploader.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Error closing archive uploader")
		}
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Archive publisher stopped.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for archive publisher to stop.")
		return ctx.Err()
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	batch := make([]events.MutationEvent, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(batch)
		batch = make([]events.MutationEvent, 0, p.cfg.BatchSize)
	}

	for {
		select {
		case event, ok := <-p.input:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= p.cfg.BatchSize {
				flush()
				ticker.Reset(p.cfg.FlushInterval)
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *Publisher) flush(batch []events.MutationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.UploadTimeout)
	defer cancel()
	if err := p.uploader.UploadBatch(ctx, batch); err != nil {
		p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to archive mutation events.")
		return
	}
	p.logger.Debug().Int("batch_size", len(batch)).Msg("Archived batch.")
}
