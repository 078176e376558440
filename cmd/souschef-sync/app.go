package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-resourcesync/pkg/archive"
	"github.com/illmade-knight/go-resourcesync/pkg/attachment"
	"github.com/illmade-knight/go-resourcesync/pkg/config"
	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/illmade-knight/go-resourcesync/pkg/gcsobject"
	"github.com/illmade-knight/go-resourcesync/pkg/metrics"
	"github.com/illmade-knight/go-resourcesync/pkg/souschef"
	"github.com/illmade-knight/go-resourcesync/pkg/syncengine"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// app holds every long-lived component and closes them in reverse order.
type app struct {
	cfg     *config.Config
	metrics *metrics.Collectors
	client  *souschef.Client
	loader  *attachment.Loader
	pubsub  *pubsub.Client
	storage *storage.Client
	logger  zerolog.Logger

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(), logger: logger}

	creds, err := a.credentials(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sender, err := transport.NewClient(&cfg.API, creds, a.metrics, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	a.onClose(func() { _ = sender.Close() })

	publisher, err := a.publisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := syncengine.New(&cfg.Cache, sender, creds, publisher, a.metrics, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}
	a.onClose(engine.Close)

	a.client, err = souschef.NewClient(engine)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.loader, err = a.attachments(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything newApp created.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// credentials picks a static token, then a Firebase refresh token, and falls
// back to a signed-out provider.
func (a *app) credentials(ctx context.Context) (credential.Provider, error) {
	auth := a.cfg.Auth
	if auth.StaticToken != "" {
		a.logger.Info().Msg("Using static bearer token.")
		return credential.NewStaticProvider(auth.StaticToken), nil
	}
	if auth.RefreshToken == "" {
		a.logger.Warn().Msg("No credential configured; authenticated reads will fail.")
		return credential.NewStaticProvider(""), nil
	}

	source, err := credential.NewFirebaseTokenSource(ctx, &credential.FirebaseConfig{
		APIKey:       auth.FirebaseAPIKey,
		RefreshToken: auth.RefreshToken,
		TokenURL:     auth.TokenURL,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase token source: %w", err)
	}

	var store credential.TokenStore
	switch auth.TokenStore {
	case config.TokenStoreRedis:
		redisStore, err := credential.NewRedisTokenStore(ctx, &a.cfg.Redis, a.logger)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		store = credential.NewInMemoryTokenStore()
	}
	a.onClose(func() { _ = store.Close() })

	stored, err := credential.NewStoredTokenSource(&credential.StoredSourceConfig{
		Key: credential.StoreKey(auth.RefreshToken),
	}, store, source, a.logger)
	if err != nil {
		return nil, err
	}

	provider := credential.NewOAuth2Provider(a.logger)
	provider.SignIn(stored)
	return provider, nil
}

// publisher logs every mutation event and, when configured, also sends it to
// Pub/Sub and archives it to Cloud Storage or BigQuery.
func (a *app) publisher(ctx context.Context) (events.Publisher, error) {
	publishers := events.MultiPublisher{events.NewLogPublisher(a.logger)}

	if cfg := a.cfg.Events; cfg.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID, option.WithUserAgent(a.cfg.API.UserAgent))
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		a.onClose(func() { _ = client.Close() })
		a.pubsub = client

		google, err := events.NewGooglePublisher(ctx, &events.GooglePublisherConfig{
			TopicID:       cfg.TopicID,
			ResultTimeout: cfg.ResultTimeout,
		}, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create mutation publisher: %w", err)
		}
		publishers = append(publishers, google)
	}

	uploaders, err := a.archiveUploaders(ctx)
	if err != nil {
		return nil, err
	}
	for _, uploader := range uploaders {
		archiver, err := archive.NewPublisher(&archive.PublisherConfig{
			BatchSize:     a.cfg.Archive.BatchSize,
			FlushInterval: a.cfg.Archive.FlushInterval,
		}, uploader, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive publisher: %w", err)
		}
		publishers = append(publishers, archiver)
	}

	a.onClose(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := publishers.Stop(stopCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Mutation publishers did not flush cleanly.")
		}
	})
	return publishers, nil
}

// archiveUploaders returns one uploader per configured archive sink.
func (a *app) archiveUploaders(ctx context.Context) ([]archive.Uploader, error) {
	cfg := a.cfg.Archive
	var uploaders []archive.Uploader
	if cfg.Bucket != "" {
		client, err := a.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		uploader, err := archive.NewGCSUploader(gcsobject.NewClientAdapter(client), archive.UploaderConfig{
			BucketName:   cfg.Bucket,
			ObjectPrefix: cfg.Prefix,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive uploader: %w", err)
		}
		uploaders = append(uploaders, uploader)
	}
	if cfg.BigQueryDataset != "" {
		client, err := bigquery.NewClient(ctx, cfg.BigQueryProject, option.WithUserAgent(a.cfg.API.UserAgent))
		if err != nil {
			return nil, fmt.Errorf("failed to create bigquery client: %w", err)
		}
		a.onClose(func() { _ = client.Close() })
		uploader, err := archive.NewBigQueryUploader(ctx, client, archive.BigQueryConfig{
			DatasetID: cfg.BigQueryDataset,
			TableID:   cfg.BigQueryTable,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create bigquery archive: %w", err)
		}
		uploaders = append(uploaders, uploader)
	}
	return uploaders, nil
}

// storageClient creates the Cloud Storage client on first use.
func (a *app) storageClient(ctx context.Context) (*storage.Client, error) {
	if a.storage != nil {
		return a.storage, nil
	}
	client, err := storage.NewClient(ctx, option.WithUserAgent(a.cfg.API.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	a.onClose(func() { _ = client.Close() })
	a.storage = client
	return client, nil
}

func (a *app) attachments(ctx context.Context) (*attachment.Loader, error) {
	var gcs gcsobject.Client
	if a.cfg.Attachments.EnableGCS {
		client, err := a.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		gcs = gcsobject.NewClientAdapter(client)
	}
	return attachment.NewLoader(&a.cfg.Attachments.Config, gcs, a.logger), nil
}

// subscribe applies mutations other processes publish. It is a no-op unless
// events and a subscription are configured.
func (a *app) subscribe(ctx context.Context) (*events.GoogleSubscriber, error) {
	if a.pubsub == nil || a.cfg.Events.SubscriptionID == "" {
		return nil, nil
	}
	subscriber, err := events.NewGoogleSubscriber(ctx, events.DefaultGoogleSubscriberConfig(a.cfg.Events.SubscriptionID), a.pubsub, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation subscriber: %w", err)
	}
	if err := subscriber.Start(ctx, a.client.Engine().HandleRemote); err != nil {
		return nil, err
	}
	return subscriber, nil
}
