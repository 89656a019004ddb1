package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/clock/system"
	"github.com/entigraph/entigraph/internal/completeness"
	"github.com/entigraph/entigraph/internal/config"
	"github.com/entigraph/entigraph/internal/consolidation"
	"github.com/entigraph/entigraph/internal/dispatcher"
	"github.com/entigraph/entigraph/internal/extractor/heuristic"
	collyfetcher "github.com/entigraph/entigraph/internal/fetcher/colly"
	headlessfetcher "github.com/entigraph/entigraph/internal/fetcher/headless"
	"github.com/entigraph/entigraph/internal/hash/sha256"
	"github.com/entigraph/entigraph/internal/headless/detector"
	"github.com/entigraph/entigraph/internal/id/uuid"
	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/learning"
	"github.com/entigraph/entigraph/internal/logging"
	"github.com/entigraph/entigraph/internal/metrics"
	"github.com/entigraph/entigraph/internal/orchestrator"
	"github.com/entigraph/entigraph/internal/planner"
	"github.com/entigraph/entigraph/internal/policy/ratelimit"
	"github.com/entigraph/entigraph/internal/progress"
	"github.com/entigraph/entigraph/internal/progress/sinks"
	memorypublisher "github.com/entigraph/entigraph/internal/publisher/memory"
	pubsubpublisher "github.com/entigraph/entigraph/internal/publisher/pubsub"
	"github.com/entigraph/entigraph/internal/storage/gcs"
	"github.com/entigraph/entigraph/internal/storage/local"
	memorystorage "github.com/entigraph/entigraph/internal/storage/memory"
	"github.com/entigraph/entigraph/internal/storage/postgres"
)

// app bundles the built service graph plus everything that needs closing.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    kg.Store
	scorer   *learning.Scorer
	engine   *consolidation.Engine
	orch     *orchestrator.Orchestrator
	dispatch *dispatcher.Dispatcher
	recent   *progress.Ring

	closers []func()
}

// Close tears down the service graph in reverse build order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp loads config and assembles the full service graph.
func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() {
		_ = logger.Sync()
	})

	store, err := buildStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	blobs, err := buildBlobStore(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, eventTopic, err := buildPublisher(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	a.scorer = learning.NewScorer(learning.Config{
		Alpha:      cfg.Learning.Alpha,
		MinSamples: cfg.Learning.MinSamples,
		Neutral:    cfg.Learning.Neutral,
		DecayDays:  cfg.Learning.DecayDays,
	}, clock, logger.Named("learning"))

	a.engine = consolidation.New(store, nil, nil, idGen, clock, consolidation.Config{
		StringThreshold:    cfg.Consolidation.StringThreshold,
		EmbeddingThreshold: cfg.Consolidation.EmbeddingThreshold,
		MinInferConfidence: cfg.Consolidation.MinInferConfidence,
	}, logger.Named("consolidation"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})

	var headless kg.Fetcher
	if cfg.Headless.Enabled {
		chromedpFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headless = chromedpFetcher
		}
	}

	a.recent = progress.NewRing(progress.DefaultRingCapacity)
	progressSinks := []progress.Sink{a.recent}
	if cfg.Logging.Development {
		progressSinks = append(progressSinks, sinks.NewLogSink(logger.Named("progress")))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, progressSinks...)
	a.closers = append(a.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Close(closeCtx)
	})

	a.orch = orchestrator.New(orchestrator.Deps{
		Store:        store,
		Analyzer:     completeness.NewAnalyzer(cfg.Completeness.MinConfidence),
		Scorer:       a.scorer,
		Planner:      planner.New(a.scorer, 3),
		Frontier:     planner.NewFrontier(a.scorer),
		Consolidator: a.engine,
		Fetcher:      fetcher,
		Headless:     headless,
		Detector:     detector.NewHeuristic(cfg.Headless.PromotionThresh),
		Throttle: ratelimit.New(ratelimit.Config{
			RPS:   cfg.Crawler.PerDomainRPS,
			Burst: cfg.Crawler.PerDomainBurst,
		}),
		Searcher:  collyfetcher.NewSearcher("", cfg.Crawler.UserAgent, cfg.FetchTimeout()),
		Extractor: heuristic.New(),
		Blobs:     blobs,
		Publisher: publisher,
		Progress:  hub,
		Hasher:    hasher,
		IDGen:     idGen,
		Clock:     clock,
		Logger:    logger.Named("orchestrator"),
	}, orchestrator.Config{
		MaxPages:         cfg.Crawler.MaxPages,
		FetchConcurrency: cfg.Crawler.FetchConcurrency,
		ResultsPerQuery:  cfg.Crawler.ResultsPerQuery,
		SnapshotPrefix:   cfg.Blob.Prefix,
		EventTopic:       eventTopic,
	})

	a.dispatch = dispatcher.New(a.orch, idGen, clock, dispatcher.Config{}, logger.Named("dispatcher"))

	return a, nil
}

func buildStore(ctx context.Context, cfg config.Config) (kg.Store, error) {
	if cfg.DB.DSN == "" {
		return memorystorage.NewStore(), nil
	}
	store, err := postgres.NewGraphStore(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return store, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, a *app) (kg.BlobStore, error) {
	switch cfg.Blob.Backend {
	case "local":
		blobs, err := local.New(local.Config{BaseDir: cfg.Blob.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return blobs, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			_ = client.Close()
		})
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.Blob.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return blobs, nil
	default:
		return memorystorage.NewBlobStore(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, a *app) (kg.Publisher, string, error) {
	if !cfg.PubSub.Enabled {
		return memorypublisher.New(), "", nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() {
		_ = client.Close()
	})
	publisher, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, "", fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)
	return publisher, cfg.PubSub.TopicName, nil
}
