// Package orchestrator drives crawl cycles end to end: completeness
// analysis, mode selection, search, ranked fetching, extraction, ingestion,
// and the consolidation sweep that keeps the graph clean afterward.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/entigraph/entigraph/internal/completeness"
	"github.com/entigraph/entigraph/internal/consolidation"
	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/learning"
	"github.com/entigraph/entigraph/internal/metrics"
	"github.com/entigraph/entigraph/internal/planner"
	"github.com/entigraph/entigraph/internal/progress"
)

// Defaults for cycle sizing.
const (
	DefaultMaxPages         = 8
	DefaultFetchConcurrency = 4
	DefaultResultsPerQuery  = 5
)

// Detector decides whether a static fetch needs a headless retry.
type Detector interface {
	ShouldPromote(resp kg.FetchResponse) bool
}

// Throttle gates fetches per domain.
type Throttle interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls cycle sizing and event publishing.
type Config struct {
	MaxPages         int
	FetchConcurrency int
	ResultsPerQuery  int
	SnapshotPrefix   string
	EventTopic       string
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = DefaultResultsPerQuery
	}
	if c.SnapshotPrefix == "" {
		c.SnapshotPrefix = "snapshots"
	}
	return c
}

// Deps bundles the collaborators an Orchestrator needs. Store, Fetcher,
// Searcher, Extractor, IDGen, and Clock are required; the rest are optional
// and degrade gracefully when absent.
type Deps struct {
	Store        kg.Store
	Analyzer     *completeness.Analyzer
	Scorer       *learning.Scorer
	Planner      *planner.Planner
	Frontier     *planner.Frontier
	Consolidator *consolidation.Engine
	Fetcher      kg.Fetcher
	Headless     kg.Fetcher
	Detector     Detector
	Throttle     Throttle
	Searcher     kg.Searcher
	Extractor    kg.Extractor
	Blobs        kg.BlobStore
	Publisher    kg.Publisher
	Progress     progress.Emitter
	Hasher       kg.Hasher
	IDGen        kg.IDGenerator
	Clock        kg.Clock
	Logger       *zap.Logger
}

// Orchestrator runs crawl cycles. Concurrent cycles for the same entity
// collapse into one via singleflight.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	logger   *zap.Logger
	inflight singleflight.Group
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg.withDefaults(), logger: logger}
}

// RunCrawlCycle runs one full cycle for the named entity. An unknown name
// gets a new entity and a discovery crawl; a known one gets gap filling or,
// when expansion is requested or nothing is missing, relationship discovery.
func (o *Orchestrator) RunCrawlCycle(ctx context.Context, name string, kind kg.EntityKind, expansion bool) (kg.CycleResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return kg.CycleResult{}, fmt.Errorf("run cycle: entity name required")
	}

	key := strings.ToLower(name) + "|" + string(kind)
	result, err, _ := o.inflight.Do(key, func() (any, error) {
		return o.runCycle(ctx, name, kind, expansion)
	})
	if err != nil {
		return kg.CycleResult{}, err
	}
	return result.(kg.CycleResult), nil
}

func (o *Orchestrator) runCycle(ctx context.Context, name string, kind kg.EntityKind, expansion bool) (kg.CycleResult, error) {
	started := o.deps.Clock.Now()
	metrics.IncActiveCycles()
	defer metrics.DecActiveCycles()

	cycleID := o.newCycleID()
	o.emitProgress(progress.Event{CycleID: cycleID, Stage: progress.StageCycleStart, Note: name})

	result, err := o.cycle(ctx, cycleID, name, kind, expansion)
	duration := o.deps.Clock.Now().Sub(started)
	if err != nil {
		o.emitProgress(progress.Event{
			CycleID:  cycleID,
			EntityID: result.EntityID,
			Stage:    progress.StageCycleError,
			Dur:      duration,
			Note:     err.Error(),
		})
		metrics.ObserveCycle(string(result.Mode), "error", duration)
		return result, err
	}

	o.emitProgress(progress.Event{
		CycleID:  cycleID,
		EntityID: result.EntityID,
		Stage:    progress.StageCycleDone,
		Dur:      duration,
	})
	o.publishCycleEvent(ctx, result)
	metrics.ObserveCycle(string(result.Mode), "ok", duration)
	o.logger.Info("crawl cycle finished",
		zap.String("entity_id", result.EntityID),
		zap.String("mode", string(result.Mode)),
		zap.Int("pages_fetched", result.PagesFetched),
		zap.Int("pages_failed", result.PagesFailed),
		zap.Int("facts_extracted", result.FactsExtracted),
		zap.Int("gaps_filled", result.GapsFilled),
		zap.Float64("completeness_delta", result.CompletenessDelta),
	)
	return result, nil
}

func (o *Orchestrator) cycle(ctx context.Context, cycleID, name string, kind kg.EntityKind, expansion bool) (kg.CycleResult, error) {
	entity, existed, err := o.findOrCreateEntity(ctx, name, kind)
	if err != nil {
		return kg.CycleResult{}, err
	}

	before, err := o.analyze(ctx, entity)
	if err != nil {
		return kg.CycleResult{}, err
	}

	plan := o.deps.Planner.Plan(planner.Input{
		Name:          entity.Name,
		Kind:          entity.Kind,
		Exists:        existed,
		Report:        before,
		Expansion:     expansion,
		RelationTypes: o.relationTypes(ctx, entity.ID),
	})
	o.logger.Info("crawl cycle planned",
		zap.String("entity_id", entity.ID),
		zap.String("mode", string(plan.Mode)),
		zap.Int("queries", len(plan.Queries)),
		zap.Float64("completeness", before.Completeness),
	)

	urls, err := o.search(ctx, plan)
	if err != nil {
		return kg.CycleResult{}, err
	}
	ranked := o.deps.Frontier.Rank(urls, entity)
	if len(ranked) > o.cfg.MaxPages {
		ranked = ranked[:o.cfg.MaxPages]
	}

	pages := o.fetchAll(ctx, cycleID, entity, ranked)

	result := kg.CycleResult{EntityID: entity.ID, Mode: plan.Mode}
	for _, page := range pages {
		if !page.ok {
			result.PagesFailed++
			continue
		}
		result.PagesFetched++
		ingested, err := o.ingest(ctx, entity.ID, page)
		if err != nil {
			o.logger.Warn("page ingestion failed",
				zap.String("url", page.url),
				zap.Error(err),
			)
			continue
		}
		result.FactsExtracted += ingested
	}
	metrics.AddFactsExtracted(result.FactsExtracted)

	if err := o.consolidate(ctx, entity.ID, pages); err != nil {
		return result, err
	}

	// Reload: ingestion and consolidation both touch the entity row.
	entity, err = o.deps.Store.GetEntity(ctx, entity.ID)
	if err != nil {
		return result, fmt.Errorf("run cycle: reload entity: %w", err)
	}
	after, err := o.analyze(ctx, entity)
	if err != nil {
		return result, err
	}
	result.CompletenessDelta = after.Completeness - before.Completeness
	result.GapsFilled = gapsFilled(before, after)
	metrics.AddGapsFilled(result.GapsFilled)

	return result, nil
}

// newCycleID mints an identifier for progress correlation. A generator
// failure degrades to an empty ID rather than failing the cycle.
func (o *Orchestrator) newCycleID() string {
	id, err := o.deps.IDGen.NewID()
	if err != nil {
		return ""
	}
	return id
}

func (o *Orchestrator) emitProgress(evt progress.Event) {
	if o.deps.Progress == nil || evt.CycleID == "" {
		return
	}
	evt.TS = o.deps.Clock.Now()
	o.deps.Progress.Emit(evt)
}

// AnalyzeGaps runs completeness analysis for an entity without crawling.
func (o *Orchestrator) AnalyzeGaps(ctx context.Context, entityID string) (kg.GapReport, error) {
	entity, err := o.deps.Store.GetEntity(ctx, entityID)
	if err != nil {
		return kg.GapReport{}, fmt.Errorf("analyze gaps: %w", err)
	}
	return o.analyze(ctx, entity)
}

func (o *Orchestrator) findOrCreateEntity(ctx context.Context, name string, kind kg.EntityKind) (kg.Entity, bool, error) {
	entity, err := o.deps.Store.FindEntityByName(ctx, name, kind)
	switch {
	case err == nil:
		if entity.Merged() {
			if survivor, ok := entity.Meta[kg.MetaMergedInto].(string); ok {
				merged, err := o.deps.Store.GetEntity(ctx, survivor)
				if err == nil {
					return merged, true, nil
				}
			}
		}
		return entity, true, nil
	case isNotFound(err):
	default:
		return kg.Entity{}, false, fmt.Errorf("find entity: %w", err)
	}

	id, err := o.deps.IDGen.NewID()
	if err != nil {
		return kg.Entity{}, false, fmt.Errorf("create entity: generate id: %w", err)
	}
	entity = kg.Entity{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Data:      map[string]any{},
		CreatedAt: o.deps.Clock.Now(),
	}
	if err := o.deps.Store.CreateEntity(ctx, entity); err != nil {
		return kg.Entity{}, false, fmt.Errorf("create entity: %w", err)
	}
	o.logger.Info("entity created for discovery",
		zap.String("entity_id", id),
		zap.String("name", name),
		zap.String("kind", string(kind)),
	)
	return entity, false, nil
}

func (o *Orchestrator) analyze(ctx context.Context, entity kg.Entity) (kg.GapReport, error) {
	records, err := o.deps.Store.ListRecords(ctx, entity.ID, "")
	if err != nil {
		return kg.GapReport{}, fmt.Errorf("analyze: list records: %w", err)
	}
	return o.deps.Analyzer.Analyze(entity, records), nil
}

func (o *Orchestrator) relationTypes(ctx context.Context, entityID string) []string {
	rels, err := o.deps.Store.ListRelationships(ctx, entityID)
	if err != nil {
		o.logger.Warn("listing relationships failed", zap.Error(err))
		return nil
	}
	seen := make(map[string]bool, len(rels))
	var types []string
	for _, rel := range rels {
		if rel.Type == kg.RelDuplicateOf || seen[rel.Type] {
			continue
		}
		seen[rel.Type] = true
		types = append(types, rel.Type)
	}
	sort.Strings(types)
	return types
}

func (o *Orchestrator) search(ctx context.Context, plan kg.CrawlPlan) ([]string, error) {
	var urls []string
	for _, query := range plan.Queries {
		found, err := o.deps.Searcher.Search(ctx, query.Text, o.cfg.ResultsPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("search query failed",
				zap.String("query", query.Text),
				zap.Error(err),
			)
			continue
		}
		urls = append(urls, found...)
	}
	return urls, nil
}

// page carries one URL through fetch and extraction.
type page struct {
	url      string
	pageType string
	blobURI  string
	facts    kg.ExtractedFacts
	ok       bool
}

func (o *Orchestrator) fetchAll(ctx context.Context, cycleID string, entity kg.Entity, ranked []planner.ScoredURL) []page {
	pages := make([]page, len(ranked))

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.FetchConcurrency)
	for i, scored := range ranked {
		group.Go(func() error {
			result := o.fetchOne(groupCtx, cycleID, entity, scored.URL)
			mu.Lock()
			pages[i] = result
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only orders the writes above.
	_ = group.Wait()
	return pages
}

func (o *Orchestrator) fetchOne(ctx context.Context, cycleID string, entity kg.Entity, rawURL string) page {
	result := page{url: rawURL, pageType: learning.ClassifyPageType(rawURL, website(entity))}
	domain := learning.Domain(rawURL)
	if o.deps.Throttle != nil {
		if err := o.deps.Throttle.Wait(ctx, rawURL); err != nil {
			o.logger.Debug("fetch throttled out", zap.String("url", rawURL), zap.Error(err))
			return result
		}
	}
	fetchStarted := o.deps.Clock.Now()
	o.emitProgress(progress.Event{
		CycleID:  cycleID,
		EntityID: entity.ID,
		Stage:    progress.StageFetchStart,
		Site:     metrics.SanitizeSite(rawURL),
		URL:      rawURL,
	})

	resp, err := o.deps.Fetcher.Fetch(ctx, kg.FetchRequest{URL: rawURL})
	if err == nil && resp.StatusCode == 200 && o.needsHeadless(resp) {
		metrics.ObserveHeadlessPromotion()
		o.logger.Debug("promoting fetch to headless", zap.String("url", rawURL))
		if headlessResp, headlessErr := o.deps.Headless.Fetch(ctx, kg.FetchRequest{URL: rawURL, UseHeadless: true}); headlessErr == nil {
			resp = headlessResp
		}
	}
	if err != nil || resp.StatusCode != 200 {
		metrics.ObserveFetch(rawURL, "failed", 0)
		o.emitProgress(progress.Event{
			CycleID:     cycleID,
			EntityID:    entity.ID,
			Stage:       progress.StageFetchDone,
			Site:        metrics.SanitizeSite(rawURL),
			URL:         rawURL,
			StatusClass: progress.ClassifyStatus(resp.StatusCode),
			Dur:         o.deps.Clock.Now().Sub(fetchStarted),
		})
		o.deps.Scorer.RecordOutcome(domain, result.pageType, entity.Kind, false, 0)
		o.logger.Debug("fetch failed",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return result
	}
	metrics.ObserveFetch(rawURL, "success", len(resp.Body))
	o.emitProgress(progress.Event{
		CycleID:     cycleID,
		EntityID:    entity.ID,
		Stage:       progress.StageFetchDone,
		Site:        metrics.SanitizeSite(rawURL),
		URL:         rawURL,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         o.deps.Clock.Now().Sub(fetchStarted),
	})

	result.blobURI = o.snapshot(ctx, resp)

	facts, err := o.deps.Extractor.Extract(ctx, entity.Name, entity.Kind, string(resp.Body), result.pageType, rawURL)
	if err != nil {
		o.deps.Scorer.RecordOutcome(domain, result.pageType, entity.Kind, true, 0)
		o.logger.Warn("extraction failed", zap.String("url", rawURL), zap.Error(err))
		return result
	}
	o.deps.Scorer.RecordOutcome(domain, result.pageType, entity.Kind, true, facts.Quality)

	result.facts = facts
	result.ok = true
	return result
}

func (o *Orchestrator) needsHeadless(resp kg.FetchResponse) bool {
	return o.deps.Detector != nil && o.deps.Headless != nil && o.deps.Detector.ShouldPromote(resp)
}

// snapshot stores the raw page body and returns its URI. Snapshots are best
// effort; ingestion proceeds without one.
func (o *Orchestrator) snapshot(ctx context.Context, resp kg.FetchResponse) string {
	if o.deps.Blobs == nil || o.deps.Hasher == nil || len(resp.Body) == 0 {
		return ""
	}
	digest, err := o.deps.Hasher.Hash(resp.Body)
	if err != nil {
		o.logger.Warn("snapshot hash failed", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("%s/%s.html", o.cfg.SnapshotPrefix, digest)
	uri, err := o.deps.Blobs.PutObject(ctx, path, "text/html", resp.Body)
	if err != nil {
		o.logger.Warn("snapshot upload failed", zap.String("url", resp.URL), zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) consolidate(ctx context.Context, entityID string, pages []page) error {
	removed, err := o.deps.Consolidator.DeduplicateRelationships(ctx)
	if err != nil {
		return fmt.Errorf("consolidate: dedupe relationships: %w", err)
	}
	metrics.AddRelationshipsRemoved("duplicate", removed)

	report, err := o.deps.Consolidator.Validate(ctx, true)
	if err != nil {
		return fmt.Errorf("consolidate: validate graph: %w", err)
	}
	metrics.AddRelationshipsRemoved("invalid", report.Circular+report.Orphaned)

	inferred, err := o.inferFromPages(ctx, entityID, pages)
	if err != nil {
		o.logger.Warn("relationship inference failed", zap.Error(err))
	} else {
		metrics.AddRelationshipsInferred(inferred)
	}
	return nil
}

// inferFromPages feeds extracted event text back into the consolidation
// engine's inference path for the crawled entity and its neighbors.
func (o *Orchestrator) inferFromPages(ctx context.Context, entityID string, pages []page) (int, error) {
	var fragments []string
	for _, p := range pages {
		if p.ok {
			fragments = append(fragments, p.facts.Events...)
		}
	}
	if len(fragments) == 0 {
		return 0, nil
	}

	ids := []string{entityID}
	rels, err := o.deps.Store.ListRelationships(ctx, entityID)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{entityID: true}
	for _, rel := range rels {
		for _, id := range []string{rel.SourceID, rel.TargetID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	created, err := o.deps.Consolidator.InferRelationships(ctx, ids, strings.Join(fragments, "\n"), 0)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

func (o *Orchestrator) publishCycleEvent(ctx context.Context, result kg.CycleResult) {
	if o.deps.Publisher == nil || o.cfg.EventTopic == "" {
		return
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.EventTopic, result); err != nil {
		o.logger.Warn("cycle event publish failed", zap.Error(err))
	}
}

// gapsFilled counts fields gapped before the cycle but not after it.
func gapsFilled(before, after kg.GapReport) int {
	remaining := make(map[string]bool, len(after.Gaps))
	for _, gap := range after.Gaps {
		remaining[gap.Field] = true
	}
	filled := 0
	for _, gap := range before.Gaps {
		if !remaining[gap.Field] {
			filled++
		}
	}
	return filled
}

func website(entity kg.Entity) string {
	if entity.Data == nil {
		return ""
	}
	if v, ok := entity.Data["website"].(string); ok {
		return v
	}
	return ""
}
