package kg

import (
	"net/http"
	"time"
)

// EntityKind classifies what kind of real-world thing an entity is.
type EntityKind string

// Entity kinds tracked by the graph.
const (
	KindPerson       EntityKind = "person"
	KindCompany      EntityKind = "company"
	KindProduct      EntityKind = "product"
	KindOrganization EntityKind = "organization"
	KindLocation     EntityKind = "location"
	KindTopic        EntityKind = "topic"
	KindNews         EntityKind = "news"
)

// Entity is a tracked real-world thing. The ID never changes after creation
// and entities are never physically deleted; a merged entity stays in the
// store with its metadata marking it subordinate.
type Entity struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      EntityKind     `json:"kind"`
	Data      map[string]any `json:"data"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}

// Metadata keys used for merge bookkeeping.
const (
	MetaMergedInto = "merged_into"
	MetaMergedAt   = "merged_at"
	MetaMergedFrom = "merged_from"
)

// Merged reports whether the entity has been soft-merged into a survivor.
func (e Entity) Merged() bool {
	if e.Meta == nil {
		return false
	}
	v, ok := e.Meta[MetaMergedInto]
	return ok && v != ""
}

// RelDuplicateOf is the reserved relationship type linking a subordinate
// entity to its merge survivor.
const RelDuplicateOf = "duplicate_of"

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"relation_type"`
	Confidence float64        `json:"confidence"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RecordKind distinguishes the categories of dependent records owned by an
// entity. All of them transfer to the survivor during a merge.
type RecordKind string

// Dependent record kinds.
const (
	RecordFact         RecordKind = "fact"
	RecordPageRef      RecordKind = "page_ref"
	RecordMediaRef     RecordKind = "media_ref"
	RecordFieldValue   RecordKind = "field_value"
	RecordDiscoveryLog RecordKind = "discovery_log"
)

// Record is a dependent record owned by exactly one entity at a time.
type Record struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entity_id"`
	Kind       RecordKind     `json:"kind"`
	Field      string         `json:"field,omitempty"`
	Value      string         `json:"value,omitempty"`
	Confidence float64        `json:"confidence"`
	SourceURL  string         `json:"source_url,omitempty"`
	BlobURI    string         `json:"blob_uri,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// GapPriority is the importance tier of an expected field.
type GapPriority int

// Field priority tiers, weighted 3/2/1 in the completeness score.
const (
	PriorityCritical      GapPriority = 3
	PriorityImportant     GapPriority = 2
	PrioritySupplementary GapPriority = 1
)

// Gap is an expected field that is missing or unverified on an entity.
type Gap struct {
	Field       string      `json:"field"`
	Priority    GapPriority `json:"priority"`
	Findability float64     `json:"findability"`
}

// Rank orders gaps: priority weight times findability, descending.
func (g Gap) Rank() float64 {
	return float64(g.Priority) * g.Findability
}

// GapReport is the result of completeness analysis. It is computed on
// demand and never persisted.
type GapReport struct {
	EntityID     string     `json:"entity_id"`
	Kind         EntityKind `json:"kind"`
	Completeness float64    `json:"completeness"`
	Gaps         []Gap      `json:"gaps"`
}

// CrawlMode selects the crawl strategy for one cycle.
type CrawlMode string

// Crawl modes. The mode is recomputed fresh each cycle, never persisted.
const (
	ModeDiscovery  CrawlMode = "discovery"
	ModeGapFilling CrawlMode = "gap_filling"
	ModeExpansion  CrawlMode = "expansion"
)

// Query is a single search query with a frontier priority.
type Query struct {
	Text     string  `json:"text"`
	Priority float64 `json:"priority"`
	Field    string  `json:"field,omitempty"`
}

// CrawlPlan is the output of mode selection: the strategy and the queries
// to hand to the fetch collaborator, highest priority first.
type CrawlPlan struct {
	Mode     CrawlMode `json:"mode"`
	Queries  []Query   `json:"queries"`
	Strategy string    `json:"strategy"`
}

// CycleResult summarizes one crawl cycle for an entity.
type CycleResult struct {
	EntityID          string    `json:"entity_id"`
	Mode              CrawlMode `json:"mode"`
	PagesFetched      int       `json:"pages_fetched"`
	PagesFailed       int       `json:"pages_failed"`
	FactsExtracted    int       `json:"facts_extracted"`
	GapsFilled        int       `json:"gaps_filled"`
	CompletenessDelta float64   `json:"completeness_delta"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	Headers     http.Header
	UseHeadless bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ExtractedPerson is a person mention pulled from a page.
type ExtractedPerson struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// ExtractedFacts is the fact schema produced by the extraction collaborator.
type ExtractedFacts struct {
	BasicInfo  map[string]string `json:"basic_info"`
	Persons    []ExtractedPerson `json:"persons,omitempty"`
	Locations  []string          `json:"locations,omitempty"`
	Financials map[string]string `json:"financials,omitempty"`
	Products   []string          `json:"products,omitempty"`
	Events     []string          `json:"events,omitempty"`
	Quality    float64           `json:"quality"`
}

// InferredRelationship is a candidate edge proposed by the text-understanding
// collaborator before confidence filtering.
type InferredRelationship struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"relation_type"`
	Confidence float64 `json:"confidence"`
}
