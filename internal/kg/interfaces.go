package kg

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store is the persistent graph store. Implementations must make WithTx
// atomic: either every operation inside fn commits, or none do.
type Store interface {
	CreateEntity(ctx context.Context, e Entity) error
	GetEntity(ctx context.Context, id string) (Entity, error)
	UpdateEntity(ctx context.Context, e Entity) error
	// FindEntityByName matches on exact (case-insensitive) name, optionally
	// narrowed by kind. Returns ErrNotFound when nothing matches.
	FindEntityByName(ctx context.Context, name string, kind EntityKind) (Entity, error)
	// SearchEntities matches entities whose name contains the given
	// substring (case-insensitive), optionally narrowed by kind.
	SearchEntities(ctx context.Context, nameSubstr string, kind EntityKind, limit int) ([]Entity, error)
	ListEntities(ctx context.Context, kind EntityKind, limit, offset int) ([]Entity, error)

	CreateRelationship(ctx context.Context, r Relationship) error
	UpdateRelationship(ctx context.Context, r Relationship) error
	DeleteRelationship(ctx context.Context, id string) error
	// ListRelationships returns edges incident on entityID, or every edge
	// when entityID is empty.
	ListRelationships(ctx context.Context, entityID string) ([]Relationship, error)

	CreateRecord(ctx context.Context, rec Record) error
	// ListRecords returns records owned by entityID, optionally filtered by
	// kind ("" means all kinds).
	ListRecords(ctx context.Context, entityID string, kind RecordKind) ([]Record, error)
	// ReassignRecords moves ownership of every record from one entity to
	// another and returns the number moved.
	ReassignRecords(ctx context.Context, fromEntityID, toEntityID string) (int, error)

	// WithTx runs fn against a transactional view of the store. The order of
	// writes inside fn is preserved when flushed, which the merge path relies
	// on: relationship redirects must reach the store before the subordinate
	// entity's state changes.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close()
}

// Fetcher fetches a URL and returns the body plus metadata. Implemented by
// the static and headless fetch collaborators.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Searcher resolves a search query into candidate page URLs. It is part of
// the fetch collaborator surface.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Extractor turns page text into structured facts. Treated as a black box;
// the quality signal on the result feeds the learning scorer.
type Extractor interface {
	Extract(ctx context.Context, entityName string, kind EntityKind, text, pageType, url string) (ExtractedFacts, error)
}

// Embedder provides embedding-based similarity. May be absent, in which
// case candidate search degrades to string matching only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Similarity(a, b []float64) float64
}

// RelationshipInferrer proposes relationships between known entities from
// free text. Confidence filtering is owned by the consolidation engine.
type RelationshipInferrer interface {
	Infer(ctx context.Context, entities []Entity, contextText string) ([]InferredRelationship, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
