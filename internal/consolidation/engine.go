// Package consolidation reconciles duplicate entities and keeps the
// relationship graph consistent. Merges are soft: the subordinate entity
// row survives for provenance and every dependent record transfers to the
// survivor.
package consolidation

import (
	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

// Default match thresholds. The embedding path is stricter than the string
// path; both are configuration, not a hard-coded offset.
const (
	DefaultStringThreshold    = 0.6
	DefaultEmbeddingThreshold = 0.8
	DefaultInferConfidence    = 0.5
)

// Config controls candidate matching and inference filtering.
type Config struct {
	StringThreshold    float64
	EmbeddingThreshold float64
	MinInferConfidence float64
}

func (c Config) withDefaults() Config {
	if c.StringThreshold <= 0 {
		c.StringThreshold = DefaultStringThreshold
	}
	if c.EmbeddingThreshold <= 0 {
		c.EmbeddingThreshold = DefaultEmbeddingThreshold
	}
	if c.MinInferConfidence <= 0 {
		c.MinInferConfidence = DefaultInferConfidence
	}
	return c
}

// Engine is the consolidation entry point. The embedder and inferrer are
// optional collaborators; without them the engine degrades to string
// matching and skips inference.
type Engine struct {
	store    kg.Store
	embedder kg.Embedder
	inferrer kg.RelationshipInferrer
	idGen    kg.IDGenerator
	clock    kg.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Engine.
func New(
	store kg.Store,
	embedder kg.Embedder,
	inferrer kg.RelationshipInferrer,
	idGen kg.IDGenerator,
	clock kg.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		inferrer: inferrer,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}
