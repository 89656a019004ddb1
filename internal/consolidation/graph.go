package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

// Issue describes one problem found during validation.
type Issue struct {
	RelationshipID string `json:"relationship_id"`
	Problem        string `json:"problem"`
	Fixed          bool   `json:"fixed"`
}

// Report summarizes a validation pass over the relationship graph.
type Report struct {
	Total    int     `json:"total"`
	Valid    int     `json:"valid"`
	Circular int     `json:"circular"`
	Orphaned int     `json:"orphaned"`
	Fixed    int     `json:"fixed"`
	Issues   []Issue `json:"issues,omitempty"`
}

// Validate scans every relationship for self-loops, dangling endpoints,
// and out-of-range confidence. With fixInvalid set, self-loops and orphans
// are removed and confidence is clamped into [0,1]; otherwise problems are
// only reported.
func (e *Engine) Validate(ctx context.Context, fixInvalid bool) (Report, error) {
	var report Report
	relationships, err := e.store.ListRelationships(ctx, "")
	if err != nil {
		return report, fmt.Errorf("validate: list relationships: %w", err)
	}
	report.Total = len(relationships)

	knownEntity := make(map[string]bool)
	entityExists := func(id string) (bool, error) {
		if exists, ok := knownEntity[id]; ok {
			return exists, nil
		}
		_, err := e.store.GetEntity(ctx, id)
		switch {
		case err == nil:
			knownEntity[id] = true
			return true, nil
		case isNotFound(err):
			knownEntity[id] = false
			return false, nil
		default:
			return false, err
		}
	}

	for _, rel := range relationships {
		switch {
		case rel.SourceID == rel.TargetID:
			report.Circular++
			fixed := false
			if fixInvalid {
				if err := e.store.DeleteRelationship(ctx, rel.ID); err != nil {
					return report, fmt.Errorf("validate: remove self-loop %s: %w", rel.ID, err)
				}
				report.Fixed++
				fixed = true
			}
			report.Issues = append(report.Issues, Issue{RelationshipID: rel.ID, Problem: "self-loop", Fixed: fixed})

		default:
			srcOK, err := entityExists(rel.SourceID)
			if err != nil {
				return report, fmt.Errorf("validate: check entity %s: %w", rel.SourceID, err)
			}
			dstOK, err := entityExists(rel.TargetID)
			if err != nil {
				return report, fmt.Errorf("validate: check entity %s: %w", rel.TargetID, err)
			}
			if !srcOK || !dstOK {
				report.Orphaned++
				fixed := false
				if fixInvalid {
					if err := e.store.DeleteRelationship(ctx, rel.ID); err != nil {
						return report, fmt.Errorf("validate: remove orphan %s: %w", rel.ID, err)
					}
					report.Fixed++
					fixed = true
				}
				report.Issues = append(report.Issues, Issue{RelationshipID: rel.ID, Problem: "orphaned endpoint", Fixed: fixed})
				continue
			}
			if rel.Confidence < 0 || rel.Confidence > 1 {
				fixed := false
				if fixInvalid {
					rel.Confidence = clampConfidence(rel.Confidence)
					if err := e.store.UpdateRelationship(ctx, rel); err != nil {
						return report, fmt.Errorf("validate: clamp confidence %s: %w", rel.ID, err)
					}
					report.Fixed++
					fixed = true
				}
				report.Issues = append(report.Issues, Issue{RelationshipID: rel.ID, Problem: "confidence out of range", Fixed: fixed})
				if fixed {
					report.Valid++
				}
				continue
			}
			report.Valid++
		}
	}

	e.logger.Debug("graph validated",
		zap.Int("total", report.Total),
		zap.Int("valid", report.Valid),
		zap.Int("fixed", report.Fixed),
	)
	return report, nil
}

// DeduplicateRelationships applies the merge-time grouping rule globally:
// at most one edge per (source, target, type) triple survives, lowest ID
// wins. Returns how many edges were removed. Running it twice in a row
// with no new edges removes nothing the second time.
func (e *Engine) DeduplicateRelationships(ctx context.Context) (int, error) {
	relationships, err := e.store.ListRelationships(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("dedupe relationships: list: %w", err)
	}
	removed, err := dedupeEdges(ctx, e.store, relationships)
	if err != nil {
		return removed, fmt.Errorf("dedupe relationships: %w", err)
	}
	return removed, nil
}

// Cluster groups edges by relation type, restricted to the given types
// (nil means every type except duplicate_of).
func (e *Engine) Cluster(ctx context.Context, relationTypes []string) (map[string][]kg.Relationship, error) {
	relationships, err := e.store.ListRelationships(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("cluster: list relationships: %w", err)
	}
	wanted := typeFilter(relationTypes)
	out := make(map[string][]kg.Relationship)
	for _, rel := range relationships {
		if !wanted(rel.Type) {
			continue
		}
		out[rel.Type] = append(out[rel.Type], rel)
	}
	return out, nil
}

// FindConnectedClusters finds connected components over an undirected view
// of the selected edge types, via depth-first traversal. Components below
// minSize are discarded. Entity IDs within a cluster and clusters between
// each other come back sorted for deterministic output.
func (e *Engine) FindConnectedClusters(ctx context.Context, relationTypes []string, minSize int) ([][]string, error) {
	relationships, err := e.store.ListRelationships(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("connected clusters: list relationships: %w", err)
	}
	wanted := typeFilter(relationTypes)

	adjacency := make(map[string][]string)
	for _, rel := range relationships {
		if !wanted(rel.Type) || rel.SourceID == rel.TargetID {
			continue
		}
		adjacency[rel.SourceID] = append(adjacency[rel.SourceID], rel.TargetID)
		adjacency[rel.TargetID] = append(adjacency[rel.TargetID], rel.SourceID)
	}

	nodes := make([]string, 0, len(adjacency))
	for node := range adjacency {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool, len(nodes))
	var clusters [][]string
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		var component []string
		stack := []string{start}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[node] {
				continue
			}
			visited[node] = true
			component = append(component, node)
			stack = append(stack, adjacency[node]...)
		}
		if len(component) >= minSize {
			sort.Strings(component)
			clusters = append(clusters, component)
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters, nil
}

// InferRelationships asks the text-understanding collaborator for candidate
// edges between the given entities, filters them by confidence, and
// persists the survivors. Self-loops and edges duplicating existing ones
// are skipped. Without an inferrer it returns nothing.
func (e *Engine) InferRelationships(
	ctx context.Context,
	entityIDs []string,
	contextText string,
	minConfidence float64,
) ([]kg.Relationship, error) {
	if e.inferrer == nil {
		return nil, nil
	}
	if minConfidence <= 0 {
		minConfidence = e.cfg.MinInferConfidence
	}

	entities := make([]kg.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		entity, err := e.store.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("infer: load entity %q: %w", id, err)
		}
		entities = append(entities, entity)
	}

	proposals, err := e.inferrer.Infer(ctx, entities, contextText)
	if err != nil {
		return nil, fmt.Errorf("infer relationships: %w", err)
	}

	known := make(map[string]bool, len(entities))
	for _, entity := range entities {
		known[entity.ID] = true
	}
	existing, err := e.store.ListRelationships(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("infer: list relationships: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, rel := range existing {
		present[rel.SourceID+"|"+rel.TargetID+"|"+rel.Type] = true
	}

	var created []kg.Relationship
	for _, proposal := range proposals {
		if proposal.Confidence < minConfidence {
			continue
		}
		if proposal.SourceID == proposal.TargetID {
			continue
		}
		if !known[proposal.SourceID] || !known[proposal.TargetID] {
			continue
		}
		key := proposal.SourceID + "|" + proposal.TargetID + "|" + proposal.Type
		if present[key] {
			continue
		}
		present[key] = true

		id, err := e.idGen.NewID()
		if err != nil {
			return created, fmt.Errorf("infer: generate id: %w", err)
		}
		rel := kg.Relationship{
			ID:         id,
			SourceID:   proposal.SourceID,
			TargetID:   proposal.TargetID,
			Type:       proposal.Type,
			Confidence: proposal.Confidence,
			Meta:       map[string]any{"inferred": true},
			CreatedAt:  e.clock.Now(),
		}
		if err := e.store.CreateRelationship(ctx, rel); err != nil {
			return created, fmt.Errorf("infer: persist relationship: %w", err)
		}
		created = append(created, rel)
	}
	return created, nil
}

func typeFilter(relationTypes []string) func(string) bool {
	if len(relationTypes) == 0 {
		return func(t string) bool { return t != kg.RelDuplicateOf }
	}
	wanted := make(map[string]bool, len(relationTypes))
	for _, t := range relationTypes {
		wanted[t] = true
	}
	return func(t string) bool { return wanted[t] }
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func isNotFound(err error) bool {
	return errors.Is(err, kg.ErrNotFound)
}
