package consolidation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/metrics"
)

// Merge folds the source entity into the target as a soft-merge. The
// source row is kept and marked subordinate; every dependent record and
// relationship moves to the target first. The whole sequence runs in one
// store transaction.
//
// Ordering matters: relationship redirects and record reassignment are
// written before the source entity's state changes. Relationship storage
// cascade-deletes edges when an endpoint is removed, so the redirect must
// reach the store ahead of anything that looks like a removal of the
// source.
func (e *Engine) Merge(ctx context.Context, sourceID, targetID string) error {
	if sourceID == "" || targetID == "" {
		return fmt.Errorf("merge: source and target ids required")
	}
	if sourceID == targetID {
		return fmt.Errorf("merge: cannot merge entity %q into itself", sourceID)
	}

	err := e.store.WithTx(ctx, func(tx kg.Store) error {
		source, err := tx.GetEntity(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("load source %q: %w", sourceID, err)
		}
		target, err := tx.GetEntity(ctx, targetID)
		if err != nil {
			return fmt.Errorf("load target %q: %w", targetID, err)
		}

		now := e.clock.Now()

		// 1. Merge attribute maps; target values win on conflict.
		mergeAttributes(&source, &target)
		appendProvenance(&target, source.ID)
		if err := tx.UpdateEntity(ctx, target); err != nil {
			return fmt.Errorf("update target: %w", err)
		}

		// 2. Transfer dependent records.
		moved, err := tx.ReassignRecords(ctx, source.ID, target.ID)
		if err != nil {
			return fmt.Errorf("reassign records: %w", err)
		}

		// 3. Redirect relationships off the source.
		if err := e.redirectRelationships(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}

		// 5. Remove self-loops created by the redirect.
		// 6. Deduplicate edges now incident on the target.
		if err := e.cleanupTargetEdges(ctx, tx, target.ID); err != nil {
			return err
		}

		// 7. Mark the source subordinate, keeping the row.
		if source.Meta == nil {
			source.Meta = map[string]any{}
		}
		source.Meta[kg.MetaMergedInto] = target.ID
		source.Meta[kg.MetaMergedAt] = now.Format(time.RFC3339)
		if err := tx.UpdateEntity(ctx, source); err != nil {
			return fmt.Errorf("mark source subordinate: %w", err)
		}

		// 8. Idempotent duplicate_of edge from source to target.
		if err := e.ensureDuplicateEdge(ctx, tx, source, target, now); err != nil {
			return err
		}

		e.logger.Info("entities merged",
			zap.String("source_id", source.ID),
			zap.String("target_id", target.ID),
			zap.Int("records_moved", moved),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("merge %s into %s: %w", sourceID, targetID, err)
	}
	metrics.ObserveMerge()
	return nil
}

// mergeAttributes copies every source key absent or empty on the target.
func mergeAttributes(source, target *kg.Entity) {
	if len(source.Data) == 0 {
		return
	}
	if target.Data == nil {
		target.Data = map[string]any{}
	}
	for key, value := range source.Data {
		existing, ok := target.Data[key]
		if !ok || existing == nil || existing == "" {
			target.Data[key] = value
		}
	}
}

func appendProvenance(target *kg.Entity, sourceID string) {
	if target.Meta == nil {
		target.Meta = map[string]any{}
	}
	var mergedFrom []string
	switch v := target.Meta[kg.MetaMergedFrom].(type) {
	case []string:
		mergedFrom = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				mergedFrom = append(mergedFrom, s)
			}
		}
	}
	for _, id := range mergedFrom {
		if id == sourceID {
			target.Meta[kg.MetaMergedFrom] = mergedFrom
			return
		}
	}
	target.Meta[kg.MetaMergedFrom] = append(mergedFrom, sourceID)
}

func (e *Engine) redirectRelationships(ctx context.Context, tx kg.Store, sourceID, targetID string) error {
	incident, err := tx.ListRelationships(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list source relationships: %w", err)
	}
	for _, rel := range incident {
		// The source's own duplicate_of marker stays put; only edges
		// pointing at the source get flattened onto the target.
		if rel.Type == kg.RelDuplicateOf && rel.SourceID == sourceID {
			continue
		}
		changed := false
		if rel.SourceID == sourceID {
			rel.SourceID = targetID
			changed = true
		}
		if rel.TargetID == sourceID {
			rel.TargetID = targetID
			changed = true
		}
		if !changed {
			continue
		}
		if err := tx.UpdateRelationship(ctx, rel); err != nil {
			return fmt.Errorf("redirect relationship %s: %w", rel.ID, err)
		}
	}
	return nil
}

func (e *Engine) cleanupTargetEdges(ctx context.Context, tx kg.Store, targetID string) error {
	incident, err := tx.ListRelationships(ctx, targetID)
	if err != nil {
		return fmt.Errorf("list target relationships: %w", err)
	}
	for _, rel := range incident {
		if rel.SourceID == rel.TargetID {
			if err := tx.DeleteRelationship(ctx, rel.ID); err != nil {
				return fmt.Errorf("remove self-loop %s: %w", rel.ID, err)
			}
		}
	}

	incident, err = tx.ListRelationships(ctx, targetID)
	if err != nil {
		return fmt.Errorf("relist target relationships: %w", err)
	}
	if _, err := dedupeEdges(ctx, tx, incident); err != nil {
		return err
	}
	return nil
}

func (e *Engine) ensureDuplicateEdge(
	ctx context.Context,
	tx kg.Store,
	source, target kg.Entity,
	now time.Time,
) error {
	existing, err := tx.ListRelationships(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("list duplicate edges: %w", err)
	}
	for _, rel := range existing {
		if rel.Type == kg.RelDuplicateOf && rel.SourceID == source.ID && rel.TargetID == target.ID {
			return nil
		}
	}
	id, err := e.idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate duplicate edge id: %w", err)
	}
	edge := kg.Relationship{
		ID:         id,
		SourceID:   source.ID,
		TargetID:   target.ID,
		Type:       kg.RelDuplicateOf,
		Confidence: 1,
		Meta: map[string]any{
			"merged_at":     now.Format(time.RFC3339),
			"original_name": source.Name,
			"original_kind": string(source.Kind),
		},
		CreatedAt: now,
	}
	if err := tx.CreateRelationship(ctx, edge); err != nil {
		return fmt.Errorf("create duplicate edge: %w", err)
	}
	return nil
}

// dedupeEdges keeps exactly one relationship per (source, target, type)
// triple, the one with the lowest ID, and deletes the rest.
func dedupeEdges(ctx context.Context, tx kg.Store, edges []kg.Relationship) (int, error) {
	type tripleKey struct {
		source, target, relType string
	}
	keep := make(map[tripleKey]kg.Relationship, len(edges))
	removed := 0
	for _, rel := range edges {
		key := tripleKey{source: rel.SourceID, target: rel.TargetID, relType: rel.Type}
		best, seen := keep[key]
		if !seen {
			keep[key] = rel
			continue
		}
		loser := rel
		if rel.ID < best.ID {
			keep[key] = rel
			loser = best
		}
		if err := tx.DeleteRelationship(ctx, loser.ID); err != nil {
			return removed, fmt.Errorf("delete duplicate relationship %s: %w", loser.ID, err)
		}
		removed++
	}
	return removed, nil
}

// DeduplicateEntities scans for duplicate entities above the configured
// thresholds and merges each into its survivor. The survivor is the
// candidate with more attribute data, ties broken by lowest ID. Returns
// how many merges ran and a subordinate-to-survivor map.
func (e *Engine) DeduplicateEntities(ctx context.Context) (int, map[string]string, error) {
	mergeMap := make(map[string]string)
	entities, err := e.store.ListEntities(ctx, "", 0, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("dedupe entities: list: %w", err)
	}
	for _, entity := range entities {
		if entity.Merged() || mergeMap[entity.ID] != "" {
			continue
		}
		candidates, err := e.FindCandidates(ctx, entity.Name, entity.Kind)
		if err != nil {
			return len(mergeMap), mergeMap, err
		}
		for _, candidate := range candidates {
			if candidate.EntityID == entity.ID || mergeMap[candidate.EntityID] != "" {
				continue
			}
			other, err := e.store.GetEntity(ctx, candidate.EntityID)
			if err != nil {
				continue
			}
			survivor, subordinate := pickSurvivor(entity, other)
			if err := e.Merge(ctx, subordinate.ID, survivor.ID); err != nil {
				return len(mergeMap), mergeMap, err
			}
			mergeMap[subordinate.ID] = survivor.ID
			if subordinate.ID == entity.ID {
				break
			}
		}
	}
	return len(mergeMap), mergeMap, nil
}

func pickSurvivor(a, b kg.Entity) (survivor, subordinate kg.Entity) {
	if len(a.Data) != len(b.Data) {
		if len(a.Data) > len(b.Data) {
			return a, b
		}
		return b, a
	}
	if a.ID < b.ID {
		return a, b
	}
	return b, a
}
