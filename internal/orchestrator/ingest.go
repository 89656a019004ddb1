package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

// Relation types produced by ingestion.
const (
	relFoundedBy = "founded_by"
	relWorksAt   = "works_at"
	relLocatedIn = "located_in"
	relProduces  = "produces"
)

// ingest writes one page's extracted facts into the graph: attribute
// updates and fact records on the owning entity, a page reference, and
// related entities with their edges. Runs as one store transaction so a
// failed page leaves nothing behind.
func (o *Orchestrator) ingest(ctx context.Context, entityID string, p page) (int, error) {
	ingested := 0
	err := o.deps.Store.WithTx(ctx, func(tx kg.Store) error {
		entity, err := tx.GetEntity(ctx, entityID)
		if err != nil {
			return fmt.Errorf("load entity: %w", err)
		}
		now := o.deps.Clock.Now()

		if err := o.recordPageRef(ctx, tx, entityID, p); err != nil {
			return err
		}

		// Known (kind, field, value, source) tuples; re-crawling an
		// unchanged page must not grow the record set.
		seen, err := o.existingRecordKeys(ctx, tx, entityID)
		if err != nil {
			return err
		}

		n, err := o.ingestAttributes(ctx, tx, &entity, p, seen)
		if err != nil {
			return err
		}
		ingested += n

		n, err = o.ingestPersons(ctx, tx, entity, p)
		if err != nil {
			return err
		}
		ingested += n

		n, err = o.ingestNamedEntities(ctx, tx, entity, p.facts.Locations, kg.KindLocation, relLocatedIn, false)
		if err != nil {
			return err
		}
		ingested += n

		n, err = o.ingestNamedEntities(ctx, tx, entity, p.facts.Products, kg.KindProduct, relProduces, false)
		if err != nil {
			return err
		}
		ingested += n

		for _, event := range p.facts.Events {
			event = strings.TrimSpace(event)
			if event == "" {
				continue
			}
			key := recordKey(kg.RecordDiscoveryLog, "", event, p.url)
			if seen[key] {
				continue
			}
			if err := o.createRecord(ctx, tx, kg.Record{
				EntityID:   entityID,
				Kind:       kg.RecordDiscoveryLog,
				Value:      event,
				Confidence: p.facts.Quality,
				SourceURL:  p.url,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
			seen[key] = true
			ingested++
		}

		if err := tx.UpdateEntity(ctx, entity); err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ingest page %s: %w", p.url, err)
	}
	o.logger.Debug("page ingested",
		zap.String("entity_id", entityID),
		zap.String("url", p.url),
		zap.Int("facts", ingested),
	)
	return ingested, nil
}

func (o *Orchestrator) recordPageRef(ctx context.Context, tx kg.Store, entityID string, p page) error {
	existing, err := tx.ListRecords(ctx, entityID, kg.RecordPageRef)
	if err != nil {
		return fmt.Errorf("list page refs: %w", err)
	}
	for _, rec := range existing {
		if rec.SourceURL == p.url {
			return nil
		}
	}
	return o.createRecord(ctx, tx, kg.Record{
		EntityID:   entityID,
		Kind:       kg.RecordPageRef,
		Confidence: p.facts.Quality,
		SourceURL:  p.url,
		BlobURI:    p.blobURI,
		Meta:       map[string]any{"page_type": p.pageType},
		CreatedAt:  o.deps.Clock.Now(),
	})
}

// ingestAttributes fills entity data from basic info and financials.
// Existing non-empty values are never overwritten; every accepted value
// also gets a fact record carrying its provenance, unless an identical
// record is already on file.
func (o *Orchestrator) ingestAttributes(ctx context.Context, tx kg.Store, entity *kg.Entity, p page, seen map[string]bool) (int, error) {
	if entity.Data == nil {
		entity.Data = map[string]any{}
	}
	count := 0
	for _, group := range []map[string]string{p.facts.BasicInfo, p.facts.Financials} {
		for field, value := range group {
			value = strings.TrimSpace(value)
			if field == "" || value == "" {
				continue
			}
			if existing, ok := entity.Data[field]; !ok || existing == nil || existing == "" {
				entity.Data[field] = value
			}
			key := recordKey(kg.RecordFact, field, value, p.url)
			if seen[key] {
				continue
			}
			if err := o.createRecord(ctx, tx, kg.Record{
				EntityID:   entity.ID,
				Kind:       kg.RecordFact,
				Field:      field,
				Value:      value,
				Confidence: p.facts.Quality,
				SourceURL:  p.url,
				CreatedAt:  o.deps.Clock.Now(),
			}); err != nil {
				return count, err
			}
			seen[key] = true
			count++
		}
	}
	return count, nil
}

// existingRecordKeys indexes the entity's fact and discovery-log records
// so repeat cycles over unchanged pages stay no-ops.
func (o *Orchestrator) existingRecordKeys(ctx context.Context, tx kg.Store, entityID string) (map[string]bool, error) {
	seen := map[string]bool{}
	for _, kind := range []kg.RecordKind{kg.RecordFact, kg.RecordDiscoveryLog} {
		records, err := tx.ListRecords(ctx, entityID, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", kind, err)
		}
		for _, rec := range records {
			seen[recordKey(rec.Kind, rec.Field, rec.Value, rec.SourceURL)] = true
		}
	}
	return seen, nil
}

func recordKey(kind kg.RecordKind, field, value, sourceURL string) string {
	return string(kind) + "|" + field + "|" + value + "|" + sourceURL
}

func (o *Orchestrator) ingestPersons(ctx context.Context, tx kg.Store, entity kg.Entity, p page) (int, error) {
	count := 0
	for _, person := range p.facts.Persons {
		name := strings.TrimSpace(person.Name)
		if name == "" {
			continue
		}
		related, err := o.ensureEntity(ctx, tx, name, kg.KindPerson)
		if err != nil {
			return count, err
		}

		relType := relWorksAt
		source, target := related.ID, entity.ID
		if founderRelation(person) {
			relType = relFoundedBy
			source, target = entity.ID, related.ID
		}
		created, err := o.ensureRelationship(ctx, tx, source, target, relType, p.facts.Quality)
		if err != nil {
			return count, err
		}
		if created {
			count++
		}
	}
	return count, nil
}

// ingestNamedEntities links plain name mentions (locations, products) to
// the owning entity. The edge always runs owner -> mention unless inverted.
func (o *Orchestrator) ingestNamedEntities(
	ctx context.Context,
	tx kg.Store,
	entity kg.Entity,
	names []string,
	kind kg.EntityKind,
	relType string,
	invert bool,
) (int, error) {
	count := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		related, err := o.ensureEntity(ctx, tx, name, kind)
		if err != nil {
			return count, err
		}
		source, target := entity.ID, related.ID
		if invert {
			source, target = related.ID, entity.ID
		}
		created, err := o.ensureRelationship(ctx, tx, source, target, relType, 0.7)
		if err != nil {
			return count, err
		}
		if created {
			count++
		}
	}
	return count, nil
}

func (o *Orchestrator) ensureEntity(ctx context.Context, tx kg.Store, name string, kind kg.EntityKind) (kg.Entity, error) {
	entity, err := tx.FindEntityByName(ctx, name, kind)
	switch {
	case err == nil:
		return entity, nil
	case isNotFound(err):
	default:
		return kg.Entity{}, fmt.Errorf("find %s %q: %w", kind, name, err)
	}

	id, err := o.deps.IDGen.NewID()
	if err != nil {
		return kg.Entity{}, fmt.Errorf("generate id: %w", err)
	}
	entity = kg.Entity{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Data:      map[string]any{},
		CreatedAt: o.deps.Clock.Now(),
	}
	if err := tx.CreateEntity(ctx, entity); err != nil {
		return kg.Entity{}, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return entity, nil
}

// ensureRelationship creates the edge unless the (source, target, type)
// triple already exists. Reports whether an edge was created.
func (o *Orchestrator) ensureRelationship(ctx context.Context, tx kg.Store, sourceID, targetID, relType string, confidence float64) (bool, error) {
	if sourceID == targetID {
		return false, nil
	}
	existing, err := tx.ListRelationships(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("list relationships: %w", err)
	}
	for _, rel := range existing {
		if rel.SourceID == sourceID && rel.TargetID == targetID && rel.Type == relType {
			return false, nil
		}
	}
	id, err := o.deps.IDGen.NewID()
	if err != nil {
		return false, fmt.Errorf("generate relationship id: %w", err)
	}
	rel := kg.Relationship{
		ID:         id,
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Confidence: confidence,
		CreatedAt:  o.deps.Clock.Now(),
	}
	if err := tx.CreateRelationship(ctx, rel); err != nil {
		return false, fmt.Errorf("create relationship: %w", err)
	}
	return true, nil
}

func (o *Orchestrator) createRecord(ctx context.Context, tx kg.Store, rec kg.Record) error {
	id, err := o.deps.IDGen.NewID()
	if err != nil {
		return fmt.Errorf("generate record id: %w", err)
	}
	rec.ID = id
	if err := tx.CreateRecord(ctx, rec); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func founderRelation(person kg.ExtractedPerson) bool {
	role := strings.ToLower(person.Role + " " + person.Relation)
	return strings.Contains(role, "founder") || strings.Contains(role, "founded")
}

func isNotFound(err error) bool {
	return errors.Is(err, kg.ErrNotFound)
}
