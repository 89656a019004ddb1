// Package memory provides an in-memory Store for local development and
// tests. Transactions serialize on a single lock and roll back by
// restoring a snapshot, which gives the same atomicity guarantee the
// Postgres store gets from real transactions.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/entigraph/entigraph/internal/kg"
)

var (
	errEmptyID       = errors.New("memory store: empty id")
	errAlreadyExists = errors.New("memory store: id already exists")
)

// Store implements kg.Store in memory.
type Store struct {
	mu   sync.RWMutex
	data *data
}

type data struct {
	entities      map[string]kg.Entity
	relationships map[string]kg.Relationship
	records       map[string]kg.Record
}

func newData() *data {
	return &data{
		entities:      make(map[string]kg.Entity),
		relationships: make(map[string]kg.Relationship),
		records:       make(map[string]kg.Record),
	}
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{data: newData()}
}

// CreateEntity stores a new entity. The ID must be unique.
func (s *Store) CreateEntity(_ context.Context, e kg.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createEntity(e)
}

// GetEntity returns the entity or kg.ErrNotFound.
func (s *Store) GetEntity(_ context.Context, id string) (kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getEntity(id)
}

// UpdateEntity replaces the stored entity.
func (s *Store) UpdateEntity(_ context.Context, e kg.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateEntity(e)
}

// FindEntityByName matches on exact name, case-insensitively.
func (s *Store) FindEntityByName(_ context.Context, name string, kind kg.EntityKind) (kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.findEntityByName(name, kind)
}

// SearchEntities matches on a case-insensitive name substring.
func (s *Store) SearchEntities(_ context.Context, nameSubstr string, kind kg.EntityKind, limit int) ([]kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.searchEntities(nameSubstr, kind, limit)
}

// ListEntities pages through entities ordered by ID.
func (s *Store) ListEntities(_ context.Context, kind kg.EntityKind, limit, offset int) ([]kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listEntities(kind, limit, offset)
}

// CreateRelationship stores a new edge.
func (s *Store) CreateRelationship(_ context.Context, r kg.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createRelationship(r)
}

// UpdateRelationship replaces the stored edge.
func (s *Store) UpdateRelationship(_ context.Context, r kg.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateRelationship(r)
}

// DeleteRelationship removes the edge if present.
func (s *Store) DeleteRelationship(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteRelationship(id)
}

// ListRelationships returns edges incident on entityID, or all edges for
// the empty ID, ordered by ID.
func (s *Store) ListRelationships(_ context.Context, entityID string) ([]kg.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listRelationships(entityID)
}

// CreateRecord stores a dependent record.
func (s *Store) CreateRecord(_ context.Context, rec kg.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createRecord(rec)
}

// ListRecords returns records owned by an entity, ordered by ID.
func (s *Store) ListRecords(_ context.Context, entityID string, kind kg.RecordKind) ([]kg.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listRecords(entityID, kind)
}

// ReassignRecords moves every record from one owner to another.
func (s *Store) ReassignRecords(_ context.Context, fromEntityID, toEntityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.reassignRecords(fromEntityID, toEntityID)
}

// WithTx runs fn atomically. The store lock is held for the duration so no
// concurrent reader observes intermediate state; on error the snapshot is
// restored.
func (s *Store) WithTx(_ context.Context, fn func(tx kg.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&txView{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

// txView exposes the unlocked data as a kg.Store for use inside WithTx,
// where the outer lock is already held.
type txView struct {
	data *data
}

func (v *txView) CreateEntity(_ context.Context, e kg.Entity) error { return v.data.createEntity(e) }
func (v *txView) GetEntity(_ context.Context, id string) (kg.Entity, error) {
	return v.data.getEntity(id)
}
func (v *txView) UpdateEntity(_ context.Context, e kg.Entity) error { return v.data.updateEntity(e) }
func (v *txView) FindEntityByName(_ context.Context, name string, kind kg.EntityKind) (kg.Entity, error) {
	return v.data.findEntityByName(name, kind)
}
func (v *txView) SearchEntities(_ context.Context, nameSubstr string, kind kg.EntityKind, limit int) ([]kg.Entity, error) {
	return v.data.searchEntities(nameSubstr, kind, limit)
}
func (v *txView) ListEntities(_ context.Context, kind kg.EntityKind, limit, offset int) ([]kg.Entity, error) {
	return v.data.listEntities(kind, limit, offset)
}
func (v *txView) CreateRelationship(_ context.Context, r kg.Relationship) error {
	return v.data.createRelationship(r)
}
func (v *txView) UpdateRelationship(_ context.Context, r kg.Relationship) error {
	return v.data.updateRelationship(r)
}
func (v *txView) DeleteRelationship(_ context.Context, id string) error {
	return v.data.deleteRelationship(id)
}
func (v *txView) ListRelationships(_ context.Context, entityID string) ([]kg.Relationship, error) {
	return v.data.listRelationships(entityID)
}
func (v *txView) CreateRecord(_ context.Context, rec kg.Record) error {
	return v.data.createRecord(rec)
}
func (v *txView) ListRecords(_ context.Context, entityID string, kind kg.RecordKind) ([]kg.Record, error) {
	return v.data.listRecords(entityID, kind)
}
func (v *txView) ReassignRecords(_ context.Context, fromEntityID, toEntityID string) (int, error) {
	return v.data.reassignRecords(fromEntityID, toEntityID)
}
func (v *txView) WithTx(_ context.Context, fn func(tx kg.Store) error) error {
	// Already inside a transaction; nest flat.
	return fn(v)
}
func (v *txView) Close() {}

// --- data operations (callers hold the lock) ---

func (d *data) createEntity(e kg.Entity) error {
	if e.ID == "" {
		return errEmptyID
	}
	if _, exists := d.entities[e.ID]; exists {
		return errAlreadyExists
	}
	d.entities[e.ID] = cloneEntity(e)
	return nil
}

func (d *data) getEntity(id string) (kg.Entity, error) {
	e, ok := d.entities[id]
	if !ok {
		return kg.Entity{}, kg.ErrNotFound
	}
	return cloneEntity(e), nil
}

func (d *data) updateEntity(e kg.Entity) error {
	if _, ok := d.entities[e.ID]; !ok {
		return kg.ErrNotFound
	}
	d.entities[e.ID] = cloneEntity(e)
	return nil
}

func (d *data) findEntityByName(name string, kind kg.EntityKind) (kg.Entity, error) {
	lower := strings.ToLower(name)
	var ids []string
	for id := range d.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := d.entities[id]
		if kind != "" && e.Kind != kind {
			continue
		}
		if strings.ToLower(e.Name) == lower {
			return cloneEntity(e), nil
		}
	}
	return kg.Entity{}, kg.ErrNotFound
}

func (d *data) searchEntities(nameSubstr string, kind kg.EntityKind, limit int) ([]kg.Entity, error) {
	lower := strings.ToLower(nameSubstr)
	var out []kg.Entity
	for _, e := range d.entities {
		if kind != "" && e.Kind != kind {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name), lower) {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *data) listEntities(kind kg.EntityKind, limit, offset int) ([]kg.Entity, error) {
	var out []kg.Entity
	for _, e := range d.entities {
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *data) createRelationship(r kg.Relationship) error {
	if r.ID == "" {
		return errEmptyID
	}
	if _, exists := d.relationships[r.ID]; exists {
		return errAlreadyExists
	}
	d.relationships[r.ID] = cloneRelationship(r)
	return nil
}

func (d *data) updateRelationship(r kg.Relationship) error {
	if _, ok := d.relationships[r.ID]; !ok {
		return kg.ErrNotFound
	}
	d.relationships[r.ID] = cloneRelationship(r)
	return nil
}

func (d *data) deleteRelationship(id string) error {
	delete(d.relationships, id)
	return nil
}

func (d *data) listRelationships(entityID string) ([]kg.Relationship, error) {
	var out []kg.Relationship
	for _, r := range d.relationships {
		if entityID != "" && r.SourceID != entityID && r.TargetID != entityID {
			continue
		}
		out = append(out, cloneRelationship(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *data) createRecord(rec kg.Record) error {
	if rec.ID == "" {
		return errEmptyID
	}
	if _, exists := d.records[rec.ID]; exists {
		return errAlreadyExists
	}
	d.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (d *data) listRecords(entityID string, kind kg.RecordKind) ([]kg.Record, error) {
	var out []kg.Record
	for _, rec := range d.records {
		if entityID != "" && rec.EntityID != entityID {
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *data) reassignRecords(fromEntityID, toEntityID string) (int, error) {
	moved := 0
	for id, rec := range d.records {
		if rec.EntityID != fromEntityID {
			continue
		}
		rec.EntityID = toEntityID
		d.records[id] = rec
		moved++
	}
	return moved, nil
}

func (d *data) clone() *data {
	cp := newData()
	for id, e := range d.entities {
		cp.entities[id] = cloneEntity(e)
	}
	for id, r := range d.relationships {
		cp.relationships[id] = cloneRelationship(r)
	}
	for id, rec := range d.records {
		cp.records[id] = cloneRecord(rec)
	}
	return cp
}

func cloneEntity(e kg.Entity) kg.Entity {
	e.Data = cloneMap(e.Data)
	e.Meta = cloneMap(e.Meta)
	return e
}

func cloneRelationship(r kg.Relationship) kg.Relationship {
	r.Meta = cloneMap(r.Meta)
	return r
}

func cloneRecord(rec kg.Record) kg.Record {
	rec.Meta = cloneMap(rec.Meta)
	return rec
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.([]string); ok {
			cp[k] = append([]string(nil), s...)
			continue
		}
		cp[k] = v
	}
	return cp
}
