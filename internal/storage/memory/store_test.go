package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entigraph/entigraph/internal/kg"
)

func testEntity(id, name string, kind kg.EntityKind) kg.Entity {
	return kg.Entity{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Data:      map[string]any{},
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEntityLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateEntity(ctx, testEntity("e1", "Acme Corp", kg.KindCompany)))
	require.Error(t, store.CreateEntity(ctx, testEntity("e1", "Acme Corp", kg.KindCompany)))

	got, err := store.GetEntity(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", got.Name)

	got.Data["website"] = "https://acme.example"
	require.NoError(t, store.UpdateEntity(ctx, got))

	again, err := store.GetEntity(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "https://acme.example", again.Data["website"])

	_, err = store.GetEntity(ctx, "missing")
	require.ErrorIs(t, err, kg.ErrNotFound)
}

func TestGetEntityReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	entity := testEntity("e1", "Acme", kg.KindCompany)
	entity.Data["founded"] = "1999"
	require.NoError(t, store.CreateEntity(ctx, entity))

	got, err := store.GetEntity(ctx, "e1")
	require.NoError(t, err)
	got.Data["founded"] = "tampered"

	fresh, err := store.GetEntity(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "1999", fresh.Data["founded"])
}

func TestFindAndSearchEntities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateEntity(ctx, testEntity("e1", "Microsoft", kg.KindCompany)))
	require.NoError(t, store.CreateEntity(ctx, testEntity("e2", "Microsoft Corp", kg.KindCompany)))
	require.NoError(t, store.CreateEntity(ctx, testEntity("e3", "Micron", kg.KindCompany)))
	require.NoError(t, store.CreateEntity(ctx, testEntity("e4", "Microsoft", kg.KindTopic)))

	found, err := store.FindEntityByName(ctx, "microsoft", kg.KindCompany)
	require.NoError(t, err)
	require.Equal(t, "e1", found.ID)

	_, err = store.FindEntityByName(ctx, "Oracle", kg.KindCompany)
	require.ErrorIs(t, err, kg.ErrNotFound)

	matches, err := store.SearchEntities(ctx, "micro", kg.KindCompany, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "e1", matches[0].ID)

	limited, err := store.SearchEntities(ctx, "micro", kg.KindCompany, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestListEntitiesPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.CreateEntity(ctx, testEntity(id, "Entity "+id, kg.KindCompany)))
	}

	page, err := store.ListEntities(ctx, kg.KindCompany, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "b", page[0].ID)
	require.Equal(t, "c", page[1].ID)

	empty, err := store.ListEntities(ctx, kg.KindCompany, 10, 99)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestRelationshipLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	rel := kg.Relationship{ID: "r1", SourceID: "a", TargetID: "b", Type: "founded_by", Confidence: 0.9}
	require.NoError(t, store.CreateRelationship(ctx, rel))
	require.NoError(t, store.CreateRelationship(ctx, kg.Relationship{ID: "r2", SourceID: "b", TargetID: "c", Type: "works_at"}))

	rel.Confidence = 0.95
	require.NoError(t, store.UpdateRelationship(ctx, rel))

	incident, err := store.ListRelationships(ctx, "a")
	require.NoError(t, err)
	require.Len(t, incident, 1)
	require.Equal(t, 0.95, incident[0].Confidence)

	all, err := store.ListRelationships(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.DeleteRelationship(ctx, "r1"))
	all, err = store.ListRelationships(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRecordsAndReassign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateRecord(ctx, kg.Record{ID: "rec1", EntityID: "e1", Kind: kg.RecordFact, Field: "ceo", Value: "Jane Doe"}))
	require.NoError(t, store.CreateRecord(ctx, kg.Record{ID: "rec2", EntityID: "e1", Kind: kg.RecordPageRef, SourceURL: "https://a.example"}))
	require.NoError(t, store.CreateRecord(ctx, kg.Record{ID: "rec3", EntityID: "e2", Kind: kg.RecordFact, Field: "founded", Value: "2001"}))

	facts, err := store.ListRecords(ctx, "e1", kg.RecordFact)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	all, err := store.ListRecords(ctx, "e1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	moved, err := store.ReassignRecords(ctx, "e1", "e2")
	require.NoError(t, err)
	require.Equal(t, 2, moved)

	remaining, err := store.ListRecords(ctx, "e1", "")
	require.NoError(t, err)
	require.Empty(t, remaining)

	combined, err := store.ListRecords(ctx, "e2", "")
	require.NoError(t, err)
	require.Len(t, combined, 3)
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	err := store.WithTx(ctx, func(tx kg.Store) error {
		if err := tx.CreateEntity(ctx, testEntity("e1", "Acme", kg.KindCompany)); err != nil {
			return err
		}
		return tx.CreateRelationship(ctx, kg.Relationship{ID: "r1", SourceID: "e1", TargetID: "e2", Type: "produces"})
	})
	require.NoError(t, err)

	_, err = store.GetEntity(ctx, "e1")
	require.NoError(t, err)
	rels, err := store.ListRelationships(ctx, "")
	require.NoError(t, err)
	require.Len(t, rels, 1)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateEntity(ctx, testEntity("e1", "Acme", kg.KindCompany)))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx kg.Store) error {
		entity, err := tx.GetEntity(ctx, "e1")
		if err != nil {
			return err
		}
		entity.Name = "Tampered"
		if err := tx.UpdateEntity(ctx, entity); err != nil {
			return err
		}
		if err := tx.CreateEntity(ctx, testEntity("e2", "Beta", kg.KindCompany)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entity, err := store.GetEntity(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "Acme", entity.Name)

	_, err = store.GetEntity(ctx, "e2")
	require.ErrorIs(t, err, kg.ErrNotFound)
}
