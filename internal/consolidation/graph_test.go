package consolidation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/storage/memory"
)

func TestValidateReportsWithoutFixing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store := newTestEngine(Config{})

	mustCreateEntity(ctx, store, kg.Entity{ID: "a", Name: "Alpha", Kind: kg.KindCompany})
	mustCreateEntity(ctx, store, kg.Entity{ID: "b", Name: "Beta", Kind: kg.KindCompany})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r1", SourceID: "a", TargetID: "b", Type: "partnered_with", Confidence: 0.8})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r2", SourceID: "a", TargetID: "a", Type: "located_in", Confidence: 0.5})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r3", SourceID: "a", TargetID: "ghost", Type: "produces", Confidence: 0.5})

	report, err := engine.Validate(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 1, report.Valid)
	require.Equal(t, 1, report.Circular)
	require.Equal(t, 1, report.Orphaned)
	require.Zero(t, report.Fixed)

	rels, err := store.ListRelationships(ctx, "")
	require.NoError(t, err)
	require.Len(t, rels, 3, "report-only mode must not touch the store")
}

func TestValidateFixesProblems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store := newTestEngine(Config{})

	mustCreateEntity(ctx, store, kg.Entity{ID: "a", Name: "Alpha", Kind: kg.KindCompany})
	mustCreateEntity(ctx, store, kg.Entity{ID: "b", Name: "Beta", Kind: kg.KindCompany})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r1", SourceID: "a", TargetID: "a", Type: "located_in", Confidence: 0.5})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r2", SourceID: "ghost", TargetID: "b", Type: "produces", Confidence: 0.5})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r3", SourceID: "a", TargetID: "b", Type: "partnered_with", Confidence: 1.7})

	report, err := engine.Validate(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 3, report.Fixed)

	rels, err := store.ListRelationships(ctx, "")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, "r3", rels[0].ID)
	require.Equal(t, float64(1), rels[0].Confidence, "out-of-range confidence clamps into [0,1]")

	// A clean graph validates clean.
	report, err = engine.Validate(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.Valid)
	require.Zero(t, report.Fixed)
}

func TestDeduplicateRelationshipsConverges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store := newTestEngine(Config{})

	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r1", SourceID: "a", TargetID: "b", Type: "founded_by", Confidence: 0.9})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r2", SourceID: "a", TargetID: "b", Type: "founded_by", Confidence: 0.5})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r3", SourceID: "a", TargetID: "b", Type: "works_at", Confidence: 0.5})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r4", SourceID: "b", TargetID: "a", Type: "founded_by", Confidence: 0.5})

	removed, err := engine.DeduplicateRelationships(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed, "only exact (source, target, type) duplicates collapse")

	rels, err := store.ListRelationships(ctx, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		ids = append(ids, rel.ID)
	}
	require.Equal(t, []string{"r1", "r3", "r4"}, ids, "lowest ID wins")

	removed, err = engine.DeduplicateRelationships(ctx)
	require.NoError(t, err)
	require.Zero(t, removed, "a second pass removes nothing")
}

func TestClusterGroupsByType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store := newTestEngine(Config{})

	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r1", SourceID: "a", TargetID: "b", Type: "founded_by"})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r2", SourceID: "c", TargetID: "b", Type: "founded_by"})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r3", SourceID: "a", TargetID: "d", Type: "produces"})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r4", SourceID: "a", TargetID: "x", Type: kg.RelDuplicateOf})

	all, err := engine.Cluster(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Len(t, all["founded_by"], 2)
	require.NotContains(t, all, kg.RelDuplicateOf, "duplicate_of is bookkeeping, not graph structure")

	only, err := engine.Cluster(ctx, []string{"produces"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.Len(t, only["produces"], 1)
}

func TestFindConnectedClusters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store := newTestEngine(Config{})

	// Component one: a-b-c. Component two: d-e. Isolated self-loop on f.
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r1", SourceID: "a", TargetID: "b", Type: "works_at"})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r2", SourceID: "c", TargetID: "b", Type: "works_at"})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r3", SourceID: "d", TargetID: "e", Type: "works_at"})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r4", SourceID: "f", TargetID: "f", Type: "works_at"})

	clusters, err := engine.FindConnectedClusters(ctx, nil, 2)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b", "c"}, {"d", "e"}}, clusters)

	big, err := engine.FindConnectedClusters(ctx, nil, 3)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b", "c"}}, big)
}

type fakeInferrer struct {
	proposals []kg.InferredRelationship
	err       error
}

func (f *fakeInferrer) Infer(_ context.Context, _ []kg.Entity, _ string) ([]kg.InferredRelationship, error) {
	return f.proposals, f.err
}

func TestInferRelationshipsFiltersAndPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewStore()
	inferrer := &fakeInferrer{proposals: []kg.InferredRelationship{
		{SourceID: "a", TargetID: "b", Type: "works_at", Confidence: 0.9},
		{SourceID: "a", TargetID: "b", Type: "founded_by", Confidence: 0.2},  // below threshold
		{SourceID: "a", TargetID: "a", Type: "works_at", Confidence: 0.9},    // self-loop
		{SourceID: "a", TargetID: "ghost", Type: "knows", Confidence: 0.9},   // unknown entity
		{SourceID: "b", TargetID: "a", Type: "employs", Confidence: 0.8},     // ok
		{SourceID: "a", TargetID: "b", Type: "located_in", Confidence: 0.7},  // duplicates existing
	}}
	engine := New(store, nil, inferrer, &seqIDGen{prefix: "rel"}, fixedClock{now: testNow}, Config{}, zap.NewNop())

	mustCreateEntity(ctx, store, kg.Entity{ID: "a", Name: "Alpha", Kind: kg.KindCompany})
	mustCreateEntity(ctx, store, kg.Entity{ID: "b", Name: "Beta", Kind: kg.KindCompany})
	mustCreateRelationship(ctx, store, kg.Relationship{ID: "r0", SourceID: "a", TargetID: "b", Type: "located_in"})

	created, err := engine.InferRelationships(ctx, []string{"a", "b"}, "some page text", 0.5)
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "works_at", created[0].Type)
	require.Equal(t, "employs", created[1].Type)
	require.Equal(t, true, created[0].Meta["inferred"])

	rels, err := store.ListRelationships(ctx, "")
	require.NoError(t, err)
	require.Len(t, rels, 3)
}

func TestInferRelationshipsWithoutInferrer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, _ := newTestEngine(Config{})

	created, err := engine.InferRelationships(ctx, []string{"a"}, "text", 0.5)
	require.NoError(t, err)
	require.Nil(t, created)
}
