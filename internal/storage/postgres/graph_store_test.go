package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/entigraph/entigraph/internal/kg"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*GraphStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewGraphStoreWithDB(mock), mock
}

func entityRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "kind", "data", "meta", "created_at"})
}

func TestCreateEntityInsertsRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	entity := kg.Entity{
		ID:        "e1",
		Name:      "Acme",
		Kind:      kg.KindCompany,
		Data:      map[string]any{"website": "https://acme.example"},
		CreatedAt: testNow,
	}
	mock.ExpectExec("INSERT INTO entities").
		WithArgs("e1", "Acme", "company", []byte(`{"website":"https://acme.example"}`), []byte(`{}`), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateEntity(context.Background(), entity))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntityDecodesJSON(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, kind, data, meta, created_at FROM entities").
		WithArgs("e1").
		WillReturnRows(entityRows().AddRow(
			"e1", "Acme", "company",
			[]byte(`{"website":"https://acme.example"}`),
			[]byte(`{"merged_into":"e2"}`),
			testNow,
		))

	entity, err := store.GetEntity(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, kg.KindCompany, entity.Kind)
	require.Equal(t, "https://acme.example", entity.Data["website"])
	require.True(t, entity.Merged())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntityNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, kind, data, meta, created_at FROM entities").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetEntity(context.Background(), "missing")
	require.ErrorIs(t, err, kg.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntityNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE entities SET").
		WithArgs("ghost", "Ghost", "company", []byte(`{}`), []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateEntity(context.Background(), kg.Entity{ID: "ghost", Name: "Ghost", Kind: kg.KindCompany})
	require.ErrorIs(t, err, kg.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchEntitiesFiltersByKind(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, kind, data, meta, created_at FROM entities WHERE").
		WithArgs("%acme%", "company").
		WillReturnRows(entityRows().
			AddRow("e1", "Acme", "company", []byte(`{}`), []byte(`{}`), testNow).
			AddRow("e2", "Acme Corp", "company", []byte(`{}`), []byte(`{}`), testNow))

	matches, err := store.SearchEntities(context.Background(), "acme", kg.KindCompany, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "e1", matches[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRelationshipsIncident(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "source_id", "target_id", "relation_type", "confidence", "meta", "created_at"}).
		AddRow("r1", "e1", "e2", "founded_by", 0.9, []byte(`{}`), testNow)
	mock.ExpectQuery("SELECT id, source_id, target_id, relation_type, confidence, meta, created_at FROM relationships WHERE").
		WithArgs("e1", "e1").
		WillReturnRows(rows)

	rels, err := store.ListRelationships(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, "founded_by", rels[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignRecordsReturnsCount(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE records SET entity_id").
		WithArgs("src", "dst").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	moved, err := store.ReassignRecords(context.Background(), "src", "dst")
	require.NoError(t, err)
	require.Equal(t, 3, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM relationships").
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx kg.Store) error {
		return tx.DeleteRelationship(context.Background(), "r1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx kg.Store) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
