// Package postgres provides the Postgres-backed graph store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entigraph/entigraph/internal/kg"
)

// psql builds queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// db is the subset of pgxpool.Pool the store uses. pgx transactions and
// pgxmock pools satisfy it too.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// GraphStore implements kg.Store on Postgres.
type GraphStore struct {
	db    db
	close func()
}

// NewGraphStore creates a GraphStore using the provided config.
func NewGraphStore(ctx context.Context, cfg Config) (*GraphStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &GraphStore{db: pool, close: pool.Close}, nil
}

// NewGraphStoreWithDB constructs a store from an existing connection
// (primarily for testing).
func NewGraphStoreWithDB(conn db) *GraphStore {
	return &GraphStore{db: conn}
}

// Close releases the underlying pool resources.
func (s *GraphStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// CreateEntity inserts a new entity row.
func (s *GraphStore) CreateEntity(ctx context.Context, e kg.Entity) error {
	data, meta, err := marshalMaps(e.Data, e.Meta)
	if err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	const query = `
		INSERT INTO entities (id, name, kind, data, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query, e.ID, e.Name, string(e.Kind), data, meta, e.CreatedAt); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// GetEntity loads one entity by ID.
func (s *GraphStore) GetEntity(ctx context.Context, id string) (kg.Entity, error) {
	const query = `
		SELECT id, name, kind, data, meta, created_at
		FROM entities WHERE id = $1
	`
	row := s.db.QueryRow(ctx, query, id)
	entity, err := scanEntity(row)
	if err != nil {
		return kg.Entity{}, fmt.Errorf("get entity %q: %w", id, mapNoRows(err))
	}
	return entity, nil
}

// UpdateEntity replaces the mutable columns of an entity row.
func (s *GraphStore) UpdateEntity(ctx context.Context, e kg.Entity) error {
	data, meta, err := marshalMaps(e.Data, e.Meta)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	const query = `
		UPDATE entities SET name = $2, kind = $3, data = $4, meta = $5
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, e.ID, e.Name, string(e.Kind), data, meta)
	if err != nil {
		return fmt.Errorf("update entity %q: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update entity %q: %w", e.ID, kg.ErrNotFound)
	}
	return nil
}

// FindEntityByName matches on exact name, case-insensitively, optionally
// narrowed by kind.
func (s *GraphStore) FindEntityByName(ctx context.Context, name string, kind kg.EntityKind) (kg.Entity, error) {
	builder := psql.
		Select("id", "name", "kind", "data", "meta", "created_at").
		From("entities").
		Where(sq.Expr("lower(name) = lower(?)", name)).
		OrderBy("id").
		Limit(1)
	if kind != "" {
		builder = builder.Where(sq.Eq{"kind": string(kind)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return kg.Entity{}, fmt.Errorf("find entity: build query: %w", err)
	}
	row := s.db.QueryRow(ctx, query, args...)
	entity, err := scanEntity(row)
	if err != nil {
		return kg.Entity{}, fmt.Errorf("find entity %q: %w", name, mapNoRows(err))
	}
	return entity, nil
}

// SearchEntities matches on a case-insensitive name substring.
func (s *GraphStore) SearchEntities(ctx context.Context, nameSubstr string, kind kg.EntityKind, limit int) ([]kg.Entity, error) {
	builder := psql.
		Select("id", "name", "kind", "data", "meta", "created_at").
		From("entities").
		Where(sq.ILike{"name": "%" + nameSubstr + "%"}).
		OrderBy("id")
	if kind != "" {
		builder = builder.Where(sq.Eq{"kind": string(kind)})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return s.queryEntities(ctx, builder)
}

// ListEntities pages through entities ordered by ID.
func (s *GraphStore) ListEntities(ctx context.Context, kind kg.EntityKind, limit, offset int) ([]kg.Entity, error) {
	builder := psql.
		Select("id", "name", "kind", "data", "meta", "created_at").
		From("entities").
		OrderBy("id")
	if kind != "" {
		builder = builder.Where(sq.Eq{"kind": string(kind)})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	return s.queryEntities(ctx, builder)
}

func (s *GraphStore) queryEntities(ctx context.Context, builder sq.SelectBuilder) ([]kg.Entity, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []kg.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// CreateRelationship inserts a new edge row.
func (s *GraphStore) CreateRelationship(ctx context.Context, r kg.Relationship) error {
	meta, err := marshalMap(r.Meta)
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	const query = `
		INSERT INTO relationships (id, source_id, target_id, relation_type, confidence, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.Exec(ctx, query, r.ID, r.SourceID, r.TargetID, r.Type, r.Confidence, meta, r.CreatedAt); err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

// UpdateRelationship replaces the mutable columns of an edge row.
func (s *GraphStore) UpdateRelationship(ctx context.Context, r kg.Relationship) error {
	meta, err := marshalMap(r.Meta)
	if err != nil {
		return fmt.Errorf("update relationship: %w", err)
	}
	const query = `
		UPDATE relationships
		SET source_id = $2, target_id = $3, relation_type = $4, confidence = $5, meta = $6
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, r.ID, r.SourceID, r.TargetID, r.Type, r.Confidence, meta)
	if err != nil {
		return fmt.Errorf("update relationship %q: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update relationship %q: %w", r.ID, kg.ErrNotFound)
	}
	return nil
}

// DeleteRelationship removes an edge row if present.
func (s *GraphStore) DeleteRelationship(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM relationships WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete relationship %q: %w", id, err)
	}
	return nil
}

// ListRelationships returns edges incident on entityID, or every edge when
// entityID is empty, ordered by ID.
func (s *GraphStore) ListRelationships(ctx context.Context, entityID string) ([]kg.Relationship, error) {
	builder := psql.
		Select("id", "source_id", "target_id", "relation_type", "confidence", "meta", "created_at").
		From("relationships").
		OrderBy("id")
	if entityID != "" {
		builder = builder.Where(sq.Or{sq.Eq{"source_id": entityID}, sq.Eq{"target_id": entityID}})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build relationship query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var out []kg.Relationship
	for rows.Next() {
		var (
			rel  kg.Relationship
			meta []byte
		)
		if err := rows.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &rel.Type, &rel.Confidence, &meta, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		if rel.Meta, err = unmarshalMap(meta); err != nil {
			return nil, fmt.Errorf("decode relationship meta: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}
	return out, nil
}

// CreateRecord inserts a dependent record row.
func (s *GraphStore) CreateRecord(ctx context.Context, rec kg.Record) error {
	meta, err := marshalMap(rec.Meta)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	const query = `
		INSERT INTO records (id, entity_id, kind, field, value, confidence, source_url, blob_uri, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.Exec(ctx, query,
		rec.ID, rec.EntityID, string(rec.Kind), rec.Field, rec.Value,
		rec.Confidence, rec.SourceURL, rec.BlobURI, meta, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// ListRecords returns records owned by an entity, optionally filtered by
// kind, ordered by ID.
func (s *GraphStore) ListRecords(ctx context.Context, entityID string, kind kg.RecordKind) ([]kg.Record, error) {
	builder := psql.
		Select("id", "entity_id", "kind", "field", "value", "confidence", "source_url", "blob_uri", "meta", "created_at").
		From("records").
		OrderBy("id")
	if entityID != "" {
		builder = builder.Where(sq.Eq{"entity_id": entityID})
	}
	if kind != "" {
		builder = builder.Where(sq.Eq{"kind": string(kind)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build record query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []kg.Record
	for rows.Next() {
		var (
			rec  kg.Record
			kind string
			meta []byte
		)
		err := rows.Scan(&rec.ID, &rec.EntityID, &kind, &rec.Field, &rec.Value,
			&rec.Confidence, &rec.SourceURL, &rec.BlobURI, &meta, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = kg.RecordKind(kind)
		if rec.Meta, err = unmarshalMap(meta); err != nil {
			return nil, fmt.Errorf("decode record meta: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ReassignRecords moves every record from one owner to another and returns
// the number moved.
func (s *GraphStore) ReassignRecords(ctx context.Context, fromEntityID, toEntityID string) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE records SET entity_id = $2 WHERE entity_id = $1`,
		fromEntityID, toEntityID,
	)
	if err != nil {
		return 0, fmt.Errorf("reassign records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// WithTx runs fn inside a database transaction. Write order inside fn is
// preserved, which the merge path relies on.
func (s *GraphStore) WithTx(ctx context.Context, fn func(tx kg.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&GraphStore{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback tx: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (kg.Entity, error) {
	var (
		entity     kg.Entity
		kind       string
		data, meta []byte
	)
	if err := row.Scan(&entity.ID, &entity.Name, &kind, &data, &meta, &entity.CreatedAt); err != nil {
		return kg.Entity{}, err
	}
	entity.Kind = kg.EntityKind(kind)
	var err error
	if entity.Data, err = unmarshalMap(data); err != nil {
		return kg.Entity{}, fmt.Errorf("decode entity data: %w", err)
	}
	if entity.Meta, err = unmarshalMap(meta); err != nil {
		return kg.Entity{}, fmt.Errorf("decode entity meta: %w", err)
	}
	return entity, nil
}

func marshalMaps(data, meta map[string]any) ([]byte, []byte, error) {
	dataJSON, err := marshalMap(data)
	if err != nil {
		return nil, nil, err
	}
	metaJSON, err := marshalMap(meta)
	if err != nil {
		return nil, nil, err
	}
	return dataJSON, metaJSON, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return out, nil
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return kg.ErrNotFound
	}
	return err
}
