package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		kind       TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}',
		meta       JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS entities_name_idx ON entities (lower(name))`,
	`CREATE INDEX IF NOT EXISTS entities_kind_idx ON entities (kind)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		id            TEXT PRIMARY KEY,
		source_id     TEXT NOT NULL,
		target_id     TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
		meta          JSONB NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS relationships_source_idx ON relationships (source_id)`,
	`CREATE INDEX IF NOT EXISTS relationships_target_idx ON relationships (target_id)`,
	`CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		entity_id  TEXT NOT NULL,
		kind       TEXT NOT NULL,
		field      TEXT NOT NULL DEFAULT '',
		value      TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_url TEXT NOT NULL DEFAULT '',
		blob_uri   TEXT NOT NULL DEFAULT '',
		meta       JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_entity_idx ON records (entity_id, kind)`,
}

// Migrate creates the graph tables and indexes if they do not exist.
func (s *GraphStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
