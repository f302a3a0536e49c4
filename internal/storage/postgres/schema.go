package postgres

import (
	"context"
	"fmt"
)

// Addresses are unique on (address, chain): the same address reused on
// another chain is a separate row. The upsert in ingest_store.go keys
// on the same pair.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tag_categories (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGSERIAL PRIMARY KEY,
		external_id VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		category_id BIGINT REFERENCES tag_categories(id),
		unified_type VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id BIGSERIAL PRIMARY KEY,
		address VARCHAR(255) NOT NULL,
		chain VARCHAR(50) NOT NULL,
		entity_name VARCHAR(255),
		entity_type VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (address, chain)
	)`,
	`CREATE TABLE IF NOT EXISTS address_tags (
		id BIGSERIAL PRIMARY KEY,
		address_id BIGINT NOT NULL REFERENCES addresses(id),
		tag_id BIGINT NOT NULL REFERENCES tags(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (address_id, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_addresses_address ON addresses(address)`,
	`CREATE INDEX IF NOT EXISTS idx_addresses_chain ON addresses(chain)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_category ON tags(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_address_tags_address ON address_tags(address_id)`,
	`CREATE INDEX IF NOT EXISTS idx_address_tags_tag ON address_tags(tag_id)`,
}

// EnsureSchema creates the ingestion tables and indexes when absent.
func (s *IngestStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
