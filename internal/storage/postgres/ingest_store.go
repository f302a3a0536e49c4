package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chainintel/tagcrawler/internal/crawler"
	"github.com/chainintel/tagcrawler/internal/taxonomy"
)

const upsertAddressSQL = `
INSERT INTO addresses (address, chain, entity_name, entity_type, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (address, chain) DO UPDATE
SET entity_name = EXCLUDED.entity_name,
	entity_type = EXCLUDED.entity_type,
	updated_at = now()
RETURNING (xmax = 0) AS inserted`

const selectAddressIDSQL = `
SELECT id FROM addresses WHERE address = $1 AND chain = $2`

const upsertCategorySQL = `
INSERT INTO tag_categories (name, created_at)
VALUES ($1, now())
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

const upsertTagSQL = `
INSERT INTO tags (external_id, name, category_id, unified_type, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), now())
ON CONFLICT (external_id) DO UPDATE
SET name = EXCLUDED.name,
	category_id = EXCLUDED.category_id,
	unified_type = COALESCE(EXCLUDED.unified_type, tags.unified_type)
RETURNING id`

const insertRelationSQL = `
INSERT INTO address_tags (address_id, tag_id, created_at)
VALUES ($1, $2, now())
ON CONFLICT (address_id, tag_id) DO NOTHING`

// UpsertAddress inserts the address or refreshes its descriptive
// fields, reporting whether the row was created. Repeating the call
// with identical input never creates a second row.
func (s *IngestStore) UpsertAddress(ctx context.Context, rec crawler.AddressRecord) (crawler.UpsertResult, error) {
	if rec.Address == "" {
		return crawler.AlreadyExisted, errors.New("address is required")
	}
	chain := rec.Chain
	if chain == "" {
		chain = "unknown"
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, upsertAddressSQL,
		rec.Address, chain, rec.EntityName, rec.EntityType,
	).Scan(&inserted)
	if err != nil {
		return crawler.AlreadyExisted, fmt.Errorf("upsert address %s: %w", rec.Address, err)
	}
	if inserted {
		return crawler.Created, nil
	}
	return crawler.AlreadyExisted, nil
}

// UpsertTags associates the address with every tag in the map, lazily
// creating categories and tags. The address must have been upserted
// first; a missing address yields ErrAddressNotFound. An empty map is
// a no-op.
func (s *IngestStore) UpsertTags(ctx context.Context, address, chain string, tags crawler.TagsByCategory) error {
	if len(tags) == 0 {
		return nil
	}
	if address == "" {
		return errors.New("address is required")
	}
	if chain == "" {
		chain = "unknown"
	}

	var addressID int64
	err := s.pool.QueryRow(ctx, selectAddressIDSQL, address, chain).Scan(&addressID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s (%s)", ErrAddressNotFound, address, chain)
		}
		return fmt.Errorf("look up address %s: %w", address, err)
	}

	// Categories are visited in sorted order so repeated runs issue
	// identical statement sequences.
	categories := make([]string, 0, len(tags))
	for name := range tags {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	for _, category := range categories {
		categoryID, err := s.upsertCategory(ctx, category)
		if err != nil {
			return err
		}
		for _, tag := range tags[category] {
			if tag.ID == "" {
				s.logger.Warn("skipping tag without identifier",
					zap.String("address", address),
					zap.String("category", category),
				)
				continue
			}
			tagID, err := s.upsertTag(ctx, tag, categoryID)
			if err != nil {
				return err
			}
			if _, err := s.pool.Exec(ctx, insertRelationSQL, addressID, tagID); err != nil {
				return fmt.Errorf("relate address %s to tag %s: %w", address, tag.ID, err)
			}
		}
	}
	return nil
}

// PrimeTaxonomy persists the taxonomy document's categories and tags
// before crawling begins, so lookups during ingestion hit existing
// rows.
func (s *IngestStore) PrimeTaxonomy(ctx context.Context, document map[string][]taxonomy.Entry) error {
	categories := make([]string, 0, len(document))
	for name := range document {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	for _, category := range categories {
		categoryID, err := s.upsertCategory(ctx, category)
		if err != nil {
			return err
		}
		for _, entry := range document[category] {
			if entry.ID == "" {
				continue
			}
			name := entry.Name
			if name == "" {
				name = entry.ID
			}
			tag := crawler.TagRecord{ID: entry.ID, Label: name}
			if _, err := s.upsertTag(ctx, tag, categoryID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *IngestStore) upsertCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertCategorySQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert category %s: %w", name, err)
	}
	return id, nil
}

func (s *IngestStore) upsertTag(ctx context.Context, tag crawler.TagRecord, categoryID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertTagSQL,
		tag.ID, tag.Label, categoryID, tag.UnifiedType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert tag %s: %w", tag.ID, err)
	}
	return id, nil
}
