package crawler

import (
	"context"
	"time"
)

// PageFetcher retrieves one page of addresses for a tag. An error
// return means the transient-retry budget was exhausted; the caller
// must stop crawling that tag, not the process.
type PageFetcher interface {
	FetchPage(ctx context.Context, tagID string, page int) (Page, error)
}

// IngestStore persists addresses, tag categories, tags and the
// address-tag relations. Both operations are idempotent: repeating a
// call with identical inputs leaves row counts unchanged.
type IngestStore interface {
	UpsertAddress(ctx context.Context, rec AddressRecord) (UpsertResult, error)
	UpsertTags(ctx context.Context, address, chain string, tags TagsByCategory) error
}

// Checkpoint records tags whose crawl reached TagDone. Completions
// survive process restarts.
type Checkpoint interface {
	IsComplete(tagID string) bool
	MarkComplete(tagID string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
