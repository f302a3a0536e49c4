// Package crawl drives the per-tag pagination loop and reconciles
// pages into the ingestion store.
package crawl

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainintel/tagcrawler/internal/crawler"
	"github.com/chainintel/tagcrawler/internal/metrics"
	"github.com/chainintel/tagcrawler/internal/taxonomy"
)

// Config bounds the pagination loop per tag.
type Config struct {
	MaxPages int
	// Loop detection against a known upstream pagination defect:
	// abort when more than LoopRepeatThreshold consecutive pages carry
	// an identical address count while past LoopPageThreshold.
	LoopRepeatThreshold int
	LoopPageThreshold   int
}

// Crawler processes one tag fully, page by page, before moving to the
// next. There is deliberately no parallel fetch: a single outstanding
// request keeps the rate-limit contract trivial.
type Crawler struct {
	fetcher    crawler.PageFetcher
	store      crawler.IngestStore
	checkpoint crawler.Checkpoint
	taxonomy   *taxonomy.Taxonomy
	clock      crawler.Clock
	cfg        Config
	logger     *zap.Logger
	progress   *Progress
}

// New constructs a Crawler.
func New(
	fetcher crawler.PageFetcher,
	store crawler.IngestStore,
	checkpoint crawler.Checkpoint,
	tax *taxonomy.Taxonomy,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2000
	}
	if cfg.LoopRepeatThreshold <= 0 {
		cfg.LoopRepeatThreshold = 10
	}
	return &Crawler{
		fetcher:    fetcher,
		store:      store,
		checkpoint: checkpoint,
		taxonomy:   tax,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
		progress:   &Progress{},
	}
}

// Progress exposes the live counters for the status API.
func (c *Crawler) Progress() *Progress {
	return c.progress
}

// Run crawls every pending tag in order. Tags already recorded in the
// checkpoint are skipped without a single fetch. Cancellation is
// observed between tags and between pages, never mid-request.
func (c *Crawler) Run(ctx context.Context, tagIDs []string) error {
	log := c.logger.With(zap.String("run_id", uuid.NewString()))
	started := c.clock.Now()

	pending := 0
	for _, tagID := range tagIDs {
		if !c.checkpoint.IsComplete(tagID) {
			pending++
		}
	}
	log.Info("crawl run starting",
		zap.Int("tags_total", len(tagIDs)),
		zap.Int("tags_pending", pending),
	)

	for _, tagID := range tagIDs {
		if err := ctx.Err(); err != nil {
			log.Info("crawl run interrupted")
			return err
		}
		if c.checkpoint.IsComplete(tagID) {
			c.progress.tagSkipped()
			metrics.ObserveTagOutcome(string(crawler.TagSkipped))
			log.Debug("tag already complete, skipping", zap.String("tag", tagID))
			continue
		}

		c.progress.setCurrentTag(tagID)
		outcome := c.crawlTag(ctx, log, tagID)
		metrics.ObserveTagOutcome(string(outcome))

		switch outcome {
		case crawler.TagDone:
			// Strictly after Done, never before or during processing.
			// A crash in between only means the tag is redone next
			// run, which idempotent ingestion absorbs.
			if err := c.checkpoint.MarkComplete(tagID); err != nil {
				log.Error("failed to persist checkpoint",
					zap.String("tag", tagID),
					zap.Error(err),
				)
			}
			c.progress.tagCompleted()
		case crawler.TagAborted:
			c.progress.tagAborted()
		}
	}
	c.progress.setCurrentTag("")

	snap := c.progress.Snapshot()
	log.Info("crawl run finished",
		zap.Duration("elapsed", c.clock.Now().Sub(started)),
		zap.Int64("pages_fetched", snap.PagesFetched),
		zap.Int64("addresses_ingested", snap.AddressesIngested),
		zap.Int64("addresses_failed", snap.AddressesFailed),
		zap.Int64("tags_completed", snap.TagsCompleted),
		zap.Int64("tags_aborted", snap.TagsAborted),
		zap.Int64("tags_skipped", snap.TagsSkipped),
	)
	return ctx.Err()
}

// crawlTag runs the pagination state machine for one tag:
// Fetching(page) -> Processing(page) -> Fetching(page+1) | Done | Aborted.
func (c *Crawler) crawlTag(ctx context.Context, log *zap.Logger, tagID string) crawler.TagOutcome {
	log = log.With(zap.String("tag", tagID))
	log.Info("crawling tag")

	seen := make(map[string]struct{})
	prevCount := -1
	repeats := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			log.Info("tag crawl interrupted", zap.Int("page", page))
			return crawler.TagAborted
		}

		pg, err := c.fetcher.FetchPage(ctx, tagID, page)
		if err != nil {
			log.Error("page fetch failed, giving up on tag",
				zap.Int("page", page),
				zap.Error(err),
			)
			return crawler.TagAborted
		}
		c.progress.pageFetched()

		if len(pg.Addresses) == 0 {
			log.Info("no more addresses for tag", zap.Int("pages", page))
			return crawler.TagDone
		}

		// Duplicate tracking is diagnostic only; re-ingesting a
		// duplicate is a no-op, so nothing is suppressed.
		dups := 0
		for _, rec := range pg.Addresses {
			if _, ok := seen[rec.Address]; ok {
				dups++
			} else {
				seen[rec.Address] = struct{}{}
			}
		}
		if dups > 0 {
			log.Warn("page repeats addresses already seen in this run",
				zap.Int("page", page),
				zap.Int("duplicates", dups),
			)
		}

		c.processPage(ctx, log, tagID, pg)

		if !pg.HasMore {
			log.Info("upstream reports no further pages", zap.Int("pages", page))
			return crawler.TagDone
		}
		if page >= c.cfg.MaxPages {
			log.Warn("max page ceiling reached for tag", zap.Int("pages", page))
			return crawler.TagDone
		}

		if len(pg.Addresses) == prevCount {
			repeats++
		} else {
			repeats = 0
		}
		prevCount = len(pg.Addresses)
		if repeats > c.cfg.LoopRepeatThreshold && page > c.cfg.LoopPageThreshold {
			log.Warn("pagination loop suspected, aborting tag",
				zap.Int("page", page),
				zap.Int("repeated_count", prevCount),
				zap.Int("repeats", repeats),
			)
			return crawler.TagAborted
		}
	}
}

// processPage ingests every address on the page. A failing address is
// logged and skipped; it never aborts the page or the tag.
func (c *Crawler) processPage(ctx context.Context, log *zap.Logger, tagID string, pg crawler.Page) {
	var created, existing, failed int
	for _, rec := range pg.Addresses {
		result, err := c.store.UpsertAddress(ctx, rec)
		if err != nil {
			failed++
			c.progress.addressFailed()
			metrics.ObserveIngestFailure()
			log.Error("address upsert failed, skipping",
				zap.Int("page", pg.Number),
				zap.String("address", rec.Address),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveAddressIngested(result.String())

		if err := c.store.UpsertTags(ctx, rec.Address, rec.Chain, c.classifyTags(tagID, rec)); err != nil {
			failed++
			c.progress.addressFailed()
			metrics.ObserveIngestFailure()
			log.Error("tag association failed, skipping address",
				zap.Int("page", pg.Number),
				zap.String("address", rec.Address),
				zap.Error(err),
			)
			continue
		}

		c.progress.addressIngested()
		if result == crawler.Created {
			created++
		} else {
			existing++
		}
	}
	log.Info("page processed",
		zap.Int("page", pg.Number),
		zap.Int("created", created),
		zap.Int("existing", existing),
		zap.Int("failed", failed),
	)
}

// classifyTags groups the record's tags by taxonomy category and seeds
// the crawled tag itself, so every address found under tag T carries
// the (address, T) relation even when the API omits it.
func (c *Crawler) classifyTags(tagID string, rec crawler.AddressRecord) crawler.TagsByCategory {
	out := crawler.TagsByCategory{}
	added := make(map[string]struct{})

	seed := crawler.TagRecord{ID: tagID, Label: c.taxonomy.DisplayNameOf(tagID)}
	out[c.taxonomy.CategoryOf(tagID)] = []crawler.TagRecord{seed}
	added[tagID] = struct{}{}

	for _, tag := range rec.Tags {
		if tag.ID == "" {
			continue
		}
		if _, dup := added[tag.ID]; dup {
			continue
		}
		added[tag.ID] = struct{}{}
		category := c.taxonomy.CategoryOf(tag.ID)
		out[category] = append(out[category], tag)
	}
	return out
}
