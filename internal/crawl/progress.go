package crawl

import "sync"

// Progress tracks live counters for the status API. All methods are
// safe for concurrent use; the crawler writes, the HTTP handler reads.
type Progress struct {
	mu                sync.Mutex
	currentTag        string
	pagesFetched      int64
	addressesIngested int64
	addressesFailed   int64
	tagsCompleted     int64
	tagsAborted       int64
	tagsSkipped       int64
}

// Snapshot is a point-in-time copy of the crawl counters.
type Snapshot struct {
	CurrentTag        string `json:"current_tag,omitempty"`
	PagesFetched      int64  `json:"pages_fetched"`
	AddressesIngested int64  `json:"addresses_ingested"`
	AddressesFailed   int64  `json:"addresses_failed"`
	TagsCompleted     int64  `json:"tags_completed"`
	TagsAborted       int64  `json:"tags_aborted"`
	TagsSkipped       int64  `json:"tags_skipped"`
}

// Snapshot returns a copy of the current counters.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		CurrentTag:        p.currentTag,
		PagesFetched:      p.pagesFetched,
		AddressesIngested: p.addressesIngested,
		AddressesFailed:   p.addressesFailed,
		TagsCompleted:     p.tagsCompleted,
		TagsAborted:       p.tagsAborted,
		TagsSkipped:       p.tagsSkipped,
	}
}

func (p *Progress) setCurrentTag(tagID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTag = tagID
}

func (p *Progress) pageFetched() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pagesFetched++
}

func (p *Progress) addressIngested() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addressesIngested++
}

func (p *Progress) addressFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addressesFailed++
}

func (p *Progress) tagCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tagsCompleted++
}

func (p *Progress) tagAborted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tagsAborted++
}

func (p *Progress) tagSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tagsSkipped++
}
