// Package crawler defines core types shared across the ingest pipeline.
package crawler

// TagRecord is the normalized form of a tag regardless of how the
// upstream API shaped it (bare identifier, {id,label} object, nested
// under different response keys).
type TagRecord struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	UnifiedType string `json:"unified_type,omitempty"`
}

// TagsByCategory groups tag records under their category name.
type TagsByCategory map[string][]TagRecord

// AddressRecord is one address entry parsed from an API page.
type AddressRecord struct {
	Address    string      `json:"address"`
	Chain      string      `json:"chain"`
	EntityName string      `json:"entity_name"`
	EntityType string      `json:"entity_type"`
	Tags       []TagRecord `json:"tags,omitempty"`
}

// Page is the parsed result of one fetch for a (tag, page) pair.
type Page struct {
	Number    int
	Addresses []AddressRecord
	// HasMore mirrors the upstream continuation flag. When the API
	// omits it the zero value terminates pagination, which is the
	// conservative choice.
	HasMore bool
}

// UpsertResult reports whether an upsert created a new row or found an
// existing one.
type UpsertResult int

// Upsert outcomes.
const (
	Created UpsertResult = iota
	AlreadyExisted
)

// String implements fmt.Stringer for log fields.
func (r UpsertResult) String() string {
	if r == Created {
		return "created"
	}
	return "already_existed"
}

// TagOutcome is the terminal state of one tag's crawl.
type TagOutcome string

// Terminal states for a tag crawl. Only TagDone permits marking the
// tag complete in the checkpoint.
const (
	TagDone    TagOutcome = "done"
	TagAborted TagOutcome = "aborted"
	TagSkipped TagOutcome = "skipped"
)
