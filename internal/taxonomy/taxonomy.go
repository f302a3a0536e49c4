// Package taxonomy builds the in-memory tag classification from the
// taxonomy document supplied at startup.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultCategory is the bucket for tags discovered dynamically in API
// responses that the taxonomy document does not know about.
const DefaultCategory = "API_Tags"

// Entry is one tag descriptor inside a category of the taxonomy
// document.
type Entry struct {
	ID   string `json:"link"`
	Name string `json:"name"`
}

// Taxonomy maps tag identifiers to category names and display names.
type Taxonomy struct {
	document   map[string][]Entry
	categories map[string]string
	names      map[string]string
	order      []string
}

// Load reads and parses the taxonomy document. The document is a JSON
// object keyed by category name, each value a list of tag descriptors.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	var document map[string][]Entry
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parse taxonomy file: %w", err)
	}
	return New(document), nil
}

// New builds a Taxonomy from an already-parsed document.
func New(document map[string][]Entry) *Taxonomy {
	t := &Taxonomy{
		document:   document,
		categories: make(map[string]string),
		names:      make(map[string]string),
	}
	for category, entries := range document {
		for _, entry := range entries {
			if entry.ID == "" {
				continue
			}
			if _, dup := t.categories[entry.ID]; dup {
				continue
			}
			t.categories[entry.ID] = category
			t.names[entry.ID] = entry.Name
			t.order = append(t.order, entry.ID)
		}
	}
	return t
}

// CategoryOf returns the category for a tag identifier, falling back
// to DefaultCategory for tags absent from the document.
func (t *Taxonomy) CategoryOf(tagID string) string {
	if category, ok := t.categories[tagID]; ok {
		return category
	}
	return DefaultCategory
}

// DisplayNameOf returns the display name for a tag identifier, or the
// identifier itself when unknown.
func (t *Taxonomy) DisplayNameOf(tagID string) string {
	if name, ok := t.names[tagID]; ok && name != "" {
		return name
	}
	return tagID
}

// TagIDs returns every known tag identifier. Iteration is stable
// within a category but map iteration makes the category order vary
// between runs; the checkpoint makes that harmless.
func (t *Taxonomy) TagIDs() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Document exposes the raw category-to-entries mapping for priming the
// relational store before the crawl starts.
func (t *Taxonomy) Document() map[string][]Entry {
	return t.document
}

// Len reports how many tags the taxonomy holds.
func (t *Taxonomy) Len() int {
	return len(t.order)
}
