// Package checkpoint persists the set of fully-processed tags so a
// restarted run skips completed work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Checkpoint is a durable set of completed tag identifiers backed by a
// JSON file. It lives outside the relational store so completions
// survive independently of transaction boundaries.
type Checkpoint struct {
	path string

	mu   sync.Mutex
	done map[string]bool
}

// Load reads the checkpoint file. A missing file yields an empty
// checkpoint; a corrupt one is an error so a typo'd path cannot
// silently restart the whole crawl over a fresh file.
func Load(path string) (*Checkpoint, error) {
	c := &Checkpoint{path: path, done: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}
	if err := json.Unmarshal(data, &c.done); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	return c, nil
}

// IsComplete reports whether a tag's crawl finished in a previous or
// the current run.
func (c *Checkpoint) IsComplete(tagID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[tagID]
}

// MarkComplete records the tag and persists the full set. The write is
// atomic (temp file + rename) so a crash mid-write never loses
// previously recorded completions.
func (c *Checkpoint) MarkComplete(tagID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[tagID] = true
	return c.persist()
}

// Snapshot returns the completed tag identifiers, sorted.
func (c *Checkpoint) Snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.done))
	for tagID, ok := range c.done {
		if ok {
			out = append(out, tagID)
		}
	}
	sort.Strings(out)
	return out
}

// Len reports how many tags are recorded complete.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

func (c *Checkpoint) persist() error {
	data, err := json.MarshalIndent(c.done, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint file: %w", err)
	}
	return nil
}
