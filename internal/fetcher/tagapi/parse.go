package tagapi

import (
	"encoding/json"
	"fmt"

	"github.com/chainintel/tagcrawler/internal/crawler"
)

// The upstream response shape drifted over time: entity fields appear
// flat or nested, and per-address tags appear under "tags" or
// "populatedTags", as objects or bare identifiers. Everything is
// normalized here, at the parsing boundary, into crawler.AddressRecord.

type pageEnvelope struct {
	Addresses []addressPayload `json:"addresses"`
	HasMore   bool             `json:"hasMore"`
}

type addressPayload struct {
	Address       string         `json:"address"`
	Chain         string         `json:"chain"`
	EntityName    string         `json:"entityName"`
	EntityType    string         `json:"entityType"`
	Entity        *entityPayload `json:"entity"`
	Tags          []tagPayload   `json:"tags"`
	PopulatedTags []tagPayload   `json:"populatedTags"`
}

type entityPayload struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type tagPayload struct {
	ID          string
	Label       string
	UnifiedType string
}

// UnmarshalJSON accepts either a bare identifier string or an
// {id,label,unifiedType} object.
func (t *tagPayload) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		t.ID = id
		return nil
	}
	var obj struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		UnifiedType string `json:"unifiedType"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.ID = obj.ID
	t.Label = obj.Label
	t.UnifiedType = obj.UnifiedType
	return nil
}

func parsePage(body []byte, number int) (crawler.Page, error) {
	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return crawler.Page{}, fmt.Errorf("parse page body: %w", err)
	}

	pg := crawler.Page{
		Number:    number,
		HasMore:   envelope.HasMore,
		Addresses: make([]crawler.AddressRecord, 0, len(envelope.Addresses)),
	}
	for _, payload := range envelope.Addresses {
		if payload.Address == "" {
			continue
		}
		pg.Addresses = append(pg.Addresses, normalizeAddress(payload))
	}
	return pg, nil
}

func normalizeAddress(payload addressPayload) crawler.AddressRecord {
	rec := crawler.AddressRecord{
		Address:    payload.Address,
		Chain:      payload.Chain,
		EntityName: payload.EntityName,
		EntityType: payload.EntityType,
	}
	if rec.Chain == "" {
		rec.Chain = "unknown"
	}
	if payload.Entity != nil {
		if rec.EntityName == "" {
			rec.EntityName = payload.Entity.Name
		}
		if rec.EntityType == "" {
			rec.EntityType = payload.Entity.Type
		}
	}

	raw := payload.Tags
	if len(raw) == 0 {
		raw = payload.PopulatedTags
	}
	for _, t := range raw {
		if t.ID == "" {
			continue
		}
		label := t.Label
		if label == "" {
			label = t.ID
		}
		rec.Tags = append(rec.Tags, crawler.TagRecord{
			ID:          t.ID,
			Label:       label,
			UnifiedType: t.UnifiedType,
		})
	}
	return rec
}
