package tagapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePageVariants(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"addresses": [
			{"address": "a1", "chain": "bitcoin", "entityName": "Flat", "entityType": "miner"},
			{"address": "a2", "entity": {"name": "Nested", "type": "exchange"}},
			{"address": "a3", "tags": [{"id": "t1", "label": "Tag One"}, {"id": "", "label": "dropped"}]},
			{"address": "a4", "populatedTags": ["t2", {"id": "t3", "label": "Three", "unifiedType": "cex"}]},
			{"address": "", "chain": "ethereum"}
		],
		"hasMore": false
	}`)

	pg, err := parsePage(body, 7)
	require.NoError(t, err)
	require.Equal(t, 7, pg.Number)
	require.False(t, pg.HasMore)

	// The record without an address string is dropped.
	require.Len(t, pg.Addresses, 4)

	require.Equal(t, "bitcoin", pg.Addresses[0].Chain)
	require.Equal(t, "Flat", pg.Addresses[0].EntityName)

	require.Equal(t, "unknown", pg.Addresses[1].Chain)
	require.Equal(t, "Nested", pg.Addresses[1].EntityName)
	require.Equal(t, "exchange", pg.Addresses[1].EntityType)

	// Tag without identifier is dropped.
	require.Len(t, pg.Addresses[2].Tags, 1)
	require.Equal(t, "t1", pg.Addresses[2].Tags[0].ID)

	tags := pg.Addresses[3].Tags
	require.Len(t, tags, 2)
	require.Equal(t, "t2", tags[0].ID)
	require.Equal(t, "t2", tags[0].Label)
	require.Equal(t, "t3", tags[1].ID)
	require.Equal(t, "Three", tags[1].Label)
	require.Equal(t, "cex", tags[1].UnifiedType)
}

func TestParsePageMissingContinuationFlag(t *testing.T) {
	t.Parallel()

	pg, err := parsePage([]byte(`{"addresses": [{"address": "a1"}]}`), 1)
	require.NoError(t, err)
	require.False(t, pg.HasMore)
	require.Len(t, pg.Addresses, 1)
}

func TestParsePageRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	_, err := parsePage([]byte(`[]`), 1)
	require.Error(t, err)
}

func TestFlatEntityFieldsWinOverNested(t *testing.T) {
	t.Parallel()

	pg, err := parsePage([]byte(`{
		"addresses": [
			{"address": "a1", "entityName": "Flat", "entity": {"name": "Nested", "type": "fund"}}
		]
	}`), 1)
	require.NoError(t, err)
	require.Equal(t, "Flat", pg.Addresses[0].EntityName)
	require.Equal(t, "fund", pg.Addresses[0].EntityType)
}
