package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeProgressWeights(t *testing.T) {
	c := &Checklist{
		SessionID: "s1",
		Items: []ChecklistItem{
			{ID: "1", Status: ChecklistVerified},
			{ID: "2", Status: ChecklistPartiallyVerified},
			{ID: "3", Status: ChecklistPending},
			{ID: "4", Status: ChecklistFailed},
		},
	}
	assert.InDelta(t, 37.5, c.RecomputeProgress(), 0.001)
}

func TestRecomputeProgressExcludesNotApplicable(t *testing.T) {
	c := &Checklist{
		Items: []ChecklistItem{
			{ID: "1", Status: ChecklistVerified},
			{ID: "2", Status: ChecklistNotApplicable},
		},
	}
	assert.InDelta(t, 100.0, c.RecomputeProgress(), 0.001)
}

func TestRecomputeProgressEmpty(t *testing.T) {
	c := &Checklist{}
	assert.Zero(t, c.RecomputeProgress())
}

func TestPendingItemsReturnsMutableRefs(t *testing.T) {
	c := &Checklist{
		Items: []ChecklistItem{
			{ID: "1", Status: ChecklistPending},
			{ID: "2", Status: ChecklistVerified},
			{ID: "3", Status: ChecklistInProgress},
		},
	}
	pending := c.PendingItems()
	require.Len(t, pending, 2)
	pending[0].Status = ChecklistVerified
	assert.Equal(t, ChecklistVerified, c.Items[0].Status)
}

func TestChecklistJSONRoundTrip(t *testing.T) {
	c := Checklist{
		SessionID: "s1",
		Items: []ChecklistItem{{
			ID:          "1",
			Requirement: "All claims cited",
			Criteria:    "Every factual statement carries an in-text reference",
			Priority:    "high",
			Status:      ChecklistVerified,
			Evidence:    []string{"section 3"},
			SourceIDs:   []string{"oa-1"},
		}},
	}
	c.RecomputeProgress()

	data, err := json.Marshal(c)
	require.NoError(t, err)
	var got Checklist
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, c, got)
}
