package checklist

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
)

func testCaller(mock *llm.MockClient) *llm.Caller {
	return llm.NewCaller(mock, config.LLMConfig{
		PrimaryModel:  "primary",
		FallbackModel: "fallback",
		LightModel:    "light",
	}, nil)
}

func generatedItemsJSON(n int) string {
	var items []string
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(
			`{"requirement": "req %d", "criteria": "crit %d", "priority": "high", "category": "coverage"}`, i, i))
	}
	return `{"items": [` + strings.Join(items, ",") + `]}`
}

func testPlan() *models.ResearchPlan {
	return &models.ResearchPlan{
		MainQuestion: "How do transformers scale?",
		SubQuestions: []string{"scaling laws", "sparse attention", "hardware limits"},
	}
}

func TestBuildAppendsCoreItems(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse(generatedItemsJSON(8)))
	b := New(testCaller(mock))

	checklist := b.Build(context.Background(), "sess-1", testPlan())
	require.Len(t, checklist.Items, 11)
	assert.Equal(t, "check-1", checklist.Items[0].ID)
	assert.Equal(t, models.ChecklistPending, checklist.Items[0].Status)

	last := checklist.Items[len(checklist.Items)-1]
	assert.Contains(t, last.Requirement, "60%")
	assert.Contains(t, checklist.Items[8].Requirement, "factual claims")
	assert.Equal(t, 0.0, checklist.OverallProgress)
}

func TestBuildRejectsOutOfRangeCounts(t *testing.T) {
	mock := llm.NewMockClient(
		llm.TextResponse(generatedItemsJSON(3)),
		llm.TextResponse(generatedItemsJSON(10)),
	)
	b := New(testCaller(mock))

	checklist := b.Build(context.Background(), "sess-2", testPlan())
	assert.Len(t, checklist.Items, 13)
	assert.Len(t, mock.Calls(), 2)
}

func TestBuildFallsBackToPlanSkeleton(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse("not json"))
	b := New(testCaller(mock))

	checklist := b.Build(context.Background(), "sess-3", testPlan())
	// Three sub-question items plus the three core items.
	require.Len(t, checklist.Items, 6)
	assert.Contains(t, checklist.Items[0].Requirement, "scaling laws")
	assert.Equal(t, "coverage", checklist.Items[0].Category)
}

func TestVerifyUpdatesStatusesAndProgress(t *testing.T) {
	mock := llm.NewMockClient(
		llm.TextResponse(`{"status": "verified", "evidence": ["covered in section 2"], "source_ids": ["s2-1"], "reasoning": "r"}`),
		llm.TextResponse(`{"status": "partially_verified", "evidence": ["mentioned briefly"], "source_ids": [], "reasoning": "r"}`),
	)
	b := New(testCaller(mock))

	checklist := &models.Checklist{
		SessionID: "sess-4",
		Items: []models.ChecklistItem{
			{ID: "check-1", Requirement: "a", Status: models.ChecklistPending},
			{ID: "check-2", Requirement: "b", Status: models.ChecklistPending},
			{ID: "check-3", Requirement: "c", Status: models.ChecklistVerified},
		},
	}
	b.Verify(context.Background(), checklist, &models.ResearchReport{Content: "report"})

	assert.Equal(t, models.ChecklistVerified, checklist.Items[0].Status)
	assert.Equal(t, []string{"s2-1"}, checklist.Items[0].SourceIDs)
	assert.Equal(t, models.ChecklistPartiallyVerified, checklist.Items[1].Status)
	// (1 + 0.5 + 1) / 3 items.
	assert.InDelta(t, 83.3, checklist.OverallProgress, 0.1)
	// Already-verified item is not re-checked.
	assert.Len(t, mock.Calls(), 2)
}

func TestVerifyMarksFailedOnItemError(t *testing.T) {
	mock := llm.NewMockClient(
		llm.TextResponse("garbage"),
		llm.TextResponse("garbage"),
		llm.TextResponse("garbage"),
		llm.TextResponse(`{"status": "verified", "evidence": [], "source_ids": [], "reasoning": "r"}`),
	)
	b := New(testCaller(mock))

	checklist := &models.Checklist{
		SessionID: "sess-5",
		Items: []models.ChecklistItem{
			{ID: "check-1", Requirement: "a", Status: models.ChecklistPending},
			{ID: "check-2", Requirement: "b", Status: models.ChecklistPending},
		},
	}
	b.Verify(context.Background(), checklist, &models.ResearchReport{Content: "report"})

	assert.Equal(t, models.ChecklistFailed, checklist.Items[0].Status)
	assert.Equal(t, models.ChecklistVerified, checklist.Items[1].Status)
	assert.InDelta(t, 50.0, checklist.OverallProgress, 0.1)
}
