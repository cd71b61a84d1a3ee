package planner

import (
	"context"
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
		MaxTokens:     2048,
	}, nil)
}

const validPlanJSON = `{
  "main_question": "How do transformers scale?",
  "sub_questions": ["What are scaling laws?", "How does sparsity help?", "What are the limits?"],
  "search_strategies": [
    {"query": "transformer scaling laws", "reasoning": "direct"},
    {"query": "sparse attention efficiency", "reasoning": "sub-topic"},
    {"query": "large language model limits survey", "reasoning": "surveys"}
  ],
  "expected_sections": ["Abstract", "Introduction", "Conclusion"]
}`

func TestCreatePlan(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse(validPlanJSON))
	p := New(testCaller(mock))

	plan, err := p.CreatePlan(context.Background(), "How do transformers scale?")
	require.NoError(t, err)
	assert.Equal(t, "How do transformers scale?", plan.MainQuestion)
	assert.Len(t, plan.SubQuestions, 3)
	assert.Len(t, plan.SearchStrategies, 3)
	assert.Equal(t, "transformer scaling laws", plan.SearchStrategies[0].Query)
	assert.Equal(t, []string{"Abstract", "Introduction", "Conclusion"}, plan.ExpectedSections)
}

func TestCreatePlanRejectsOutOfRangeCounts(t *testing.T) {
	tooFew := `{"main_question": "q", "sub_questions": ["a"], "search_strategies": [
		{"query":"x"},{"query":"y"},{"query":"z"}], "expected_sections": []}`
	mock := llm.NewMockClient(
		llm.TextResponse(tooFew),
		llm.TextResponse(validPlanJSON),
	)
	p := New(testCaller(mock))

	plan, err := p.CreatePlan(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, plan.SubQuestions, 3)
	assert.Len(t, mock.Calls(), 2)
}

func TestCreatePlanSynthesizesMinimalPlanOnFailure(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse("no json here"))
	p := New(testCaller(mock))

	plan, err := p.CreatePlan(context.Background(), "quantum error correction")
	require.NoError(t, err)
	assert.Equal(t, "quantum error correction", plan.MainQuestion)
	assert.GreaterOrEqual(t, len(plan.SubQuestions), 3)
	assert.GreaterOrEqual(t, len(plan.SearchStrategies), 3)
	assert.Equal(t, "quantum error correction", plan.SearchStrategies[0].Query)
}

func TestRefineQuery(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse(`{"query": "transformer scaling laws empirical study"}`))
	p := New(testCaller(mock))

	filters := &models.SearchFilters{YearFrom: 2020}
	refined := p.RefineQuery(context.Background(),
		models.SearchQuery{Query: "transformers", Filters: filters}, 1, "too few results")
	assert.Equal(t, "transformer scaling laws empirical study", refined.Query)
	assert.Equal(t, filters, refined.Filters)
	assert.Equal(t, "light", mock.Calls()[0].Model)
}

func TestRefineQueryKeepsOriginalOnFailure(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse("garbage"))
	p := New(testCaller(mock))

	original := models.SearchQuery{Query: "transformers"}
	refined := p.RefineQuery(context.Background(), original, 0, "")
	assert.Equal(t, original, refined)
}

func TestRefineFromFeedbackShortCircuits(t *testing.T) {
	mock := llm.NewMockClient()
	p := New(testCaller(mock))

	critic := &models.CriticAnalysis{Scores: models.CriticScores{Overall: 85}}
	refinement, err := p.RefineFromFeedback(context.Background(), &models.ResearchPlan{}, critic, nil)
	require.NoError(t, err)
	assert.True(t, refinement.Empty())
	assert.Empty(t, mock.Calls())
}

func TestRefineFromFeedback(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse(`{
	  "additional_sub_questions": ["What about energy costs?"],
	  "additional_search_strategies": [{"query": "LLM training energy consumption", "reasoning": "gap"}],
	  "reasoning": "coverage gap on cost",
	  "gap_mappings": {"energy costs": ["LLM training energy consumption"]}
	}`))
	p := New(testCaller(mock))

	critic := &models.CriticAnalysis{
		Scores:         models.CriticScores{Overall: 65},
		GapsIdentified: []string{"energy costs"},
		ShouldIterate:  true,
	}
	refinement, err := p.RefineFromFeedback(context.Background(),
		&models.ResearchPlan{MainQuestion: "q", SubQuestions: []string{"a"}},
		critic, []string{"Existing paper"})
	require.NoError(t, err)
	assert.False(t, refinement.Empty())
	require.Len(t, refinement.AdditionalSearchStrategies, 1)
	assert.Equal(t, "LLM training energy consumption", refinement.AdditionalSearchStrategies[0].Query)
	assert.Equal(t, []string{"LLM training energy consumption"}, refinement.GapMappings["energy costs"])
}
