package planner

import (
	"fmt"
	"strings"

	"github.com/paperscope/paperscope/pkg/models"
)

const plannerSystemPrompt = `You are a research planning assistant for academic literature reviews.
You always answer with a single JSON object matching the requested schema, with no prose around it.`

func createPlanPrompt(query string) string {
	return fmt.Sprintf(`Decompose the following research question into a literature investigation plan.

Research question: %s

Answer with JSON:
{
  "main_question": "the research question, possibly sharpened",
  "sub_questions": ["3 to 5 sub-questions that together cover the main question"],
  "search_strategies": [{"query": "a database search query", "reasoning": "why this query"}],
  "expected_sections": ["ordered section titles for the final report"]
}

Provide 3 to 6 search strategies. Queries should use terminology a scholarly search engine understands.`, query)
}

func refineQueryPrompt(original string, prevPapers int, context string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The search query %q returned %d useful papers.\n", original, prevPapers)
	if context != "" {
		fmt.Fprintf(&sb, "Context: %s\n", context)
	}
	sb.WriteString(`Rewrite it into a single better query (broader if too few results, more precise if too noisy).

Answer with JSON: {"query": "the rewritten query"}`)
	return sb.String()
}

func refinePlanPrompt(plan *models.ResearchPlan, critic *models.CriticAnalysis, existingTitles []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current research plan for %q:\n", plan.MainQuestion)
	for _, q := range plan.SubQuestions {
		fmt.Fprintf(&sb, "- %s\n", q)
	}
	if critic != nil {
		fmt.Fprintf(&sb, "\nCritic scores: overall %.0f, coverage %.0f.\n", critic.Scores.Overall, critic.Scores.Coverage)
		if len(critic.GapsIdentified) > 0 {
			sb.WriteString("Identified gaps:\n")
			for _, g := range critic.GapsIdentified {
				fmt.Fprintf(&sb, "- %s\n", g)
			}
		}
		if critic.Feedback != "" {
			fmt.Fprintf(&sb, "Feedback: %s\n", critic.Feedback)
		}
	}
	if len(existingTitles) > 0 {
		sb.WriteString("\nPapers already collected (do not search for these again):\n")
		for i, title := range existingTitles {
			if i == 30 {
				break
			}
			fmt.Fprintf(&sb, "- %s\n", title)
		}
	}
	sb.WriteString(`
Propose targeted additions that close the gaps. Answer with JSON:
{
  "additional_sub_questions": ["..."],
  "additional_search_strategies": [{"query": "...", "reasoning": "..."}],
  "refined_sections": ["full ordered section list, only if it should change"],
  "reasoning": "one paragraph",
  "gap_mappings": {"gap text": ["query that addresses it"]}
}`)
	return sb.String()
}
