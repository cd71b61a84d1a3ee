package writer

import (
	"fmt"
	"strings"

	"github.com/paperscope/paperscope/pkg/enrich"
	"github.com/paperscope/paperscope/pkg/llm"
)

const writerSystemPrompt = `You are an academic writer producing a literature review in markdown.
Structure the report with one "# " title and "## " section headers.
Cite evidence using exactly the in-text references provided in the citation registry; never invent references.
Every factual claim about prior work needs a citation.`

func buildWriterPrompt(input *Input, registry *CitationRegistry) *llm.GenerateInput {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write a comprehensive research report answering: %s\n\n", input.Plan.MainQuestion)
	if len(input.Plan.SubQuestions) > 0 {
		sb.WriteString("Address these sub-questions:\n")
		for _, q := range input.Plan.SubQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
		sb.WriteByte('\n')
	}
	if len(input.Plan.ExpectedSections) > 0 {
		fmt.Fprintf(&sb, "Use this section structure: %s\n\n", strings.Join(input.Plan.ExpectedSections, ", "))
	}

	if len(input.Rounds) > 0 {
		sb.WriteString("Searches executed to gather the source material:\n")
		for _, r := range input.Rounds {
			fmt.Fprintf(&sb, "- %q (%d papers)\n", r.Query.Query, len(r.PaperIDs))
		}
		sb.WriteString("Scope the report to what these searches cover; note coverage limits where relevant.\n\n")
	}

	sb.WriteString("Citation registry (use these exact in-text references):\n")
	for _, c := range registry.Citations() {
		fmt.Fprintf(&sb, "%s %s (%d). %s\n", c.InTextRef, c.Authors, c.Year, c.Title)
	}
	sb.WriteByte('\n')

	formatted := enrich.FormatForStage(input.Papers, enrich.StageWriting, nil, input.TokenBudget)
	sb.WriteString("Source material:\n")
	for _, fp := range formatted {
		sb.WriteString(fp.Content)
		sb.WriteString("\n\n")
	}

	if input.CriticFeedback != nil && input.Iteration > 0 {
		fmt.Fprintf(&sb, "This is revision %d. Reviewer feedback on the previous draft:\n", input.Iteration)
		if input.CriticFeedback.Feedback != "" {
			fmt.Fprintf(&sb, "%s\n", input.CriticFeedback.Feedback)
		}
		for _, gap := range input.CriticFeedback.GapsIdentified {
			fmt.Fprintf(&sb, "- gap: %s\n", gap)
		}
		for _, w := range input.CriticFeedback.Weaknesses {
			fmt.Fprintf(&sb, "- weakness: %s\n", w)
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("Do not include a References section; it is appended separately.")

	return &llm.GenerateInput{
		System:   writerSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
	}
}
