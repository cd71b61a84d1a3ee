package models

// SearchStrategy is one planned query with the reasoning behind it.
type SearchStrategy struct {
	Query     string `json:"query"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ResearchPlan is the planner's decomposition of the research question.
// Only the planner mutates a plan; refinement appends, never removes.
type ResearchPlan struct {
	MainQuestion     string           `json:"main_question"`
	SubQuestions     []string         `json:"sub_questions"`
	SearchStrategies []SearchStrategy `json:"search_strategies"`
	ExpectedSections []string         `json:"expected_sections"`
}

// PlanRefinement is the planner's response to critic feedback: additional
// sub-questions and strategies plus a mapping from each identified gap to
// the targeted queries that should close it.
type PlanRefinement struct {
	AdditionalSubQuestions     []string            `json:"additional_sub_questions,omitempty"`
	AdditionalSearchStrategies []SearchStrategy    `json:"additional_search_strategies,omitempty"`
	RefinedSections            []string            `json:"refined_sections,omitempty"`
	Reasoning                  string              `json:"reasoning,omitempty"`
	GapMappings                map[string][]string `json:"gap_mappings,omitempty"`
}

// Empty reports whether the refinement adds nothing to the plan.
func (r *PlanRefinement) Empty() bool {
	return r == nil ||
		(len(r.AdditionalSubQuestions) == 0 &&
			len(r.AdditionalSearchStrategies) == 0 &&
			len(r.RefinedSections) == 0)
}
