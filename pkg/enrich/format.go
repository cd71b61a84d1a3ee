package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paperscope/paperscope/pkg/models"
)

// Stage names the workflow phase consuming paper content. Each stage
// has its own minimum availability, preferred sections and per-paper
// token ceiling.
type Stage string

const (
	StagePlanning  Stage = "planning"
	StageSearching Stage = "searching"
	StageFiltering Stage = "filtering"
	StageAnalyzing Stage = "analyzing"
	StageWriting   Stage = "writing"
	StageCiting    Stage = "citing"
)

type stageProfile struct {
	minLevel          models.DataAvailability
	preferredSections []models.SectionType
	maxTokensPerPaper int
}

var stageProfiles = map[Stage]stageProfile{
	StagePlanning:  {models.MetadataOnly, nil, 100},
	StageSearching: {models.WithAbstract, []models.SectionType{models.SectionAbstract}, 500},
	StageFiltering: {models.WithAbstract, []models.SectionType{models.SectionAbstract, models.SectionIntroduction, models.SectionConclusion}, 1000},
	StageAnalyzing: {models.WithFullText, []models.SectionType{models.SectionMethods, models.SectionResults, models.SectionDiscussion}, 4000},
	StageWriting:   {models.WithAbstract, []models.SectionType{models.SectionAbstract, models.SectionIntroduction, models.SectionConclusion}, 2000},
	StageCiting:    {models.WithAbstract, []models.SectionType{models.SectionAbstract}, 500},
}

// truncationMarker flags content cut to fit the budget.
const truncationMarker = " [...]"

// FormattedPaper is one paper rendered for an LLM prompt.
type FormattedPaper struct {
	PaperID   string `json:"paper_id"`
	Content   string `json:"content"`
	Tokens    int    `json:"tokens"`
	Truncated bool   `json:"truncated"`
}

// EstimateTokens approximates token count as chars/4.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// MinLevelFor returns the availability level a stage wants papers at.
func MinLevelFor(stage Stage) models.DataAvailability {
	return stageProfiles[stage].minLevel
}

// FormatForStage renders papers for one workflow stage under the global
// token budget. Priority papers are served first, then the rest by
// descending availability; each paper is capped at the stage's
// per-paper ceiling and truncated with a marker when it does not fit.
func FormatForStage(papers []*models.Paper, stage Stage, priorityIDs []string, budget int) []FormattedPaper {
	profile, ok := stageProfiles[stage]
	if !ok {
		profile = stageProfiles[StageWriting]
	}
	if budget <= 0 {
		budget = 16000
	}

	priority := make(map[string]int, len(priorityIDs))
	for i, id := range priorityIDs {
		priority[id] = i + 1
	}
	ordered := make([]*models.Paper, len(papers))
	copy(ordered, papers)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priority[ordered[i].ID], priority[ordered[j].ID]
		if (pi > 0) != (pj > 0) {
			return pi > 0
		}
		if pi > 0 && pj > 0 {
			return pi < pj
		}
		return ordered[i].Availability > ordered[j].Availability
	})

	var out []FormattedPaper
	remaining := budget
	for _, p := range ordered {
		if remaining <= 0 {
			break
		}
		content := renderPaper(p, profile.preferredSections)
		if content == "" {
			continue
		}
		limit := profile.maxTokensPerPaper
		if limit > remaining {
			limit = remaining
		}
		fp := FormattedPaper{PaperID: p.ID, Content: content}
		if EstimateTokens(content) > limit {
			fp.Content = content[:limit*4] + truncationMarker
			fp.Truncated = true
		}
		fp.Tokens = EstimateTokens(fp.Content)
		remaining -= fp.Tokens
		out = append(out, fp)
	}
	return out
}

// renderPaper builds the prompt text for one paper: header line, then
// the preferred sections that exist, falling back to abstract.
func renderPaper(p *models.Paper, preferred []models.SectionType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", p.ID, p.Title)
	if p.Year != 0 {
		fmt.Fprintf(&sb, " (%d)", p.Year)
	}
	if len(p.Authors) > 0 {
		names := make([]string, 0, 3)
		for i, a := range p.Authors {
			if i == 3 {
				names = append(names, "et al.")
				break
			}
			names = append(names, a.Name)
		}
		fmt.Fprintf(&sb, " by %s", strings.Join(names, ", "))
	}
	sb.WriteByte('\n')

	wrote := false
	for _, want := range preferred {
		if want == models.SectionAbstract && p.Abstract != "" {
			fmt.Fprintf(&sb, "Abstract: %s\n", p.Abstract)
			wrote = true
			continue
		}
		for _, sec := range p.Sections {
			if sec.Type == want && sec.Content != "" {
				fmt.Fprintf(&sb, "%s: %s\n", capitalize(string(sec.Type)), sec.Content)
				wrote = true
			}
		}
	}
	if !wrote && p.Abstract != "" && len(preferred) > 0 {
		fmt.Fprintf(&sb, "Abstract: %s\n", p.Abstract)
	}
	return strings.TrimSpace(sb.String())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
