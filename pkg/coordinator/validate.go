package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
	"github.com/paperscope/paperscope/pkg/writer"
)

// titleMatchThreshold is the trigram Jaccard similarity above which a
// Crossref title confirms a citation.
const titleMatchThreshold = 0.7

// validatePhase checks every citation against Crossref and samples one
// claim per citation for LLM support checking. Validation never fails
// the workflow; problems become CitationValidation records.
func (r *run) validatePhase(ctx context.Context) {
	r.setState(ctx, StateValidating)
	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "validating", StepType: "validate_citations",
		TitleEn: "Validating citations", TitleZh: "校验引用",
		Meta: map[string]any{"citations": len(r.report.Citations)},
	})

	papers := r.papersByID()
	issues := 0
	for _, citation := range r.report.Citations {
		v := r.validateCitation(ctx, citation, papers)
		if v.Issue != "" {
			issues++
		}
		r.validations = append(r.validations, v)
	}
	r.checkDanglingRefs()

	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"validated": len(r.validations),
		"issues":    issues,
	})
	_ = r.em.Emit(ctx, events.TypeValidation, "", map[string]any{
		"kind":      "citation_validation",
		"validated": len(r.validations),
		"issues":    issues,
	})
}

func (r *run) validateCitation(ctx context.Context, citation models.Citation, papers map[string]*models.Paper) models.CitationValidation {
	v := models.CitationValidation{CitationID: citation.ID, PaperID: citation.PaperID}
	paper, ok := papers[citation.PaperID]
	if !ok {
		v.Issue = "cited paper is missing from session memory"
		return v
	}

	if paper.DOI != "" {
		found, err := r.c.deps.Crossref.Lookup(ctx, paper.DOI)
		switch {
		case errors.Is(err, source.ErrPaperNotFound):
			v.Issue = "DOI does not resolve on Crossref"
		case err != nil:
			slog.Warn("Crossref lookup failed", "doi", paper.DOI, "error", err)
			v.Issue = "Crossref lookup unavailable"
		default:
			v.DOIResolved = true
			v.Similarity = trigramJaccard(models.NormalizeTitle(paper.Title), models.NormalizeTitle(found.Title))
			v.TitleMatch = v.Similarity >= titleMatchThreshold
			v.YearMatch = found.Year == 0 || paper.Year == 0 || abs(found.Year-paper.Year) <= 1
			if !v.TitleMatch {
				v.Issue = "Crossref title does not match the cited paper"
			} else if !v.YearMatch {
				v.Issue = "publication year differs from the Crossref record"
			}
		}
	} else {
		// No DOI: the title itself is the only anchor.
		v.TitleMatch = true
		v.YearMatch = true
	}

	v.ClaimSupport = r.checkClaimSupport(ctx, citation, paper)
	if v.ClaimSupport == models.ClaimUnsupported && v.Issue == "" {
		v.Issue = "sampled claim is not supported by the cited paper"
	}
	return v
}

// checkClaimSupport samples the sentence around the citation's in-text
// reference and asks a light model whether the paper supports it. An
// inconclusive check (no claim found, or the model call failed) returns
// an empty verdict rather than failing the citation.
func (r *run) checkClaimSupport(ctx context.Context, citation models.Citation, paper *models.Paper) string {
	claim := sampleClaim(r.report.Content, citation.InTextRef)
	if claim == "" {
		return ""
	}
	var payload struct {
		Supported bool `json:"supported"`
	}
	prompt := "Claim: " + claim + "\n\nPaper: " + paper.Title + "\nAbstract: " + paper.Abstract +
		"\n\nDoes the paper plausibly support the claim? Answer with JSON: {\"supported\": true|false}"
	err := r.c.deps.Caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, &payload)
	if err != nil {
		return ""
	}
	if payload.Supported {
		return models.ClaimSupported
	}
	return models.ClaimUnsupported
}

// sampleClaim extracts the sentence containing the reference marker.
func sampleClaim(content, ref string) string {
	idx := strings.Index(content, ref)
	if idx < 0 {
		return ""
	}
	start := strings.LastIndexAny(content[:idx], ".!?\n")
	if start < 0 {
		start = 0
	} else {
		start++
	}
	end := strings.IndexAny(content[idx:], ".!?\n")
	if end < 0 {
		end = len(content)
	} else {
		end += idx + 1
	}
	return strings.TrimSpace(content[start:end])
}

// checkDanglingRefs flags numeric references in the text that resolve
// to no citation.
func (r *run) checkDanglingRefs() {
	known := make(map[string]bool, len(r.report.Citations))
	for _, c := range r.report.Citations {
		known[c.InTextRef] = true
	}
	for _, ref := range writer.NumericRefs(r.report.Content) {
		if !known[ref] {
			r.validations = append(r.validations, models.CitationValidation{
				Issue: "reference " + ref + " does not match any citation",
			})
		}
	}
}

// trigramJaccard computes Jaccard similarity over character trigrams.
func trigramJaccard(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	intersection := 0
	for t := range ta {
		if tb[t] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func trigrams(s string) map[string]bool {
	out := make(map[string]bool)
	runes := []rune(s)
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
