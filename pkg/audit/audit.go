// Package audit verifies that the report's factual claims are grounded
// in the cited papers: claim extraction, per-paper verification, and
// hallucination categorization rolled up into an audit result.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperscope/paperscope/pkg/enrich"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
)

// maxPapersPerClaim bounds verification cost per claim.
const maxPapersPerClaim = 5

// fallbackTopK papers are checked when a claim carries no resolvable
// citation refs.
const fallbackTopK = 3

// Auditor drives the evidence audit.
type Auditor struct {
	caller *llm.Caller
}

// New creates an Auditor on the shared caller.
func New(caller *llm.Caller) *Auditor {
	return &Auditor{caller: caller}
}

type extractedClaim struct {
	Claim            string   `json:"claim"`
	CitationRefs     []string `json:"citation_refs"`
	RequiresEvidence bool     `json:"requires_evidence"`
}

type extractPayload struct {
	Claims []extractedClaim `json:"claims"`
}

func (p *extractPayload) Validate() error {
	for i, c := range p.Claims {
		if strings.TrimSpace(c.Claim) == "" {
			return fmt.Errorf("claims[%d].claim is empty", i)
		}
	}
	return nil
}

// ExtractClaims pulls the evidence-requiring factual claims out of the
// report. Opinions and common knowledge are dropped.
func (a *Auditor) ExtractClaims(ctx context.Context, content string, citations []models.Citation) ([]models.ClaimBinding, error) {
	var payload extractPayload
	err := a.caller.Structured(ctx, llm.ModelPrimary, &llm.GenerateInput{
		System:   auditSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: extractClaimsPrompt(content, citations)}},
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}

	var out []models.ClaimBinding
	for _, c := range payload.Claims {
		if !c.RequiresEvidence {
			continue
		}
		out = append(out, models.ClaimBinding{
			Claim:            c.Claim,
			CitationRefs:     c.CitationRefs,
			RequiresEvidence: true,
		})
	}
	return out, nil
}

type verifyPayload struct {
	IsSupported     bool    `json:"is_supported"`
	RelevanceScore  float64 `json:"relevance_score"`
	Confidence      float64 `json:"confidence"`
	Status          string  `json:"status"`
	RelevantExcerpt string  `json:"relevant_excerpt"`
	Reasoning       string  `json:"reasoning"`
}

func (p *verifyPayload) Validate() error {
	switch models.VerificationStatus(p.Status) {
	case models.VerificationVerified, models.VerificationUncertain,
		models.VerificationContradicted, models.VerificationUnsupported:
		return nil
	}
	return errors.New("status must be verified, uncertain, contradicted or unsupported")
}

// VerifyClaim checks one claim against one paper.
func (a *Auditor) VerifyClaim(ctx context.Context, claim string, paper *models.Paper) (*models.Evidence, float64, error) {
	var payload verifyPayload
	err := a.caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		System:   auditSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: verifyClaimPrompt(claim, paper)}},
	}, &payload)
	if err != nil {
		return nil, 0, fmt.Errorf("verifying claim against %s: %w", paper.ID, err)
	}
	return &models.Evidence{
		PaperID:   paper.ID,
		Excerpt:   payload.RelevantExcerpt,
		Relevance: payload.RelevanceScore,
		Status:    models.VerificationStatus(payload.Status),
		Reasoning: payload.Reasoning,
	}, payload.Confidence, nil
}

// Audit runs the full evidence audit over a report.
func (a *Auditor) Audit(ctx context.Context, report *models.ResearchReport, papers map[string]*models.Paper, sessionID string) (*models.EvidenceAuditResult, error) {
	result := &models.EvidenceAuditResult{SessionID: sessionID}

	claims, err := a.ExtractClaims(ctx, report.Content, report.Citations)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		result.OverallGroundingScore = 100
		return result, nil
	}

	refToPaper := make(map[string]string, len(report.Citations))
	for _, c := range report.Citations {
		refToPaper[c.InTextRef] = c.PaperID
	}

	var scoreSum float64
	for i := range claims {
		claim := &claims[i]
		targets := a.claimPapers(claim, refToPaper, papers, report)
		a.verifyAgainst(ctx, claim, targets)
		scoreSum += claim.GroundingScore

		switch claim.Status {
		case models.VerificationUncertain:
			result.UncertainClaims++
		case models.VerificationUnsupported:
			result.UnsupportedClaims++
		case models.VerificationContradicted:
			result.ContradictedClaims++
		}
		if claim.IsGrounded() {
			result.GroundedClaims++
		}
		if claim.Status == models.VerificationUnsupported || claim.Status == models.VerificationContradicted {
			if h := a.checkHallucination(ctx, claim); h != nil {
				result.Hallucinations = append(result.Hallucinations, *h)
			}
		}
	}

	result.Claims = claims
	result.TotalClaims = len(claims)
	result.OverallGroundingScore = scoreSum / float64(len(claims))
	a.summarize(result)

	slog.Info("Evidence audit complete",
		"session_id", sessionID,
		"claims", result.TotalClaims,
		"grounded", result.GroundedClaims,
		"contradicted", result.ContradictedClaims,
		"grounding_score", result.OverallGroundingScore)
	return result, nil
}

// claimPapers resolves which papers to verify a claim against: its
// citation refs, falling back to the top-k known papers.
func (a *Auditor) claimPapers(claim *models.ClaimBinding, refToPaper map[string]string, papers map[string]*models.Paper, report *models.ResearchReport) []*models.Paper {
	var out []*models.Paper
	seen := map[string]bool{}
	add := func(id string) {
		if p, ok := papers[id]; ok && !seen[id] && len(out) < maxPapersPerClaim {
			seen[id] = true
			out = append(out, p)
			claim.PaperIDs = append(claim.PaperIDs, id)
		}
	}
	for _, ref := range claim.CitationRefs {
		if id, ok := refToPaper[ref]; ok {
			add(id)
		}
	}
	if len(out) == 0 {
		for _, c := range report.Citations {
			if len(out) >= fallbackTopK {
				break
			}
			add(c.PaperID)
		}
	}
	return out
}

// verifyAgainst runs per-paper verification and derives the claim's
// overall status: any verified wins, then any contradicted, then
// uncertain at half its best confidence, else unsupported.
func (a *Auditor) verifyAgainst(ctx context.Context, claim *models.ClaimBinding, targets []*models.Paper) {
	var bestUncertain float64
	anyVerified, anyContradicted := false, false
	for _, p := range targets {
		evidence, confidence, err := a.VerifyClaim(ctx, claim.Claim, p)
		if err != nil {
			slog.Warn("Claim verification failed", "paper_id", p.ID, "error", err)
			continue
		}
		claim.Evidence = append(claim.Evidence, *evidence)
		switch evidence.Status {
		case models.VerificationVerified:
			anyVerified = true
		case models.VerificationContradicted:
			anyContradicted = true
		case models.VerificationUncertain:
			if confidence > bestUncertain {
				bestUncertain = confidence
			}
		}
	}

	switch {
	case anyVerified:
		claim.Status = models.VerificationVerified
		claim.GroundingScore = 100
	case anyContradicted:
		claim.Status = models.VerificationContradicted
		claim.GroundingScore = 0
	case bestUncertain > 0:
		claim.Status = models.VerificationUncertain
		claim.GroundingScore = bestUncertain * 0.5
	default:
		claim.Status = models.VerificationUnsupported
		claim.GroundingScore = 0
	}
}

type hallucinationPayload struct {
	IsHallucination bool   `json:"is_hallucination"`
	Category        string `json:"category"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// checkHallucination categorizes an unsupported or contradicted claim.
func (a *Auditor) checkHallucination(ctx context.Context, claim *models.ClaimBinding) *models.Hallucination {
	var payload hallucinationPayload
	err := a.caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		System:   auditSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: hallucinationPrompt(claim)}},
	}, &payload)
	if err != nil || !payload.IsHallucination {
		return nil
	}
	severity := models.HallucinationSeverity(strings.ToLower(payload.Severity))
	switch severity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		severity = models.SeverityMedium
	}
	return &models.Hallucination{
		Statement: claim.Claim,
		Category:  payload.Category,
		Severity:  severity,
		Detail:    payload.Detail,
	}
}

// summarize fills critical issues and recommendations.
func (a *Auditor) summarize(r *models.EvidenceAuditResult) {
	if r.ContradictedClaims > 0 {
		r.CriticalIssues = append(r.CriticalIssues,
			fmt.Sprintf("%d claims are contradicted by their cited sources", r.ContradictedClaims))
	}
	for _, h := range r.Hallucinations {
		if h.Severity == models.SeverityCritical || h.Severity == models.SeverityHigh {
			r.CriticalIssues = append(r.CriticalIssues, "high-severity hallucination: "+h.Statement)
		}
	}
	unsupported := r.UnsupportedClaims + r.ContradictedClaims
	if r.TotalClaims > 0 && float64(unsupported) > float64(r.TotalClaims)*0.3 {
		r.Recommendations = append(r.Recommendations,
			"over 30% of claims lack evidence; revise or remove unsupported statements")
	}
	if r.UncertainClaims > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("%d claims are only weakly supported; consider hedging or adding citations", r.UncertainClaims))
	}
}

const auditSystemPrompt = `You are a fact-checking assistant verifying report claims against cited academic papers.
You always answer with a single JSON object matching the requested schema.`

func extractClaimsPrompt(content string, citations []models.Citation) string {
	var sb strings.Builder
	sb.WriteString("Extract the factual claims from this report. For each claim note its in-text citation references ")
	sb.WriteString("and whether it requires evidence (opinions and common knowledge do not).\n\nKnown references: ")
	for i, c := range citations {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.InTextRef)
	}
	sb.WriteString("\n\nReport:\n")
	sb.WriteString(content)
	sb.WriteString(`

Answer with JSON:
{"claims": [{"claim": "...", "citation_refs": ["[1]"], "requires_evidence": true}]}`)
	return sb.String()
}

func verifyClaimPrompt(claim string, paper *models.Paper) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Claim: %s\n\nPaper: %s\n", claim, paper.Title)
	for _, fp := range enrich.FormatForStage([]*models.Paper{paper}, enrich.StageAnalyzing, nil, 4000) {
		sb.WriteString(fp.Content)
		sb.WriteByte('\n')
	}
	sb.WriteString(`
Does the paper support the claim? Answer with JSON:
{"is_supported": bool, "relevance_score": 0-100, "confidence": 0-100, "status": "verified|uncertain|contradicted|unsupported", "relevant_excerpt": "...", "reasoning": "..."}`)
	return sb.String()
}

func hallucinationPrompt(claim *models.ClaimBinding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The claim %q is not supported by its cited sources.\n", claim.Claim)
	for _, e := range claim.Evidence {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", e.PaperID, e.Status, e.Reasoning)
	}
	sb.WriteString(`
Classify it. Answer with JSON:
{"is_hallucination": bool, "category": "fabrication|exaggeration|misattribution|contradiction", "severity": "low|medium|high|critical", "detail": "..."}`)
	return sb.String()
}
