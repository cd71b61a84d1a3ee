package models

// VerificationStatus is the outcome of checking one claim against one paper.
type VerificationStatus string

const (
	VerificationVerified     VerificationStatus = "verified"
	VerificationUncertain    VerificationStatus = "uncertain"
	VerificationContradicted VerificationStatus = "contradicted"
	VerificationUnsupported  VerificationStatus = "unsupported"
)

// Evidence is one verified excerpt linking a claim to a paper.
type Evidence struct {
	PaperID   string             `json:"paper_id"`
	Excerpt   string             `json:"excerpt,omitempty"`
	Relevance float64            `json:"relevance"` // 0-100
	Status    VerificationStatus `json:"status"`
	Reasoning string             `json:"reasoning,omitempty"`
}

// ClaimBinding links a factual assertion in the report to its cited papers
// and the evidence gathered for it.
type ClaimBinding struct {
	Claim            string             `json:"claim"`
	CitationRefs     []string           `json:"citation_refs,omitempty"`
	PaperIDs         []string           `json:"paper_ids,omitempty"`
	Evidence         []Evidence         `json:"evidence,omitempty"`
	Status           VerificationStatus `json:"status"`
	GroundingScore   float64            `json:"grounding_score"` // 0-100
	RequiresEvidence bool               `json:"requires_evidence"`
}

// IsGrounded reports whether the claim counts as evidence-backed: verified,
// or uncertain with verification confidence of at least 50. An uncertain
// claim's GroundingScore is stored at half its confidence, so the cutoff
// on the score is 25.
func (c *ClaimBinding) IsGrounded() bool {
	switch c.Status {
	case VerificationVerified:
		return true
	case VerificationUncertain:
		return c.GroundingScore >= 25
	default:
		return false
	}
}

// EvidenceAuditResult aggregates claim verification for one report.
type EvidenceAuditResult struct {
	SessionID             string          `json:"session_id"`
	Claims                []ClaimBinding  `json:"claims"`
	TotalClaims           int             `json:"total_claims"`
	GroundedClaims        int             `json:"grounded_claims"`
	UncertainClaims       int             `json:"uncertain_claims"`
	UnsupportedClaims     int             `json:"unsupported_claims"`
	ContradictedClaims    int             `json:"contradicted_claims"`
	Hallucinations        []Hallucination `json:"hallucinations,omitempty"`
	OverallGroundingScore float64         `json:"overall_grounding_score"` // 0-100
	CriticalIssues        []string        `json:"critical_issues,omitempty"`
	Recommendations       []string        `json:"recommendations,omitempty"`
}

// PassesThreshold reports whether the audit clears the configured grounding
// floor and contradiction ceiling.
func (r *EvidenceAuditResult) PassesThreshold(minGrounding float64, maxContradictions int) bool {
	return r.OverallGroundingScore >= minGrounding && r.ContradictedClaims <= maxContradictions
}
