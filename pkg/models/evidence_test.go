package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimIsGrounded(t *testing.T) {
	tests := []struct {
		name  string
		claim ClaimBinding
		want  bool
	}{
		{"verified", ClaimBinding{Status: VerificationVerified}, true},
		// Uncertain claims store half their verification confidence,
		// so a confidence of 50 lands at a score of 25.
		{"uncertain confidence 100", ClaimBinding{Status: VerificationUncertain, GroundingScore: 50}, true},
		{"uncertain confidence 80", ClaimBinding{Status: VerificationUncertain, GroundingScore: 40}, true},
		{"uncertain confidence 50", ClaimBinding{Status: VerificationUncertain, GroundingScore: 25}, true},
		{"uncertain confidence 49", ClaimBinding{Status: VerificationUncertain, GroundingScore: 24.5}, false},
		{"unsupported", ClaimBinding{Status: VerificationUnsupported, GroundingScore: 90}, false},
		{"contradicted", ClaimBinding{Status: VerificationContradicted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claim.IsGrounded())
		})
	}
}

func TestAuditPassesThreshold(t *testing.T) {
	audit := &EvidenceAuditResult{OverallGroundingScore: 72, ContradictedClaims: 1}
	assert.True(t, audit.PassesThreshold(70, 2))
	assert.False(t, audit.PassesThreshold(80, 2))
	assert.False(t, audit.PassesThreshold(70, 0))
}

func TestNonLowHallucinations(t *testing.T) {
	a := &CriticAnalysis{Hallucinations: []Hallucination{
		{Severity: SeverityLow},
		{Severity: SeverityMedium},
		{Severity: SeverityCritical},
	}}
	assert.Equal(t, 2, a.NonLowHallucinations())
}
