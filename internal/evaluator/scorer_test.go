package evaluator

import (
	"testing"
	"time"

	"wisefido-pose/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Severity
	}{
		{0.1, models.SeverityLow},
		{0.4, models.SeverityMedium},
		{0.6, models.SeverityHigh},
		{0.79, models.SeverityHigh},
		{0.8, models.SeverityCritical},
		{1.0, models.SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(tt.score), "score %v", tt.score)
	}
}

func TestFallType(t *testing.T) {
	assert.Equal(t, "Lateral fall (left)", FallType(-90))
	assert.Equal(t, "Lateral fall (right)", FallType(80))
	assert.Equal(t, "Forward fall", FallType(65))
	assert.Equal(t, "Backward fall", FallType(-65))
	assert.Equal(t, "Lateral fall (right)", FallType(170))
}

func TestScorer_StillnessAndAngleRaiseSeverity(t *testing.T) {
	s := NewScorer(DefaultParams())
	cand := Candidate{Confidence: 0.8, Rules: map[string]float64{RuleNameAngleChange: 0.8}}

	brief := s.Score(cand, 500*time.Millisecond, -65, 1)
	long := s.Score(cand, 12*time.Second, -90, 1)

	assert.Greater(t, long.Severity.Rank(), brief.Severity.Rank())
	assert.Greater(t, long.ConfidenceScore, brief.ConfidenceScore)
	assert.Equal(t, models.SeverityCritical, long.Severity)
	assert.LessOrEqual(t, long.ConfidenceScore, 1.0)
	assert.Equal(t, -90.0, long.BodyAngle)
}

func TestScorer_UnreliableFramesLowerConfidence(t *testing.T) {
	s := NewScorer(DefaultParams())
	cand := Candidate{Confidence: 0.7}

	full := s.Score(cand, 3*time.Second, -90, 1)
	partial := s.Score(cand, 3*time.Second, -90, 0.6)

	assert.InDelta(t, full.ConfidenceScore*0.6, partial.ConfidenceScore, 1e-9)
}

func TestCandidate_RuleNames(t *testing.T) {
	cand := Candidate{Rules: map[string]float64{RuleNameAngleChange: 0.8, RuleNameRapidDescent: 0.7}}
	assert.Equal(t, "rapid_descent,angle_change", cand.RuleNames())
	assert.False(t, Candidate{}.Fired())
}

func TestFallEventBuilder_BuildFallEvent(t *testing.T) {
	builder := NewFallEventBuilder("user-123", "session-456")
	cand := Candidate{Confidence: 0.9, Rules: map[string]float64{RuleNameStagedPattern: 0.9}}
	score := Score{Severity: models.SeverityHigh, ConfidenceScore: 0.91, FallType: "Forward fall", BodyAngle: 70}

	event := builder.BuildFallEvent(t0, cand, score)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "user-123", event.UserID)
	assert.Equal(t, "session-456", event.SessionID)
	assert.Equal(t, t0, event.DetectedAt)
	assert.Equal(t, models.StatusDetected, event.Status)
	assert.Equal(t, models.SeverityHigh, event.Severity)
	assert.Equal(t, 0.91, event.ConfidenceScore)
	assert.Equal(t, 70.0, event.BodyAngle)
	assert.Equal(t, "staged_pattern", event.RulesFired)
	assert.False(t, event.FalsePositive)
	assert.Nil(t, event.UserFeedback)

	other := builder.BuildFallEvent(t0, cand, score)
	assert.NotEqual(t, event.ID, other.ID)
}
