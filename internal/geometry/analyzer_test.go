package geometry

import (
	"errors"
	"math"
	"testing"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/posegen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestValidate(t *testing.T) {
	good := models.RawFrame{Timestamp: t0, Landmarks: posegen.Upright(0.4, 0.9)}
	require.NoError(t, Validate("user-1", "session-1", good))

	tests := []struct {
		name  string
		user  string
		frame func() models.RawFrame
	}{
		{"missing user", "", func() models.RawFrame { return good }},
		{"zero timestamp", "user-1", func() models.RawFrame {
			return models.RawFrame{Landmarks: good.Landmarks}
		}},
		{"wrong landmark count", "user-1", func() models.RawFrame {
			return models.RawFrame{Timestamp: t0, Landmarks: good.Landmarks[:32]}
		}},
		{"x out of range", "user-1", func() models.RawFrame {
			lms := posegen.Upright(0.4, 0.9)
			lms[5].X = 1.2
			return models.RawFrame{Timestamp: t0, Landmarks: lms}
		}},
		{"negative visibility", "user-1", func() models.RawFrame {
			lms := posegen.Upright(0.4, 0.9)
			lms[0].Visibility = -0.1
			return models.RawFrame{Timestamp: t0, Landmarks: lms}
		}},
		{"nan depth", "user-1", func() models.RawFrame {
			lms := posegen.Upright(0.4, 0.9)
			lms[3].Z = math.NaN()
			return models.RawFrame{Timestamp: t0, Landmarks: lms}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.user, "session-1", tt.frame())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame))
		})
	}
}

func TestValidate_NegativeDepthAllowed(t *testing.T) {
	lms := posegen.Upright(0.4, 0.9)
	lms[0].Z = -0.6
	assert.NoError(t, Validate("user-1", "session-1", models.RawFrame{Timestamp: t0, Landmarks: lms}))
}

func TestAnalyze_Upright(t *testing.T) {
	a := NewAnalyzer(DefaultParams())
	f := a.Analyze("user-1", "session-1", models.RawFrame{Timestamp: t0, Landmarks: posegen.Upright(0.4, 0.9)}, nil)

	assert.InDelta(t, 0.4, f.CenterY, 1e-9)
	assert.False(t, f.IsHorizontal)
	assert.InDelta(t, 0, f.BodyAngle, 1e-6)
	assert.InDelta(t, 0.9, f.OverallConfidence, 1e-9)
	assert.True(t, f.Reliable)
	assert.False(t, f.HasPrev)
	assert.Zero(t, f.VelocityY)
	assert.Zero(t, f.MotionScore)
}

func TestAnalyze_LyingAndVelocity(t *testing.T) {
	a := NewAnalyzer(DefaultParams())
	prev := a.Analyze("user-1", "session-1", models.RawFrame{Timestamp: t0, Landmarks: posegen.Lying(0.6, 0.9)}, nil)
	cur := a.Analyze("user-1", "session-1", models.RawFrame{
		Timestamp: t0.Add(500 * time.Millisecond),
		Landmarks: posegen.Lying(0.7, 0.4),
	}, &prev)

	assert.True(t, cur.IsHorizontal)
	assert.InDelta(t, -90, cur.BodyAngle, 1e-6)
	assert.True(t, cur.HasPrev)
	assert.InDelta(t, 0.2, cur.VelocityY, 1e-9)
	assert.InDelta(t, 0.1, cur.MotionScore, 1e-9)
	assert.False(t, cur.Reliable)
}

func TestAnalyze_CopiesLandmarks(t *testing.T) {
	a := NewAnalyzer(DefaultParams())
	lms := posegen.Upright(0.4, 0.9)
	f := a.Analyze("user-1", "session-1", models.RawFrame{Timestamp: t0, Landmarks: lms}, nil)

	lms[models.LandmarkNose].X = 0.01
	assert.NotEqual(t, 0.01, f.Landmarks[models.LandmarkNose].X)
}

func TestCenterY_ZeroVisibilityFallsBackToMean(t *testing.T) {
	assert.InDelta(t, 0.5, CenterY(posegen.Upright(0.5, 0)), 1e-9)
}

func TestBodyAngle_Sign(t *testing.T) {
	lms := posegen.Upright(0.5, 1)
	// 上身向画面右侧倾斜
	lms[models.LandmarkLeftShoulder].X += 0.2
	lms[models.LandmarkRightShoulder].X += 0.2
	assert.InDelta(t, 45, BodyAngle(lms), 1e-6)
}
