package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/sector"
)

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelLow}, {39, LevelLow},
		{40, LevelMedium}, {69, LevelMedium},
		{70, LevelHigh}, {84, LevelHigh},
		{85, LevelCritical}, {100, LevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %d", tt.score)
	}
}

// Buckets are monotone in score.
func TestLevelForScore_Monotone(t *testing.T) {
	prev := LevelForScore(0).Rank()
	for s := 1; s <= 100; s++ {
		r := LevelForScore(s).Rank()
		assert.GreaterOrEqual(t, r, prev, "score %d", s)
		prev = r
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"pass":         StatusPass,
		"PASS":         StatusPass,
		"Needs Review": StatusNeedsReview,
		"needs-review": StatusNeedsReview,
		"caution":      StatusCaution,
		"warning":      StatusCaution,
		"failed":       StatusFail,
	} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStatus("maybe")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" high ")
	require.NoError(t, err)
	assert.Equal(t, LevelHigh, l)
	_, err = ParseLevel("SEVERE")
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	t.Run("explicit sector is kept", func(t *testing.T) {
		r := Fallback(Meta{Resolution: sector.Resolve("aviation")}, "oracle timeout")

		require.NoError(t, r.Validate())
		assert.Equal(t, 50, r.RiskScore)
		assert.Equal(t, LevelMedium, r.RiskLevel)
		assert.True(t, r.Fallback)
		assert.Equal(t, "oracle timeout", r.FallbackReason)
		assert.Equal(t, sector.Aviation, r.Leniency.Sector)
		assert.Equal(t, "aviation", r.Leniency.RequestedSector)
		for _, key := range RequiredAssessments {
			a := r.Assessments[key]
			assert.Equal(t, StatusNeedsReview, a.Status, key)
			assert.NotEmpty(t, a.Recommendations, key)
		}
	})

	t.Run("no sector falls back to general", func(t *testing.T) {
		r := Fallback(Meta{}, "x")
		require.NoError(t, r.Validate())
		assert.Equal(t, sector.General, r.Leniency.Sector)
		assert.Equal(t, sector.ConfidenceLow, r.Leniency.Confidence)
	})

	t.Run("deterministic", func(t *testing.T) {
		meta := Meta{Resolution: sector.Resolve("yacht")}
		assert.Equal(t, Fallback(meta, "r"), Fallback(meta, "r"))
	})
}

func TestValidate(t *testing.T) {
	valid := Fallback(Meta{}, "")
	require.NoError(t, valid.Validate())

	bad := valid
	bad.RiskScore = 90
	assert.ErrorContains(t, bad.Validate(), "does not match score")

	bad = valid
	bad.RiskScore = 101
	assert.ErrorContains(t, bad.Validate(), "outside")

	bad = valid
	bad.Assessments = map[string]Assessment{IdentityVerification: {Status: StatusPass}}
	assert.ErrorContains(t, bad.Validate(), "missing assessment adverseMedia")

	bad = valid
	bad.Summary = "  "
	assert.ErrorContains(t, bad.Validate(), "summary")
}

func TestRecordRoundTrip(t *testing.T) {
	r := Fallback(Meta{Resolution: sector.Resolve("fine_art")}, "test")
	rec, err := r.ToRecord()
	require.NoError(t, err)

	assert.Equal(t, "fine_art", rec.Sector)
	assert.Equal(t, "MEDIUM", rec.RiskLevel)
	assert.Equal(t, 50, rec.RiskScore)
	assert.Equal(t, r.Summary, rec.Summary)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}
