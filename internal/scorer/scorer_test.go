package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-atlas/import-cli/internal/config"
	"github.com/art-atlas/import-cli/internal/model"
)

func defaultScorer() *Scorer {
	def := config.DefaultImportConfig()
	return New(def.SpatialThresholds, def.Weights)
}

func TestScore_ExternalIDShortCircuits(t *testing.T) {
	s := defaultScorer()
	rec := model.ImportRecord{Source: "city-open-data", ExternalID: "cod-42", Title: "Completely Different"}
	art := &model.Artwork{
		ID:          "art-1",
		Title:       "Untitled",
		ExternalIDs: map[string]string{"city-open-data": "cod-42"},
	}

	cand := s.Score(rec, art, 5_000, nil)
	assert.True(t, cand.ExternalIDExactMatch)
	assert.Equal(t, 1.0, cand.Confidence)
	assert.Equal(t, ReasonExternalID, cand.MatchedReason)
}

func TestScore_ExternalIDRequiresSameSource(t *testing.T) {
	s := defaultScorer()
	rec := model.ImportRecord{Source: "museum-feed", ExternalID: "cod-42", Title: "Untitled"}
	art := &model.Artwork{
		ID:          "art-1",
		Title:       "Untitled",
		ExternalIDs: map[string]string{"city-open-data": "cod-42"},
	}

	cand := s.Score(rec, art, 5, nil)
	assert.False(t, cand.ExternalIDExactMatch)
	assert.Less(t, cand.Confidence, 1.0)
}

func TestScore_DistanceTiers(t *testing.T) {
	s := defaultScorer()
	// Empty incoming title isolates the distance signal.
	rec := model.ImportRecord{}
	art := &model.Artwork{ID: "art-1", Title: "Cloud Gate"}

	for _, tc := range []struct {
		meters float64
		want   float64
	}{
		{5, 0.6},
		{10, 0.6},
		{30, 0.3},
		{100, 0.1},
		{250, 0},
	} {
		cand := s.Score(rec, art, tc.meters, nil)
		assert.InDelta(t, tc.want, cand.Confidence, 1e-9, "distance %.0fm", tc.meters)
	}
}

func TestScore_IdenticalTitleAndSharedArtist(t *testing.T) {
	s := defaultScorer()
	rec := model.ImportRecord{Title: "Cloud Gate"}
	art := &model.Artwork{ID: "art-1", Title: "Cloud Gate", ArtistIDs: []string{"a1"}}

	// 0.6 (high tier) + 0.3 (identical title) + 0.2 (shared artist),
	// clamped to 1.0.
	cand := s.Score(rec, art, 3, []string{"a1"})
	assert.Equal(t, 1.0, cand.Confidence)
	assert.Equal(t, 1.0, cand.TitleSimilarity)
	assert.False(t, cand.ExternalIDExactMatch)
}

func TestScore_ArtistOverlapCapped(t *testing.T) {
	s := defaultScorer()
	rec := model.ImportRecord{Title: "alpha"}
	art := &model.Artwork{ID: "art-1", Title: "omega", ArtistIDs: []string{"a1", "a2", "a3"}}

	cand := s.Score(rec, art, 500, []string{"a1", "a2", "a3"})
	assert.InDelta(t, 0.4, cand.ArtistOverlapScore, 1e-9)
}

func TestDecide_NoCandidatesCreates(t *testing.T) {
	d := Decide(nil, 0.85, 0)
	assert.Equal(t, model.DecisionCreate, d.Action)
	assert.Nil(t, d.Best)
}

func TestDecide_AboveThresholdMerges(t *testing.T) {
	d := Decide([]model.DuplicateCandidate{
		{ArtworkID: "art-2", Confidence: 0.5},
		{ArtworkID: "art-1", Confidence: 0.9},
	}, 0.85, 0)

	assert.Equal(t, model.DecisionMerge, d.Action)
	assert.Equal(t, "art-1", d.TargetArtworkID)
	require.NotNil(t, d.Best)
	assert.Equal(t, 0.9, d.Best.Confidence)
}

func TestDecide_NearMissCreatesWithBest(t *testing.T) {
	d := Decide([]model.DuplicateCandidate{
		{ArtworkID: "art-1", Confidence: 0.7},
	}, 0.85, 0)

	assert.Equal(t, model.DecisionCreate, d.Action)
	require.NotNil(t, d.Best)
	assert.Equal(t, "art-1", d.Best.ArtworkID)
}

func TestDecide_EqualConfidenceLowerIDWins(t *testing.T) {
	d := Decide([]model.DuplicateCandidate{
		{ArtworkID: "art-9", Confidence: 0.9},
		{ArtworkID: "art-2", Confidence: 0.9},
	}, 0.85, 0)

	assert.Equal(t, model.DecisionMerge, d.Action)
	assert.Equal(t, "art-2", d.TargetArtworkID)
}

func TestDecide_AmbiguityMarginFlags(t *testing.T) {
	cands := []model.DuplicateCandidate{
		{ArtworkID: "art-1", Confidence: 0.92},
		{ArtworkID: "art-2", Confidence: 0.90},
	}

	d := Decide(cands, 0.85, 0.05)
	assert.Equal(t, model.DecisionFlagAmbiguous, d.Action)
	require.Len(t, d.Candidates, 2)
	assert.Equal(t, "art-1", d.Candidates[0].ArtworkID)

	// Margin zero disables flagging entirely.
	d = Decide(cands, 0.85, 0)
	assert.Equal(t, model.DecisionMerge, d.Action)
	assert.Equal(t, "art-1", d.TargetArtworkID)
}

func TestDecide_RunnerUpBelowThresholdNotAmbiguous(t *testing.T) {
	d := Decide([]model.DuplicateCandidate{
		{ArtworkID: "art-1", Confidence: 0.86},
		{ArtworkID: "art-2", Confidence: 0.84},
	}, 0.85, 0.05)

	assert.Equal(t, model.DecisionMerge, d.Action)
}
