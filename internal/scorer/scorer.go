// Package scorer computes duplicate confidence between an import record
// and nearby artworks, and turns the candidate set into a merge/create
// decision. Pure functions of their inputs; all I/O happens upstream.
package scorer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/art-atlas/import-cli/internal/config"
	"github.com/art-atlas/import-cli/internal/match"
	"github.com/art-atlas/import-cli/internal/model"
)

// ReasonExternalID marks a confidence short-circuit on a shared
// external identifier.
const ReasonExternalID = "external_id"

// Scorer weighs the non-identifier signals. Thresholds and weights come
// from batch configuration.
type Scorer struct {
	thresholds config.SpatialThresholds
	weights    config.Weights
}

// New creates a Scorer.
func New(thresholds config.SpatialThresholds, weights config.Weights) *Scorer {
	return &Scorer{thresholds: thresholds, weights: weights}
}

// Score computes a DuplicateCandidate for one record/artwork pair.
// A matching external identifier for the record's source short-circuits
// to confidence 1.0; otherwise distance, title similarity, and artist
// overlap are summed and clamped to [0, 1].
func (s *Scorer) Score(rec model.ImportRecord, art *model.Artwork, distanceMeters float64, resolvedArtistIDs []string) model.DuplicateCandidate {
	cand := model.DuplicateCandidate{
		ArtworkID:      art.ID,
		DistanceMeters: distanceMeters,
	}

	if rec.ExternalID != "" && rec.Source != "" {
		if stored, ok := art.ExternalID(rec.Source); ok && stored == rec.ExternalID {
			cand.ExternalIDExactMatch = true
			cand.Confidence = 1.0
			cand.MatchedReason = ReasonExternalID
			return cand
		}
	}

	distScore, tier := s.distanceScore(distanceMeters)
	cand.TitleSimilarity = match.Similarity(rec.Title, art.Title)
	shared := sharedArtists(resolvedArtistIDs, art)

	artistScore := s.weights.Artist * float64(shared)
	if limit := 2 * s.weights.Artist; artistScore > limit {
		artistScore = limit
	}
	cand.ArtistOverlapScore = artistScore

	conf := distScore + s.weights.Title*cand.TitleSimilarity + artistScore
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	cand.Confidence = conf

	parts := []string{fmt.Sprintf("distance:%s", tier)}
	if cand.TitleSimilarity > 0 {
		parts = append(parts, fmt.Sprintf("title:%.2f", cand.TitleSimilarity))
	}
	if shared > 0 {
		parts = append(parts, fmt.Sprintf("artists:%d", shared))
	}
	cand.MatchedReason = strings.Join(parts, " ")

	return cand
}

// distanceScore maps a distance to its tier contribution. With the
// default distance weight 0.6 the tiers contribute 0.6 / 0.3 / 0.1.
func (s *Scorer) distanceScore(meters float64) (float64, string) {
	switch {
	case meters <= s.thresholds.High:
		return s.weights.Distance, "high"
	case meters <= s.thresholds.Medium:
		return s.weights.Distance / 2, "medium"
	case meters <= s.thresholds.Low:
		return s.weights.Distance / 6, "low"
	default:
		return 0, "none"
	}
}

func sharedArtists(resolved []string, art *model.Artwork) int {
	n := 0
	for _, id := range resolved {
		if art.HasArtist(id) {
			n++
		}
	}
	return n
}

// Decide reduces a candidate set to a MergeDecision. Only the
// highest-confidence candidate is considered; equal confidence breaks
// toward the lower artwork id. With a positive ambiguityMargin,
// multiple above-threshold candidates within the margin of the best
// flag the record instead of merging.
func Decide(candidates []model.DuplicateCandidate, threshold, ambiguityMargin float64) model.MergeDecision {
	if len(candidates) == 0 {
		return model.MergeDecision{Action: model.DecisionCreate}
	}

	sorted := make([]model.DuplicateCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].ArtworkID < sorted[j].ArtworkID
	})

	best := sorted[0]
	if best.Confidence < threshold {
		// Near miss: create, but carry the best candidate so the audit
		// entry can surface it for false-negative review.
		return model.MergeDecision{Action: model.DecisionCreate, Best: &best}
	}

	if ambiguityMargin > 0 {
		var ties []model.DuplicateCandidate
		for _, c := range sorted[1:] {
			if c.Confidence >= threshold && best.Confidence-c.Confidence < ambiguityMargin {
				ties = append(ties, c)
			}
		}
		if len(ties) > 0 {
			return model.MergeDecision{
				Action:     model.DecisionFlagAmbiguous,
				Best:       &best,
				Candidates: append([]model.DuplicateCandidate{best}, ties...),
			}
		}
	}

	return model.MergeDecision{
		Action:          model.DecisionMerge,
		TargetArtworkID: best.ArtworkID,
		Best:            &best,
	}
}
