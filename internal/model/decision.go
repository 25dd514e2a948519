package model

// DuplicateCandidate scores one nearby artwork against an import record.
// Computed per record, consumed by the decision step, never persisted.
type DuplicateCandidate struct {
	ArtworkID            string  `json:"artwork_id"`
	DistanceMeters       float64 `json:"distance_meters"`
	TitleSimilarity      float64 `json:"title_similarity"`
	ArtistOverlapScore   float64 `json:"artist_overlap_score"`
	ExternalIDExactMatch bool    `json:"external_id_exact_match"`
	Confidence           float64 `json:"confidence"`
	MatchedReason        string  `json:"matched_reason,omitempty"`
}

// DecisionAction enumerates the outcomes of the merge/create decision.
type DecisionAction string

const (
	DecisionCreate        DecisionAction = "create"
	DecisionMerge         DecisionAction = "merge"
	DecisionFlagAmbiguous DecisionAction = "flag_ambiguous"
)

// MergeDecision drives the transaction executor for one record.
type MergeDecision struct {
	Action          DecisionAction       `json:"action"`
	TargetArtworkID string               `json:"target_artwork_id,omitempty"`
	Best            *DuplicateCandidate  `json:"best,omitempty"`
	Candidates      []DuplicateCandidate `json:"candidates,omitempty"` // ambiguous ties, for manual follow-up
}
