package model

import "time"

// ImportAction is the final disposition of one import record.
type ImportAction string

const (
	ActionCreated   ImportAction = "created"
	ActionUpdated   ImportAction = "updated"   // merge changed scalar fields or tags
	ActionMerged    ImportAction = "merged"    // merge added only artist links or external ids
	ActionSkipped   ImportAction = "skipped"   // ambiguous flag or batch timeout
	ActionDuplicate ImportAction = "duplicate" // matched an artwork, nothing to change
	ActionError     ImportAction = "error"
)

// FieldChange records an old/new pair for one merged field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Warning is a non-fatal problem attached to an audit entry.
type Warning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// AuditEntry is the append-only outcome record for one import record.
// Exactly one entry exists per input record per batch run.
type AuditEntry struct {
	ImportID               string                 `json:"import_id"`
	RecordIndex            int                    `json:"record_index"`
	Action                 ImportAction           `json:"action"`
	Reason                 string                 `json:"reason,omitempty"` // set for skipped: "ambiguous" or "batch_timeout"
	Confidence             float64                `json:"confidence"`
	ArtworkID              string                 `json:"artwork_id,omitempty"` // resulting artwork
	MatchedArtworkID       string                 `json:"matched_artwork_id,omitempty"`
	MatchedReason          string                 `json:"matched_reason,omitempty"`
	FieldChanges           map[string]FieldChange `json:"field_changes,omitempty"`
	TagsConflictCount      int                    `json:"tags_conflict_count,omitempty"`
	SkippedCoordinateMerge bool                   `json:"skipped_coordinate_merge,omitempty"`
	NearMisses             []DuplicateCandidate   `json:"near_misses,omitempty"`
	Candidates             []DuplicateCandidate   `json:"candidates,omitempty"` // ambiguous ties, for manual follow-up
	Warnings               []Warning              `json:"warnings,omitempty"`
	Errors                 []string               `json:"errors,omitempty"`
	Timestamp              time.Time              `json:"timestamp"`
}

// Totals tallies audit actions for a batch.
type Totals struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Merged     int `json:"merged"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Sum returns the count of all tallied records.
func (t Totals) Sum() int {
	return t.Created + t.Updated + t.Merged + t.Skipped + t.Duplicates + t.Errors
}

// Add counts one action.
func (t *Totals) Add(a ImportAction) {
	switch a {
	case ActionCreated:
		t.Created++
	case ActionUpdated:
		t.Updated++
	case ActionMerged:
		t.Merged++
	case ActionSkipped:
		t.Skipped++
	case ActionDuplicate:
		t.Duplicates++
	case ActionError:
		t.Errors++
	}
}

// BatchReport is the sole authoritative description of a batch run.
type BatchReport struct {
	ImportID   string       `json:"import_id" yaml:"import_id"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Totals     Totals       `json:"totals" yaml:"totals"`
	Records    []AuditEntry `json:"records" yaml:"records"`
}
