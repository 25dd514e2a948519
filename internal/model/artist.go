package model

import "time"

// Artist is a persisted artist identity. CanonicalName is the display
// form; matching happens on the canonical key derived from it.
type Artist struct {
	ID            string    `json:"id"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases,omitempty"`
	Notes         string    `json:"notes,omitempty"` // free text, accumulates provenance and conflicts
	CreatedAt     time.Time `json:"created_at"`
}

// ResolvedArtist is the per-name output of the artist resolver.
type ResolvedArtist struct {
	ArtistID string `json:"artist_id"`
	Name     string `json:"name"` // original input name
	Created  bool   `json:"created"`
}
