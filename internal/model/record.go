package model

// RawRecord is the loosely-structured shape received from an import
// source, before validation. Coordinates are pointers so that absent
// and zero can be told apart.
type RawRecord struct {
	Source      string            `json:"source,omitempty"`
	ExternalID  string            `json:"external_id,omitempty"`
	Title       string            `json:"title"`
	Artists     string            `json:"artists,omitempty"` // raw multi-artist string, e.g. "Smith, Jones & Lee"
	ArtistNames []string          `json:"artist_names,omitempty"`
	Lat         *float64          `json:"lat"`
	Lon         *float64          `json:"lon"`
	Tags        map[string]string `json:"tags,omitempty"`
	Description string            `json:"description,omitempty"`
	SourceURL   string            `json:"source_url,omitempty"`
}

// ImportRecord is a validated, canonicalized candidate produced by the
// normalizer. It is consumed during batch processing and never persisted.
type ImportRecord struct {
	Index          int               `json:"index"`
	Source         string            `json:"source,omitempty"`
	ExternalID     string            `json:"external_id,omitempty"`
	Title          string            `json:"title"`
	ArtistNames    []string          `json:"artist_names,omitempty"` // split, trimmed, original order preserved
	Lat            float64           `json:"lat"`
	Lon            float64           `json:"lon"`
	HasCoordinates bool              `json:"has_coordinates"`
	Tags           map[string]string `json:"tags,omitempty"`
	Description    string            `json:"description,omitempty"`
	SourceURL      string            `json:"source_url,omitempty"`
}
