package model

import "time"

// Artwork is a persisted catalog entry for a physical art object.
// Lat/Lon are meaningful only when HasLocation is set; location-less
// artworks are never spatial merge candidates.
type Artwork struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	HasLocation bool              `json:"has_location"`
	Tags        map[string]string `json:"tags,omitempty"`
	ArtistIDs   []string          `json:"artist_ids,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"` // source -> identifier, at most one per source
	SourceURL   string            `json:"source_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// HasArtist reports whether the artwork is already linked to the given artist.
func (a *Artwork) HasArtist(artistID string) bool {
	for _, id := range a.ArtistIDs {
		if id == artistID {
			return true
		}
	}
	return false
}

// ExternalID returns the artwork's identifier for the given source, if any.
func (a *Artwork) ExternalID(source string) (string, bool) {
	id, ok := a.ExternalIDs[source]
	return id, ok
}

// ValidCoordinates reports whether lat/lon fall inside the WGS84 envelope.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
