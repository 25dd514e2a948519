// Package store persists artworks, artists, and audit entries. Two
// implementations exist: Postgres with PostGIS for shared deployments,
// and SQLite for local or offline work.
package store

import (
	"context"

	"github.com/art-atlas/import-cli/internal/model"
)

// NearbyArtwork is one spatial query hit, ordered by distance.
type NearbyArtwork struct {
	ID             string  `json:"id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Store defines the persistence interface consumed by the import engine.
// Lookup methods return (nil, nil) when nothing matches.
type Store interface {
	// Artworks
	FindNearbyArtworks(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyArtwork, error)
	GetArtwork(ctx context.Context, id string) (*model.Artwork, error)
	GetArtworkByExternalID(ctx context.Context, source, externalID string) (*model.Artwork, error)
	CreateArtwork(ctx context.Context, a *model.Artwork) (string, error)
	UpdateArtwork(ctx context.Context, a *model.Artwork) error
	LinkArtist(ctx context.Context, artworkID, artistID string) error
	AddExternalID(ctx context.Context, artworkID, source, externalID string) error

	// Artists
	FindArtistByKey(ctx context.Context, canonicalKey string) (*model.Artist, error)
	FindArtistsFuzzy(ctx context.Context, name string, limit int) ([]model.Artist, error)
	CreateArtist(ctx context.Context, a *model.Artist) (string, error)
	ListArtists(ctx context.Context) ([]model.Artist, error)

	// Audit
	AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error
	SaveBatchReport(ctx context.Context, r *model.BatchReport) error
	GetBatchReport(ctx context.Context, importID string) (*model.BatchReport, error)

	// WithTx runs fn against a transaction-scoped view of the store.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
