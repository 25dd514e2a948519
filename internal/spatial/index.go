// Package spatial finds merge candidates near a coordinate and assigns
// them to distance tiers. The actual indexed query lives in the store;
// this package owns tiers and cutoffs.
package spatial

import (
	"context"
	"sort"

	"github.com/art-atlas/import-cli/internal/config"
	"github.com/art-atlas/import-cli/internal/resilience"
	"github.com/art-atlas/import-cli/internal/store"
)

// Finder is the slice of the store the index needs.
type Finder interface {
	FindNearbyArtworks(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]store.NearbyArtwork, error)
}

// Tier is a distance bracket used to weight spatial proximity.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
	TierNone   Tier = "none" // beyond the low cutoff, never a candidate
)

// Index queries nearby artworks within the configured low-tier radius.
type Index struct {
	finder     Finder
	thresholds config.SpatialThresholds
	limit      int
	retry      resilience.RetryConfig
}

// New creates an Index. The retry policy applies to the underlying
// store query only.
func New(finder Finder, thresholds config.SpatialThresholds, limit int, retry resilience.RetryConfig) *Index {
	return &Index{finder: finder, thresholds: thresholds, limit: limit, retry: retry}
}

// FindCandidates returns artworks within the low-tier radius, ascending
// by distance with id as the deterministic tiebreak.
func (ix *Index) FindCandidates(ctx context.Context, lat, lon float64) ([]store.NearbyArtwork, error) {
	var hits []store.NearbyArtwork
	err := resilience.Do(ctx, ix.retry, func(ctx context.Context) error {
		var qErr error
		hits, qErr = ix.finder.FindNearbyArtworks(ctx, lat, lon, ix.thresholds.Low, ix.limit)
		return qErr
	})
	if err != nil {
		return nil, err
	}

	// The store contract already orders by (distance, id); enforce it
	// anyway so scoring determinism never depends on a backend detail.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// TierOf maps a distance in meters to its tier.
func (ix *Index) TierOf(distanceMeters float64) Tier {
	switch {
	case distanceMeters <= ix.thresholds.High:
		return TierHigh
	case distanceMeters <= ix.thresholds.Medium:
		return TierMedium
	case distanceMeters <= ix.thresholds.Low:
		return TierLow
	default:
		return TierNone
	}
}
