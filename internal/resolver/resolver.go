// Package resolver maps artist names from import records onto artist
// entities, optionally creating missing ones. Exact-key lookups are
// served from a snapshot loaded once per batch and fall back to the
// store, so rows created outside the snapshot still resolve; fuzzy
// candidates come from the store and are re-ranked in process so the
// pick is deterministic regardless of backend.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/art-atlas/import-cli/internal/match"
	"github.com/art-atlas/import-cli/internal/model"
)

// CodeArtistNotFound marks an artist slot that could not be resolved
// and was not allowed to be created.
const CodeArtistNotFound = "ARTIST_NOT_FOUND"

// Lookup is the slice of the store the resolver needs.
type Lookup interface {
	ListArtists(ctx context.Context) ([]model.Artist, error)
	FindArtistByKey(ctx context.Context, canonicalKey string) (*model.Artist, error)
	FindArtistsFuzzy(ctx context.Context, name string, limit int) ([]model.Artist, error)
	CreateArtist(ctx context.Context, a *model.Artist) (string, error)
}

// fuzzyCandidateLimit caps how many store candidates a single name is
// re-ranked against.
const fuzzyCandidateLimit = 25

// Snapshot is the batch-scoped artist cache: canonical key -> artist.
// Loaded once at batch start; store lookups fill in anything newer.
type Snapshot struct {
	byKey map[string]model.Artist
}

// LoadSnapshot reads every artist from the store. On key collisions the
// lowest artist id wins, matching the deterministic tiebreak used
// everywhere else.
func LoadSnapshot(ctx context.Context, lookup Lookup) (*Snapshot, error) {
	artists, err := lookup.ListArtists(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{byKey: make(map[string]model.Artist, len(artists))}
	for _, a := range artists {
		key := match.CanonicalKey(a.CanonicalName)
		if existing, ok := snap.byKey[key]; !ok || a.ID < existing.ID {
			snap.byKey[key] = a
		}
	}
	return snap, nil
}

// Resolver resolves artist names for one batch.
type Resolver struct {
	lookup    Lookup
	importID  string
	threshold float64 // similarity at or above which two names are the same person

	mu   sync.Mutex
	snap *Snapshot
}

// New creates a Resolver over a loaded snapshot.
func New(lookup Lookup, snap *Snapshot, importID string, threshold float64) *Resolver {
	return &Resolver{lookup: lookup, snap: snap, importID: importID, threshold: threshold}
}

// Resolve maps each name independently to an artist id. Unresolvable
// names either create a new artist (createMissing) or produce an
// ARTIST_NOT_FOUND warning; the record proceeds either way.
func (r *Resolver) Resolve(ctx context.Context, names []string, recordIndex int, createMissing bool) ([]model.ResolvedArtist, []model.Warning, error) {
	var resolved []model.ResolvedArtist
	var warnings []model.Warning

	for _, name := range names {
		key := match.CanonicalKey(name)
		if key == "" {
			continue
		}

		res, warn, err := r.resolveOne(ctx, name, key, recordIndex, createMissing)
		if err != nil {
			return nil, nil, err
		}
		if warn != nil {
			warnings = append(warnings, *warn)
			continue
		}
		resolved = append(resolved, res)
	}
	return resolved, warnings, nil
}

func (r *Resolver) resolveOne(ctx context.Context, name, key string, recordIndex int, createMissing bool) (model.ResolvedArtist, *model.Warning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Exact canonical-key match, snapshot first, then the store for
	// artists created after the snapshot was taken.
	if a, ok := r.snap.byKey[key]; ok {
		return model.ResolvedArtist{ArtistID: a.ID, Name: name}, nil, nil
	}
	if a, err := r.lookup.FindArtistByKey(ctx, key); err != nil {
		return model.ResolvedArtist{}, nil, err
	} else if a != nil {
		r.snap.byKey[key] = *a
		return model.ResolvedArtist{ArtistID: a.ID, Name: name}, nil, nil
	}

	// Fuzzy match over store candidates. The threshold is intentionally
	// high: linking two distinct people is far worse than a duplicate
	// artist row.
	best, sim, err := r.bestFuzzy(ctx, name)
	if err != nil {
		return model.ResolvedArtist{}, nil, err
	}
	if best != nil && sim >= r.threshold {
		zap.L().Debug("resolver: fuzzy artist link",
			zap.String("name", name),
			zap.String("artist_id", best.ID),
			zap.Float64("similarity", sim),
		)
		return model.ResolvedArtist{ArtistID: best.ID, Name: name}, nil, nil
	}

	if !createMissing {
		return model.ResolvedArtist{}, &model.Warning{
			Field:   "artist",
			Code:    CodeArtistNotFound,
			Message: fmt.Sprintf("no artist matches %q", name),
		}, nil
	}

	// Create with the original display form, tagged with provenance.
	artist := &model.Artist{
		CanonicalName: name,
		Notes: fmt.Sprintf("autoCreatedFromImport: %s\nsourceRecordIndex: %d",
			r.importID, recordIndex),
	}
	id, err := r.lookup.CreateArtist(ctx, artist)
	if err != nil {
		return model.ResolvedArtist{}, nil, err
	}
	artist.ID = id

	// Later records in this batch resolve to the same new artist.
	r.snap.byKey[key] = *artist

	return model.ResolvedArtist{ArtistID: id, Name: name, Created: true}, nil, nil
}

// bestFuzzy pulls candidates from the store and re-ranks them with the
// same similarity metric on every backend, ties broken by lower artist
// id. Batch-created artists are already persisted, so they surface too.
func (r *Resolver) bestFuzzy(ctx context.Context, name string) (*model.Artist, float64, error) {
	candidates, err := r.lookup.FindArtistsFuzzy(ctx, name, fuzzyCandidateLimit)
	if err != nil {
		return nil, 0, err
	}
	var best *model.Artist
	bestSim := 0.0
	for i := range candidates {
		a := &candidates[i]
		sim := match.Similarity(name, a.CanonicalName)
		if sim > bestSim || (sim == bestSim && best != nil && a.ID < best.ID) {
			best = a
			bestSim = sim
		}
	}
	return best, bestSim, nil
}
