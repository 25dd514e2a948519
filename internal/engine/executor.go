package engine

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/art-atlas/import-cli/internal/merge"
	"github.com/art-atlas/import-cli/internal/model"
	"github.com/art-atlas/import-cli/internal/resilience"
	"github.com/art-atlas/import-cli/internal/store"
)

// Result is the executed outcome for one record.
type Result struct {
	Action    model.ImportAction
	ArtworkID string
	Changes   merge.Changes
}

// Executor applies one record's merge decision inside its own
// transaction. A record's failure never affects other records.
type Executor struct {
	store store.Store
	retry resilience.RetryConfig
}

// NewExecutor creates an Executor. The retry policy wraps each record's
// whole transaction, so a retried transient error replays a clean tx.
func NewExecutor(st store.Store, retry resilience.RetryConfig) *Executor {
	return &Executor{store: st, retry: retry}
}

// Apply executes a decision for a normalized record.
func (x *Executor) Apply(ctx context.Context, rec model.ImportRecord, dec model.MergeDecision, artistIDs []string) (Result, error) {
	switch dec.Action {
	case model.DecisionCreate:
		return x.create(ctx, rec, artistIDs)
	case model.DecisionMerge:
		return x.merge(ctx, rec, dec.TargetArtworkID, artistIDs)
	case model.DecisionFlagAmbiguous:
		// No mutation at all; the audit entry carries the tied candidates.
		return Result{Action: model.ActionSkipped}, nil
	default:
		return Result{}, eris.Errorf("engine: unknown decision action %q", dec.Action)
	}
}

func (x *Executor) create(ctx context.Context, rec model.ImportRecord, artistIDs []string) (Result, error) {
	art := &model.Artwork{
		Title:       rec.Title,
		Description: rec.Description,
		Lat:         rec.Lat,
		Lon:         rec.Lon,
		HasLocation: rec.HasCoordinates,
		Tags:        rec.Tags,
		ArtistIDs:   artistIDs,
		SourceURL:   rec.SourceURL,
	}
	if rec.Source != "" && rec.ExternalID != "" {
		art.ExternalIDs = map[string]string{rec.Source: rec.ExternalID}
	}

	var id string
	err := resilience.Do(ctx, x.retry, func(ctx context.Context) error {
		return x.store.WithTx(ctx, func(tx store.Store) error {
			var txErr error
			id, txErr = tx.CreateArtwork(ctx, art)
			return txErr
		})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Action: model.ActionCreated, ArtworkID: id}, nil
}

func (x *Executor) merge(ctx context.Context, rec model.ImportRecord, targetID string, artistIDs []string) (Result, error) {
	var res Result
	err := resilience.Do(ctx, x.retry, func(ctx context.Context) error {
		return x.store.WithTx(ctx, func(tx store.Store) error {
			target, err := tx.GetArtwork(ctx, targetID)
			if err != nil {
				return err
			}
			if target == nil {
				return eris.Errorf("engine: merge target %s no longer exists", targetID)
			}

			changes := merge.Apply(target, rec, artistIDs)
			if len(changes.FieldChanges) > 0 {
				if err := tx.UpdateArtwork(ctx, target); err != nil {
					return err
				}
			}
			for _, artistID := range changes.AddedArtistIDs {
				if err := tx.LinkArtist(ctx, targetID, artistID); err != nil {
					return err
				}
			}
			if changes.AddedExternalID {
				if err := tx.AddExternalID(ctx, targetID, rec.Source, rec.ExternalID); err != nil {
					return err
				}
			}

			res = Result{Action: changes.Action(), ArtworkID: targetID, Changes: changes}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
