// Package engine orchestrates one import batch: normalize each record,
// resolve artists, find and score duplicate candidates, decide, and
// apply the decision in a per-record transaction. One audit entry per
// input record, always.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/art-atlas/import-cli/internal/config"
	"github.com/art-atlas/import-cli/internal/match"
	"github.com/art-atlas/import-cli/internal/model"
	"github.com/art-atlas/import-cli/internal/normalize"
	"github.com/art-atlas/import-cli/internal/resilience"
	"github.com/art-atlas/import-cli/internal/resolver"
	"github.com/art-atlas/import-cli/internal/scorer"
	"github.com/art-atlas/import-cli/internal/spatial"
	"github.com/art-atlas/import-cli/internal/store"
)

// Skip reasons recorded on audit entries.
const (
	ReasonAmbiguous    = "ambiguous"
	ReasonBatchTimeout = "batch_timeout"
)

// CodeNearMiss marks a below-threshold best candidate surfaced for
// false-negative review.
const CodeNearMiss = "NEAR_MISS"

// Engine runs import batches against a store.
type Engine struct {
	store store.Store
	cfg   config.ImportConfig
	retry resilience.RetryConfig
}

// New creates an Engine. Zero-valued config knobs get the documented
// defaults once, here.
func New(st store.Store, cfg config.ImportConfig) *Engine {
	return &Engine{
		store: st,
		cfg:   cfg.ApplyDefaults(),
		retry: resilience.DefaultRetryConfig(),
	}
}

// batchDeps are the per-batch collaborators threaded to every worker.
type batchDeps struct {
	resolver *resolver.Resolver
	index    *spatial.Index
	scorer   *scorer.Scorer
	executor *Executor
}

// Run processes a batch and returns its report. Record failures become
// error entries; records not reached before the batch timeout become
// skipped entries. The returned error covers batch-level failures only
// (snapshot load, report persistence).
func (e *Engine) Run(ctx context.Context, importID string, raws []model.RawRecord) (*model.BatchReport, error) {
	if importID == "" {
		importID = uuid.NewString()
	}
	startedAt := time.Now().UTC()
	log := zap.L().With(zap.String("import_id", importID))
	log.Info("engine: batch started", zap.Int("records", len(raws)))

	snap, err := resolver.LoadSnapshot(ctx, e.store)
	if err != nil {
		return nil, err
	}
	deps := batchDeps{
		resolver: resolver.New(e.store, snap, importID, e.cfg.ArtistMatchThreshold),
		index:    spatial.New(e.store, e.cfg.SpatialThresholds, e.cfg.MaxCandidates, e.retry),
		scorer:   scorer.New(e.cfg.SpatialThresholds, e.cfg.Weights),
		executor: NewExecutor(e.store, e.retry),
	}
	reporter := NewReporter()

	// The deadline is cooperative: it is checked before a record starts,
	// never by cancelling a record mid-transaction. In-flight records
	// finish; unstarted ones become skipped entries.
	deadline := startedAt.Add(time.Duration(e.cfg.BatchTimeoutSeconds) * time.Second)

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, raw := range raws {
		g.Go(func() error {
			entry := e.processRecord(ctx, importID, i, raw, deps, deadline)
			reporter.Collect(entry)

			if err := resilience.Do(ctx, e.retry, func(ctx context.Context) error {
				return e.store.AppendAuditEntry(ctx, &entry)
			}); err != nil {
				log.Error("engine: audit entry write failed",
					zap.Int("record_index", i), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	report := reporter.Finalize(importID, startedAt)
	if err := resilience.Do(ctx, e.retry, func(ctx context.Context) error {
		return e.store.SaveBatchReport(ctx, report)
	}); err != nil {
		return report, err
	}

	log.Info("engine: batch finished",
		zap.Int("created", report.Totals.Created),
		zap.Int("updated", report.Totals.Updated),
		zap.Int("merged", report.Totals.Merged),
		zap.Int("duplicates", report.Totals.Duplicates),
		zap.Int("skipped", report.Totals.Skipped),
		zap.Int("errors", report.Totals.Errors),
	)
	return report, nil
}

func (e *Engine) processRecord(ctx context.Context, importID string, idx int, raw model.RawRecord, deps batchDeps, deadline time.Time) model.AuditEntry {
	entry := model.AuditEntry{
		ImportID:    importID,
		RecordIndex: idx,
		Timestamp:   time.Now().UTC(),
	}

	if ctx.Err() != nil || time.Now().After(deadline) {
		entry.Action = model.ActionSkipped
		entry.Reason = ReasonBatchTimeout
		return entry
	}

	rec, warnings, err := normalize.Record(idx, raw, normalize.Options{
		RequireCoordinates: e.cfg.RequireCoordinates,
		DefaultSource:      e.cfg.DefaultSource,
	})
	entry.Warnings = warnings
	if err != nil {
		entry.Action = model.ActionError
		entry.Errors = append(entry.Errors, err.Error())
		return entry
	}

	resolved, artistWarnings, err := deps.resolver.Resolve(ctx, rec.ArtistNames, idx, e.cfg.CreateMissingArtists)
	if err != nil {
		entry.Action = model.ActionError
		entry.Errors = append(entry.Errors, err.Error())
		return entry
	}
	entry.Warnings = append(entry.Warnings, artistWarnings...)
	artistIDs := make([]string, 0, len(resolved))
	for _, r := range resolved {
		artistIDs = append(artistIDs, r.ArtistID)
	}

	candidates, err := e.findCandidates(ctx, rec, artistIDs, deps)
	if err != nil {
		entry.Action = model.ActionError
		entry.Errors = append(entry.Errors, err.Error())
		return entry
	}

	dec := scorer.Decide(candidates, e.cfg.MergeConfidenceThreshold, e.cfg.AmbiguityMargin)
	if dec.Best != nil {
		entry.Confidence = dec.Best.Confidence
		entry.MatchedArtworkID = dec.Best.ArtworkID
		entry.MatchedReason = dec.Best.MatchedReason
	}
	if dec.Action == model.DecisionCreate && dec.Best != nil {
		entry.NearMisses = []model.DuplicateCandidate{*dec.Best}
		entry.Warnings = append(entry.Warnings, model.Warning{
			Field: "match",
			Code:  CodeNearMiss,
			Message: fmt.Sprintf("artwork %s scored %.2f, below merge threshold %.2f",
				dec.Best.ArtworkID, dec.Best.Confidence, e.cfg.MergeConfidenceThreshold),
		})
	}
	if dec.Action == model.DecisionFlagAmbiguous {
		entry.Reason = ReasonAmbiguous
		entry.Candidates = dec.Candidates
	}

	res, err := deps.executor.Apply(ctx, rec, dec, artistIDs)
	if err != nil {
		entry.Action = model.ActionError
		entry.Errors = append(entry.Errors, err.Error())
		return entry
	}

	entry.Action = res.Action
	entry.ArtworkID = res.ArtworkID
	entry.FieldChanges = res.Changes.FieldChanges
	entry.TagsConflictCount = res.Changes.TagsConflictCount
	entry.SkippedCoordinateMerge = !rec.HasCoordinates

	zap.L().Debug("engine: record processed",
		zap.String("import_id", importID),
		zap.Int("record_index", idx),
		zap.String("action", string(entry.Action)),
		zap.Float64("confidence", entry.Confidence),
	)
	return entry
}

// findCandidates builds the scored candidate set: a direct external-id
// lookup first, then the spatial neighborhood. An external-id hit makes
// the artwork a candidate even outside the spatial cutoff.
func (e *Engine) findCandidates(ctx context.Context, rec model.ImportRecord, artistIDs []string, deps batchDeps) ([]model.DuplicateCandidate, error) {
	var candidates []model.DuplicateCandidate
	directID := ""

	if rec.Source != "" && rec.ExternalID != "" {
		var art *model.Artwork
		err := resilience.Do(ctx, e.retry, func(ctx context.Context) error {
			var qErr error
			art, qErr = e.store.GetArtworkByExternalID(ctx, rec.Source, rec.ExternalID)
			return qErr
		})
		if err != nil {
			return nil, err
		}
		if art != nil {
			dist := 0.0
			if rec.HasCoordinates && art.HasLocation {
				dist = match.HaversineMeters(rec.Lat, rec.Lon, art.Lat, art.Lon)
			}
			candidates = append(candidates, deps.scorer.Score(rec, art, dist, artistIDs))
			directID = art.ID
		}
	}

	if !rec.HasCoordinates {
		return candidates, nil
	}

	hits, err := deps.index.FindCandidates(ctx, rec.Lat, rec.Lon)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		if hit.ID == directID {
			continue
		}
		var art *model.Artwork
		err := resilience.Do(ctx, e.retry, func(ctx context.Context) error {
			var qErr error
			art, qErr = e.store.GetArtwork(ctx, hit.ID)
			return qErr
		})
		if err != nil {
			return nil, err
		}
		if art == nil {
			continue
		}
		candidates = append(candidates, deps.scorer.Score(rec, art, hit.DistanceMeters, artistIDs))
	}
	return candidates, nil
}
