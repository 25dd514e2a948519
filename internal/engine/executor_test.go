package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-atlas/import-cli/internal/model"
	"github.com/art-atlas/import-cli/internal/resilience"
	"github.com/art-atlas/import-cli/internal/store"
)

func newTestExecutor(t *testing.T) (*Executor, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "executor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return NewExecutor(st, resilience.NoRetry), st
}

func TestExecutor_FlagAmbiguousMutatesNothing(t *testing.T) {
	x, st := newTestExecutor(t)

	res, err := x.Apply(context.Background(),
		model.ImportRecord{Title: "Cloud Gate", HasCoordinates: true},
		model.MergeDecision{Action: model.DecisionFlagAmbiguous},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, model.ActionSkipped, res.Action)
	assert.Empty(t, res.ArtworkID)

	hits, err := st.FindNearbyArtworks(context.Background(), 0, 0, 1e7, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestExecutor_MergeTargetGoneIsError(t *testing.T) {
	x, _ := newTestExecutor(t)

	_, err := x.Apply(context.Background(),
		model.ImportRecord{Title: "x", HasCoordinates: true},
		model.MergeDecision{Action: model.DecisionMerge, TargetArtworkID: "missing"},
		nil,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer exists")
}

func TestExecutor_UnknownActionIsError(t *testing.T) {
	x, _ := newTestExecutor(t)

	_, err := x.Apply(context.Background(), model.ImportRecord{}, model.MergeDecision{Action: "explode"}, nil)
	require.Error(t, err)
}
