package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-atlas/import-cli/internal/model"
)

func TestReporter_ConcurrentCollectSortedByIndex(t *testing.T) {
	r := NewReporter()

	var wg sync.WaitGroup
	for i := 9; i >= 0; i-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Collect(model.AuditEntry{RecordIndex: i, Action: model.ActionCreated})
		}()
	}
	wg.Wait()

	report := r.Finalize("imp-1", time.Now().UTC())
	require.Len(t, report.Records, 10)
	for i, e := range report.Records {
		assert.Equal(t, i, e.RecordIndex)
	}
	assert.Equal(t, 10, report.Totals.Created)
	assert.Equal(t, 10, report.Totals.Sum())
}

func TestReporter_TotalsTallyEveryAction(t *testing.T) {
	r := NewReporter()
	actions := []model.ImportAction{
		model.ActionCreated, model.ActionUpdated, model.ActionMerged,
		model.ActionSkipped, model.ActionDuplicate, model.ActionError,
	}
	for i, a := range actions {
		r.Collect(model.AuditEntry{RecordIndex: i, Action: a})
	}

	started := time.Now().UTC().Add(-time.Second)
	report := r.Finalize("imp-1", started)

	assert.Equal(t, model.Totals{
		Created: 1, Updated: 1, Merged: 1, Skipped: 1, Duplicates: 1, Errors: 1,
	}, report.Totals)
	assert.Equal(t, len(actions), report.Totals.Sum())
	assert.Equal(t, started, report.StartedAt)
	assert.False(t, report.FinishedAt.Before(started))
}
