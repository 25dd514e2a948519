package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/art-atlas/import-cli/internal/model"
)

// Reporter collects audit entries from concurrent workers and produces
// the batch report. The report is the only authoritative summary of a
// run; totals are tallied from entries, never tracked separately.
type Reporter struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Collect records one entry. Safe for concurrent use.
func (r *Reporter) Collect(e model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Finalize builds the batch report: entries ordered by record index,
// totals tallied from their actions.
func (r *Reporter) Finalize(importID string, startedAt time.Time) *model.BatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]model.AuditEntry, len(r.entries))
	copy(records, r.entries)
	sort.Slice(records, func(i, j int) bool {
		return records[i].RecordIndex < records[j].RecordIndex
	})

	report := &model.BatchReport{
		ImportID:   importID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Records:    records,
	}
	for _, e := range records {
		report.Totals.Add(e.Action)
	}
	return report
}
