// Package ingest implements the asynchronous dataset ingestion pipeline:
// download, streaming parse, and batched upsert into the company store, with
// live progress reporting and a single active run at a time.
package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an ingestion job.
type Status string

// Job lifecycle states. A job moves Idle -> Downloading -> Processing and ends
// in Completed or Failed, which are terminal until the next accepted start.
const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Snapshot is an immutable view of the current ingestion job. Every field is
// always present; zero values mean "not applicable yet". TotalRecords is 0
// until the pipeline has enough data to estimate it.
type Snapshot struct {
	Status               Status  `json:"status"`
	StartedAt            string  `json:"started_at"`
	ProcessedRecords     int64   `json:"processed_records"`
	TotalRecords         int64   `json:"total_records"`
	CompletionPercentage float64 `json:"completion_percentage"`
	ErrorRecords         int64   `json:"error_records"`
	LastError            string  `json:"last_error"`
}

// Tracker holds the mutable state of the current ingestion job. The active
// pipeline is the only writer; any number of pollers may read concurrently.
type Tracker struct {
	mu        sync.RWMutex
	jobID     uuid.UUID
	status    Status
	startedAt time.Time
	processed int64
	total     int64
	errors    int64
	lastError string
}

// NewTracker returns a tracker in the Idle state with zeroed counters.
func NewTracker() *Tracker {
	return &Tracker{status: StatusIdle}
}

// Snapshot returns the current job state. It never blocks on pipeline progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// snapshotLocked builds the snapshot; callers must hold t.mu.
func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:           t.status,
		ProcessedRecords: t.processed,
		TotalRecords:     t.total,
		ErrorRecords:     t.errors,
		LastError:        t.lastError,
	}
	if !t.startedAt.IsZero() {
		s.StartedAt = t.startedAt.UTC().Format(time.RFC3339)
	}
	if t.total > 0 {
		pct := 100 * float64(t.processed) / float64(t.total)
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		s.CompletionPercentage = pct
	}
	return s
}

// active reports whether a run currently owns the tracker.
func (t *Tracker) active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status == StatusDownloading || t.status == StatusProcessing
}

// begin resets all counters and moves the tracker into Downloading for a new
// run. The caller must have already established that no run is active.
func (t *Tracker) begin(jobID uuid.UUID, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobID = jobID
	t.status = StatusDownloading
	t.startedAt = now
	t.processed = 0
	t.total = 0
	t.errors = 0
	t.lastError = ""
}

// markProcessing records that the byte stream arrived and parsing has begun.
func (t *Tracker) markProcessing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusProcessing
}

// addBatch adds a flushed batch to the processed counter and refreshes the
// total estimate. The estimate is clamped so processed never exceeds total.
func (t *Tracker) addBatch(stored int64, estimatedTotal int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed += stored
	if estimatedTotal > 0 {
		t.total = estimatedTotal
	}
	if t.total > 0 && t.total < t.processed {
		t.total = t.processed
	}
}

// addRowErrors counts malformed or rejected rows that were skipped.
func (t *Tracker) addRowErrors(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors += n
}

// complete marks the run Completed and pins the total to the processed count,
// replacing the running estimate with the exact figure. The returned snapshot
// is taken under the same lock as the transition, so it cannot reflect a
// superseding run.
func (t *Tracker) complete() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusCompleted
	t.total = t.processed
	return t.snapshotLocked()
}

// fail marks the run Failed with the given reason.
func (t *Tracker) fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.lastError = reason
}
