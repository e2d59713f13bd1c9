package ingest

import (
	"context"

	"github.com/jonathan/companies-search/internal/db"
	"github.com/jonathan/companies-search/internal/metrics"
)

// DefaultBatchSize is the number of rows upserted per storage round trip.
// Matches the batch size the source system used for the full dataset: large
// enough to amortize round trips, small enough for frequent progress updates.
const DefaultBatchSize = 1000

// CompanyStore is the slice of the storage layer the pipeline writes to.
// Implemented by db.DB.
type CompanyStore interface {
	UpsertCompanies(ctx context.Context, companies []db.Company) (stored, skipped int, err error)
}

// parsedRow carries one decoded record plus the input offset at which it was
// parsed, so the sink can estimate the total row count from the byte ratio.
type parsedRow struct {
	company db.Company
	offset  int64
}

// sink accumulates parsed rows into fixed-size batches and flushes each batch
// to the store, updating the tracker after every flush.
type sink struct {
	store     CompanyStore
	tracker   *Tracker
	metrics   *metrics.Metrics
	batchSize int
	// streamSize is the uncompressed CSV size hint, 0 when unknown.
	streamSize int64

	batch      []db.Company
	rowsSeen   int64
	lastOffset int64
}

func newSink(store CompanyStore, tracker *Tracker, m *metrics.Metrics, batchSize int, streamSize int64) *sink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &sink{
		store:      store,
		tracker:    tracker,
		metrics:    m,
		batchSize:  batchSize,
		streamSize: streamSize,
		batch:      make([]db.Company, 0, batchSize),
	}
}

// add buffers one row, flushing when the batch is full.
func (s *sink) add(ctx context.Context, row parsedRow) error {
	s.batch = append(s.batch, row.company)
	s.rowsSeen++
	s.lastOffset = row.offset
	if len(s.batch) >= s.batchSize {
		return s.flush(ctx)
	}
	return nil
}

// flush upserts the buffered batch and publishes progress. A storage error
// that survives the per-row retry is terminal for the run.
func (s *sink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	stored, skipped, err := s.store.UpsertCompanies(ctx, s.batch)
	if err != nil {
		return err
	}
	s.tracker.addBatch(int64(stored), s.estimateTotal())
	s.metrics.AddRecords(metrics.RecordStored, int64(stored))
	if skipped > 0 {
		s.tracker.addRowErrors(int64(skipped))
		s.metrics.AddRecords(metrics.RecordSkipped, int64(skipped))
	}
	s.batch = s.batch[:0]
	return nil
}

// estimateTotal extrapolates the total row count from the bytes consumed so
// far against the uncompressed stream size. Returns 0 while no basis exists;
// the tracker clamps the estimate to keep processed <= total.
func (s *sink) estimateTotal() int64 {
	if s.streamSize <= 0 || s.lastOffset <= 0 || s.rowsSeen == 0 {
		return 0
	}
	if s.lastOffset >= s.streamSize {
		return s.rowsSeen
	}
	return int64(float64(s.rowsSeen) * float64(s.streamSize) / float64(s.lastOffset))
}
