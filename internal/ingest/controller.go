package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/companies-search/internal/metrics"
)

// ErrAlreadyRunning is returned by Start when an ingestion run is active.
var ErrAlreadyRunning = errors.New("ingestion already running")

// OpenFunc opens the dataset byte stream. It returns the decompressed reader
// and the uncompressed size hint in bytes (0 when unknown).
type OpenFunc func(ctx context.Context) (io.ReadCloser, int64, error)

// Config wires a Controller.
type Config struct {
	// Open fetches the dataset stream; typically backed by fetch.Archive.
	Open OpenFunc
	// Store receives the upsert batches.
	Store CompanyStore
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Controller owns the ingestion job state machine. It enforces that at most
// one run is active, launches the pipeline as a background goroutine, and
// serves non-blocking status snapshots.
type Controller struct {
	open      OpenFunc
	store     CompanyStore
	batchSize int
	metrics   *metrics.Metrics
	tracker   *Tracker

	mu sync.Mutex // serializes the check-and-start transition
}

// NewController builds a controller in the Idle state.
func NewController(cfg Config) *Controller {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Controller{
		open:      cfg.Open,
		store:     cfg.Store,
		batchSize: batchSize,
		metrics:   cfg.Metrics,
		tracker:   NewTracker(),
	}
}

// Start launches a new ingestion run in the background and returns
// immediately. Returns ErrAlreadyRunning if a run is active; the check and
// the transition out of Idle happen under one lock, so concurrent callers
// cannot both observe an idle job.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracker.active() {
		return ErrAlreadyRunning
	}

	jobID := uuid.New()
	c.tracker.begin(jobID, time.Now())
	go c.run(context.Background(), jobID)
	return nil
}

// Status returns a snapshot of the current job. Safe for any number of
// concurrent callers and never blocks on the pipeline.
func (c *Controller) Status() Snapshot {
	return c.tracker.Snapshot()
}

// run executes one full download-parse-upsert pipeline. Run-level failures
// end in the Failed state; they are never returned to the start caller.
func (c *Controller) run(ctx context.Context, jobID uuid.UUID) {
	started := time.Now()
	log.Printf("[ingest] run %s: downloading dataset", jobID)

	stream, streamSize, err := c.open(ctx)
	if err != nil {
		c.fail(jobID, started, fmt.Errorf("dataset fetch failed: %w", err))
		return
	}
	defer func() { _ = stream.Close() }()

	c.tracker.markProcessing()
	log.Printf("[ingest] run %s: download complete, processing (%d bytes uncompressed)", jobID, streamSize)

	parser, err := NewParser(stream)
	if err != nil {
		c.fail(jobID, started, err)
		return
	}

	rows := make(chan parsedRow, c.batchSize)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.parseStage(gCtx, parser, rows)
	})
	g.Go(func() error {
		return c.sinkStage(gCtx, rows, streamSize)
	})

	if err := g.Wait(); err != nil {
		c.fail(jobID, started, err)
		return
	}

	snap := c.tracker.complete()
	c.metrics.ObserveRun(metrics.RunCompleted, time.Since(started))
	log.Printf("[ingest] run %s: completed, %d records stored, %d rows skipped",
		jobID, snap.ProcessedRecords, snap.ErrorRecords)
}

// parseStage decodes rows and hands them to the sink stage. Malformed rows
// are counted and dropped; a structural failure aborts the run.
func (c *Controller) parseStage(ctx context.Context, parser *Parser, rows chan<- parsedRow) error {
	defer close(rows)
	for {
		company, err := parser.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if company == nil {
			c.tracker.addRowErrors(1)
			c.metrics.AddRecords(metrics.RecordSkipped, 1)
			continue
		}
		select {
		case rows <- parsedRow{company: *company, offset: parser.InputOffset()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sinkStage batches rows and flushes them to the store until the parse stage
// closes the channel, then flushes the remainder.
func (c *Controller) sinkStage(ctx context.Context, rows <-chan parsedRow, streamSize int64) error {
	s := newSink(c.store, c.tracker, c.metrics, c.batchSize, streamSize)
	for {
		select {
		case row, ok := <-rows:
			if !ok {
				return s.flush(ctx)
			}
			if err := s.add(ctx, row); err != nil {
				return fmt.Errorf("storage batch failed: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fail records a terminal run failure.
func (c *Controller) fail(jobID uuid.UUID, started time.Time, err error) {
	c.tracker.fail(err.Error())
	c.metrics.ObserveRun(metrics.RunFailed, time.Since(started))
	log.Printf("[ingest] run %s: failed: %v", jobID, err)
}
