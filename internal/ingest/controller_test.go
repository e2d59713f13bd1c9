package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/companies-search/internal/db"
)

// fakeStore is an in-memory CompanyStore.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]db.Company
	batches int

	failAll bool
	reject  map[string]bool
	// gate, when non-nil, blocks every upsert until released.
	gate chan struct{}
	// perBatchDelay slows upserts down so tests can observe a run in flight.
	perBatchDelay time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]db.Company)}
}

func (f *fakeStore) UpsertCompanies(_ context.Context, companies []db.Company) (int, int, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.perBatchDelay > 0 {
		time.Sleep(f.perBatchDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, 0, errors.New("connection reset by peer")
	}
	f.batches++
	stored, skipped := 0, 0
	for _, c := range companies {
		if f.reject[c.CompanyNumber] {
			skipped++
			continue
		}
		f.rows[c.CompanyNumber] = c
		stored++
	}
	return stored, skipped, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeStore) get(number string) (db.Company, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[number]
	return c, ok
}

func staticOpen(data string, size int64) OpenFunc {
	return func(context.Context) (io.ReadCloser, int64, error) {
		return io.NopCloser(strings.NewReader(data)), size, nil
	}
}

const testHeader = "CompanyName,CompanyNumber,CompanyStatus\n"

func waitForTerminal(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		s := c.Status().Status
		return s == StatusCompleted || s == StatusFailed
	}, 5*time.Second, 2*time.Millisecond)
	return c.Status()
}

func TestControllerCompletesThreeRowRun(t *testing.T) {
	data := testHeader +
		"Acme Ltd,00000001,Active\n" +
		"Acme Holdings,00000002,Active\n" +
		"Beta Widgets,00000003,Dissolved\n"
	store := newFakeStore()
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store, BatchSize: 2})

	require.NoError(t, c.Start())

	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, int64(3), snap.ProcessedRecords)
	assert.Equal(t, int64(3), snap.TotalRecords)
	assert.InDelta(t, 100.0, snap.CompletionPercentage, 0.001)
	assert.Zero(t, snap.ErrorRecords)
	assert.Empty(t, snap.LastError)
	assert.NotEmpty(t, snap.StartedAt)

	assert.Equal(t, 3, store.count())
	acme, ok := store.get("00000001")
	require.True(t, ok)
	assert.Equal(t, "Acme Ltd", acme.Name)
}

func TestControllerSkipsRowMissingCompanyNumber(t *testing.T) {
	data := testHeader +
		"Acme Ltd,00000001,Active\n" +
		"No Number Ltd,,Active\n" +
		"Beta Widgets,00000003,Active\n"
	store := newFakeStore()
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store})

	require.NoError(t, c.Start())

	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, int64(2), snap.ProcessedRecords)
	assert.Equal(t, int64(1), snap.ErrorRecords)
	assert.Equal(t, 2, store.count())
}

func TestControllerSingleFlight(t *testing.T) {
	data := testHeader + "Acme Ltd,00000001,Active\n"
	store := newFakeStore()
	store.gate = make(chan struct{})
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store, BatchSize: 1})

	// Many concurrent starts on an idle controller: exactly one wins.
	const starters = 8
	results := make(chan error, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Start()
		}()
	}
	wg.Wait()
	close(results)

	accepted, rejected := 0, 0
	for err := range results {
		if err == nil {
			accepted++
		} else {
			require.ErrorIs(t, err, ErrAlreadyRunning)
			rejected++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, starters-1, rejected)

	// Still rejected while the run is blocked on storage.
	require.ErrorIs(t, c.Start(), ErrAlreadyRunning)

	close(store.gate)
	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)

	// A terminal job can be superseded by a new accepted start.
	store.gate = nil
	require.NoError(t, c.Start())
	waitForTerminal(t, c)
}

func TestControllerFetchFailure(t *testing.T) {
	open := func(context.Context) (io.ReadCloser, int64, error) {
		return nil, 0, errors.New("connection refused")
	}
	c := NewController(Config{Open: open, Store: newFakeStore()})

	require.NoError(t, c.Start())

	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.LastError, "dataset fetch failed")
	assert.Contains(t, snap.LastError, "connection refused")
	assert.Zero(t, snap.ProcessedRecords)
}

func TestControllerStorageBatchFailure(t *testing.T) {
	data := testHeader + "Acme Ltd,00000001,Active\n"
	store := newFakeStore()
	store.failAll = true
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store})

	require.NoError(t, c.Start())

	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.LastError, "storage batch failed")
}

func TestControllerRowLevelStorageFailureIsRecoverable(t *testing.T) {
	data := testHeader +
		"Acme Ltd,00000001,Active\n" +
		"Poison Row Ltd,00000002,Active\n" +
		"Beta Widgets,00000003,Active\n"
	store := newFakeStore()
	store.reject = map[string]bool{"00000002": true}
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store})

	require.NoError(t, c.Start())

	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, int64(2), snap.ProcessedRecords)
	assert.Equal(t, int64(1), snap.ErrorRecords)
	assert.Equal(t, 2, store.count())
}

func TestControllerStructuralParseFailure(t *testing.T) {
	streamErr := errors.New("unexpected EOF")
	open := func(context.Context) (io.ReadCloser, int64, error) {
		r := &brokenReader{
			data: []byte(testHeader + "Acme Ltd,00000001,Active\n"),
			err:  streamErr,
		}
		return io.NopCloser(r), 0, nil
	}
	c := NewController(Config{Open: open, Store: newFakeStore()})

	require.NoError(t, c.Start())

	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.LastError, "structural parse failure")
}

func TestControllerProgressIsMonotonic(t *testing.T) {
	var b strings.Builder
	b.WriteString(testHeader)
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&b, "Company %02d Ltd,%08d,Active\n", i, i)
	}
	data := b.String()

	store := newFakeStore()
	store.perBatchDelay = time.Millisecond
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store, BatchSize: 5})

	require.NoError(t, c.Start())

	var last int64
	for {
		snap := c.Status()
		require.GreaterOrEqual(t, snap.ProcessedRecords, last)
		require.GreaterOrEqual(t, snap.CompletionPercentage, 0.0)
		require.LessOrEqual(t, snap.CompletionPercentage, 100.0)
		if snap.TotalRecords > 0 {
			require.LessOrEqual(t, snap.ProcessedRecords, snap.TotalRecords)
		}
		last = snap.ProcessedRecords
		if snap.Status == StatusCompleted || snap.Status == StatusFailed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	snap := c.Status()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, int64(50), snap.ProcessedRecords)
	assert.Equal(t, int64(50), snap.TotalRecords)
}

func TestControllerRepeatedIngestIsIdempotent(t *testing.T) {
	data := testHeader +
		"Acme Ltd,00000001,Active\n" +
		"Beta Widgets,00000002,Active\n"
	store := newFakeStore()
	c := NewController(Config{Open: staticOpen(data, int64(len(data))), Store: store})

	require.NoError(t, c.Start())
	waitForTerminal(t, c)
	require.Equal(t, 2, store.count())

	require.NoError(t, c.Start())
	snap := waitForTerminal(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, store.count(), "re-ingesting the same dataset must not duplicate records")
}
