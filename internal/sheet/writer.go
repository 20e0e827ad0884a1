package sheet

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/resilience"
)

// DefaultBatchRows is the flush threshold when none is configured.
const DefaultBatchRows = 25

// WriterOptions configures a Writer.
type WriterOptions struct {
	// StartRow drops every row above it. Zero keeps all rows.
	StartRow int
	// BatchRows flushes once this many rows are ready.
	BatchRows int
	// Ordered holds out-of-order completions until the rows before them
	// (as given to Expect) have arrived.
	Ordered bool
	Retry   resilience.RetryPolicy
	// Encode lays out a row. Nil uses EncodeRow.
	Encode func(model.AuditRow) RowValues
	// OnWrite runs after each successful flush with the rows it wrote.
	OnWrite func(ctx context.Context, rows []model.AuditRow)
}

// Writer batches audit rows into full B..N span writes.
type Writer struct {
	store Store
	opts  WriterOptions

	mu      sync.Mutex
	pending []model.AuditRow
	held    map[int]model.AuditRow
	order   []int
	next    int // index into order of the next row to release
	written map[int]bool
	cursor  int // index into order of the first row not known to be written
}

// NewWriter creates a writer over store.
func NewWriter(store Store, opts WriterOptions) *Writer {
	if opts.BatchRows <= 0 {
		opts.BatchRows = DefaultBatchRows
	}
	if opts.Encode == nil {
		opts.Encode = EncodeRow
	}
	return &Writer{
		store:   store,
		opts:    opts,
		held:    make(map[int]model.AuditRow),
		written: make(map[int]bool),
	}
}

// Expect declares the rows that will be added, in release order. Rows
// dropped by StartRow are ignored.
func (w *Writer) Expect(rows []int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.order = w.order[:0]
	for _, r := range rows {
		if r >= w.opts.StartRow {
			w.order = append(w.order, r)
		}
	}
	w.next = 0
	w.cursor = 0
}

// Add buffers a row and flushes when the batch is full.
func (w *Writer) Add(ctx context.Context, row model.AuditRow) error {
	if row.Task.Row < w.opts.StartRow {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opts.Ordered && len(w.order) > 0 {
		w.held[row.Task.Row] = row
		w.release()
	} else {
		w.pending = append(w.pending, row)
	}

	if len(w.pending) >= w.opts.BatchRows {
		return w.flushLocked(ctx)
	}
	return nil
}

// release moves held rows into pending while they arrive in order.
func (w *Writer) release() {
	for w.next < len(w.order) {
		r, ok := w.held[w.order[w.next]]
		if !ok {
			return
		}
		delete(w.held, w.order[w.next])
		w.pending = append(w.pending, r)
		w.next++
	}
}

// Flush writes every released row.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Close writes released rows and any rows still held behind a missing
// predecessor.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.held) > 0 {
		rows := make([]int, 0, len(w.held))
		for r := range w.held {
			rows = append(rows, r)
		}
		sort.Ints(rows)
		for _, r := range rows {
			w.pending = append(w.pending, w.held[r])
			delete(w.held, r)
		}
	}
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	batch := w.pending
	sort.Slice(batch, func(i, j int) bool { return batch[i].Task.Row < batch[j].Task.Row })

	values := make([]RowValues, len(batch))
	for i, r := range batch {
		values[i] = w.opts.Encode(r)
	}

	policy := w.opts.Retry
	if policy.BeforeRetry == nil {
		policy.BeforeRetry = resilience.LogRetry("sheet write")
	}
	err := resilience.Retry(ctx, policy, func(ctx context.Context) error {
		return w.store.WriteRows(ctx, values)
	})
	monitoring.ObserveFlush(len(batch), err)
	if err != nil {
		// Rows stay pending so the next flush retries them.
		return eris.Wrapf(err, "sheet: flush %d rows", len(batch))
	}

	w.pending = nil
	for _, r := range batch {
		w.written[r.Task.Row] = true
	}
	for w.cursor < len(w.order) && w.written[w.order[w.cursor]] {
		w.cursor++
	}

	zap.L().Debug("sheet: flushed rows",
		zap.Int("rows", len(batch)),
		zap.Int("blocks", len(Blocks(values))),
		zap.Int("first_row", batch[0].Task.Row),
		zap.Int("last_row", batch[len(batch)-1].Task.Row),
	)

	if w.opts.OnWrite != nil {
		w.opts.OnWrite(ctx, batch)
	}
	return nil
}

// Written returns the number of rows committed to the store.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

// Pending returns the number of rows buffered or held but not yet written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) + len(w.held)
}

// NextUnwritten returns the first expected row not yet written, or 0 when
// every expected row is in the store. Every expected row before it is written.
func (w *Writer) NextUnwritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cursor < len(w.order) {
		return w.order[w.cursor]
	}
	return 0
}
