package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/scorepipe/internal/domain/dedupe"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

const defaultBatchSize = 500

// ScoreWriter is the part of the score store the insert queue needs.
type ScoreWriter interface {
	Exists(ctx context.Context, scoreID string) (bool, error)
	Insert(ctx context.Context, doc *model.ScoreDocument) (bool, error)
	InsertMany(ctx context.Context, docs []*model.ScoreDocument) ([]string, error)
}

// SkipReason says why an insert attempt was dropped.
type SkipReason string

// Skip reasons.
const (
	SkipNone        SkipReason = ""
	SkipBlacklisted SkipReason = "blacklisted"
	SkipExists      SkipReason = "exists"
	SkipInFlight    SkipReason = "in_flight"
	SkipRaced       SkipReason = "raced"
)

// InsertQueue batches score writes for one import of one user. A scoreID is
// written at most once per queue; it stays claimed after its flush.
type InsertQueue struct {
	userID    string
	store     ScoreWriter
	blacklist map[string]struct{}
	inflight  dedupe.Deduper
	batchSize int
	logger    logger.Logger

	mu       sync.Mutex
	pending  []*model.ScoreDocument
	inserted []string
	dropped  []string
}

// NewInsertQueue creates a queue for userID. blacklist is the user's set of
// never-insert score IDs, loaded once by the caller.
func NewInsertQueue(userID string, store ScoreWriter, blacklist map[string]struct{}, opts ...InsertOption) *InsertQueue {
	q := &InsertQueue{
		userID:    userID,
		store:     store,
		blacklist: blacklist,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Get().Named("insert-queue")
	}
	q.logger = q.logger.With(logger.String("userID", userID))
	q.inflight = dedupe.NewInMemoryDeduper(dedupe.WithSizeHint(q.batchSize))
	return q
}

// Check reports whether scoreID should be dropped before any work is done
// for it.
func (q *InsertQueue) Check(ctx context.Context, scoreID string) (bool, SkipReason, error) {
	if _, ok := q.blacklist[scoreID]; ok {
		return true, SkipBlacklisted, nil
	}
	if q.inflight.Seen(ctx, scoreID) {
		return true, SkipInFlight, nil
	}
	exists, err := q.store.Exists(ctx, scoreID)
	if err != nil {
		return false, SkipNone, fmt.Errorf("check score %s: %w", scoreID, err)
	}
	if exists {
		return true, SkipExists, nil
	}
	return false, SkipNone, nil
}

// Add queues doc. queued=false means another attempt already claimed the
// same scoreID; callers treat it as a skip. A full buffer is flushed before
// Add returns.
func (q *InsertQueue) Add(ctx context.Context, doc *model.ScoreDocument) (bool, error) {
	if q.inflight.SeenAndRecord(ctx, doc.ScoreID) {
		return false, nil
	}
	q.mu.Lock()
	q.pending = append(q.pending, doc)
	full := len(q.pending) >= q.batchSize
	q.mu.Unlock()

	if full {
		if _, err := q.Flush(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// InsertNow writes doc immediately, bypassing the buffer. inserted=false
// means the score was already persisted.
func (q *InsertQueue) InsertNow(ctx context.Context, doc *model.ScoreDocument) (bool, error) {
	if q.inflight.SeenAndRecord(ctx, doc.ScoreID) {
		return false, nil
	}
	ok, err := q.store.Insert(ctx, doc)
	if err != nil {
		q.inflight.Unrecord(ctx, doc.ScoreID)
		metrics.RecordFlushError()
		return false, fmt.Errorf("insert score %s: %w", doc.ScoreID, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if ok {
		q.inserted = append(q.inserted, doc.ScoreID)
		metrics.RecordFlush(1)
	} else {
		q.dropped = append(q.dropped, doc.ScoreID)
	}
	return ok, nil
}

// Flush writes every pending document and returns how many were persisted.
// It is safe to call repeatedly and on an empty queue. On error the batch
// stays pending so a later Flush can retry it.
func (q *InsertQueue) Flush(ctx context.Context) (int, error) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	ids, err := q.store.InsertMany(ctx, batch)
	if err != nil {
		q.mu.Lock()
		q.pending = append(batch, q.pending...)
		q.mu.Unlock()
		metrics.RecordFlushError()
		q.logger.Error(ctx, "insert queue flush failed", logger.Int("batch", len(batch)), logger.Error(err))
		return 0, fmt.Errorf("flush %d scores: %w", len(batch), err)
	}

	written := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		written[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, doc := range batch {
		if _, ok := written[doc.ScoreID]; ok {
			q.inserted = append(q.inserted, doc.ScoreID)
			continue
		}
		// another import of the same user won the race
		q.dropped = append(q.dropped, doc.ScoreID)
		metrics.RecordSkip(string(SkipRaced))
	}
	metrics.RecordFlush(len(ids))
	q.logger.Debug(ctx, "insert queue flushed", logger.Int("batch", len(batch)), logger.Int("written", len(ids)))
	return len(ids), nil
}

// Pending returns the number of buffered documents.
func (q *InsertQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Inserted returns the IDs this queue persisted so far.
func (q *InsertQueue) Inserted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.inserted...)
}

// Dropped returns IDs that were queued but found already persisted at write
// time.
func (q *InsertQueue) Dropped() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.dropped...)
}
