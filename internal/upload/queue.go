// Package upload implements the durable upload queue and the scheduler
// that drains it.
//
// The queue is a FIFO over the pending_pings table: a ping is written
// durably before Enqueue returns, survives process restarts, and is
// removed only on a terminal outcome (2xx delivery or a permanent 4xx
// rejection). Capacity is bounded; when full the oldest entries are
// evicted and an overflow error is recorded, so a long offline period
// degrades to losing the oldest data instead of growing without bound.
package upload

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/core/db"
	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/pings"
	"github.com/solatis/beacon/internal/types"
)

// SchemaVersion is the ping payload schema generation, part of the
// submit path.
const SchemaVersion = 1

// SDKVersion identifies this library build in upload headers.
const SDKVersion = "0.1.0"

// QueuedUpload is one persisted, assembled-but-undelivered ping.
type QueuedUpload struct {
	DocumentID types.DocumentID
	Path       string
	Body       []byte
	Headers    map[string]string
}

// Queue is the durable FIFO of pending uploads.
type Queue struct {
	queries  *db.Queries
	store    *metrics.Store
	appID    string
	capacity int
	log      *logrus.Entry
}

// NewQueue creates a queue bound to an application ID and capacity.
func NewQueue(queries *db.Queries, store *metrics.Store, appID string, capacity int, log *logrus.Logger) *Queue {
	return &Queue{
		queries:  queries,
		store:    store,
		appID:    appID,
		capacity: capacity,
		log:      log.WithField("component", "upload"),
	}
}

// Enqueue serializes an assembled ping into a durable queue record.
// The record is committed before Enqueue returns; a crash immediately
// after loses nothing. Over-capacity eviction happens in the same
// transaction, oldest first, and is recorded as an overflow error.
func (q *Queue) Enqueue(ping *pings.AssembledPing) (*QueuedUpload, error) {
	path := fmt.Sprintf("/submit/%s/%s/%d/%s", q.appID, ping.DocType, SchemaVersion, ping.DocumentID)
	headers := map[string]string{
		"Content-Type":     "application/json; charset=utf-8",
		"X-Client-Type":    "beacon",
		"X-Client-Version": SDKVersion,
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers: %w", err)
	}

	tx, err := q.queries.DB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := q.queries.Raw("enqueue-ping")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(insert, string(ping.DocumentID), path, ping.Body, string(headerJSON), now); err != nil {
		return nil, fmt.Errorf("failed to enqueue ping %s: %w", ping.DocumentID, err)
	}

	count, err := q.countTx(tx)
	if err != nil {
		return nil, err
	}
	evicted := count - q.capacity
	if evicted > 0 {
		// The new record has the highest id, so oldest-first eviction
		// can never evict what was just enqueued.
		evict, err := q.queries.Raw("evict-oldest-pings")
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(evict, evicted); err != nil {
			return nil, fmt.Errorf("failed to evict oldest pings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit enqueue: %w", err)
	}

	if evicted > 0 {
		q.log.WithFields(logrus.Fields{"evicted": evicted, "capacity": q.capacity}).
			Warn("upload queue full, evicted oldest pings")
		q.store.RecordStandaloneError("pending_pings", types.ErrorOverflow)
	}

	return &QueuedUpload{
		DocumentID: ping.DocumentID,
		Path:       path,
		Body:       ping.Body,
		Headers:    headers,
	}, nil
}

// PeekNext returns the oldest pending upload without removing it.
// Returns ErrQueueEmpty when there is nothing to deliver.
func (q *Queue) PeekNext() (*QueuedUpload, error) {
	var row struct {
		DocumentID string `db:"document_id"`
		SubmitPath string `db:"submit_path"`
		Body       []byte `db:"body"`
		Headers    string `db:"headers"`
	}
	err := q.queries.Get("peek-pending-ping", &row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to peek upload queue: %w", err)
	}
	return decodeRow(row.DocumentID, row.SubmitPath, row.Body, row.Headers)
}

// Remove deletes a pending upload after a terminal outcome.
func (q *Queue) Remove(id types.DocumentID) error {
	if _, err := q.queries.Exec("remove-pending-ping", string(id)); err != nil {
		return fmt.Errorf("failed to remove ping %s: %w", id, err)
	}
	return nil
}

// Count returns the number of pending uploads.
func (q *Queue) Count() (int, error) {
	var count int
	if err := q.queries.Get("count-pending-pings", &count); err != nil {
		return 0, fmt.Errorf("failed to count pending pings: %w", err)
	}
	return count, nil
}

// List returns all pending uploads in delivery order. Used by
// inspection tooling, not by the drain loop.
func (q *Queue) List() ([]*QueuedUpload, error) {
	var rows []struct {
		DocumentID string `db:"document_id"`
		SubmitPath string `db:"submit_path"`
		Body       []byte `db:"body"`
		Headers    string `db:"headers"`
	}
	if err := q.queries.Select("list-pending-pings", &rows); err != nil {
		return nil, fmt.Errorf("failed to list pending pings: %w", err)
	}
	uploads := make([]*QueuedUpload, 0, len(rows))
	for _, row := range rows {
		u, err := decodeRow(row.DocumentID, row.SubmitPath, row.Body, row.Headers)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// Clear drops every pending upload. Used on full reset.
func (q *Queue) Clear() error {
	if _, err := q.queries.Exec("clear-pending-pings"); err != nil {
		return fmt.Errorf("failed to clear upload queue: %w", err)
	}
	return nil
}

// countTx counts pending uploads inside an open transaction.
func (q *Queue) countTx(tx interface {
	Get(dest interface{}, query string, args ...interface{}) error
}) (int, error) {
	query, err := q.queries.Raw("count-pending-pings")
	if err != nil {
		return 0, err
	}
	var count int
	if err := tx.Get(&count, query); err != nil {
		return 0, fmt.Errorf("failed to count pending pings: %w", err)
	}
	return count, nil
}

// decodeRow rebuilds a QueuedUpload from its persisted columns.
func decodeRow(documentID, path string, body []byte, headerJSON string) (*QueuedUpload, error) {
	id, err := types.ParseDocumentID(documentID)
	if err != nil {
		return nil, fmt.Errorf("corrupt queue record %q: %w", documentID, err)
	}
	headers := make(map[string]string)
	if headerJSON != "" {
		if err := json.Unmarshal([]byte(headerJSON), &headers); err != nil {
			return nil, fmt.Errorf("corrupt headers for %s: %w", documentID, err)
		}
	}
	return &QueuedUpload{
		DocumentID: id,
		Path:       path,
		Body:       body,
		Headers:    headers,
	}, nil
}
