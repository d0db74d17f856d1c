package pings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/core/db"
	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/types"
)

// ClientInfoProvider supplies the client_info section of assembled
// pings. Implemented by the beacon Client; app and OS metadata is
// outside this package's concern.
type ClientInfoProvider interface {
	// ClientInfo returns the client_info fields. When includeClientID
	// is false the returned map must not contain the client_id key at
	// all; the wire contract distinguishes absent from null.
	ClientInfo(includeClientID bool) map[string]any
}

// AssembledPing is one immutable, ready-to-queue ping payload.
type AssembledPing struct {
	DocType    string
	DocumentID types.DocumentID
	Body       []byte
}

// pingInfo is the ping_info section of the wire format.
type pingInfo struct {
	Seq       int64  `json:"seq"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Assembler turns ping stores into wire payloads.
type Assembler struct {
	registry *Registry
	store    *metrics.Store
	queries  *db.Queries
	info     ClientInfoProvider
	log      *logrus.Entry
}

// NewAssembler wires an assembler over the registry and storage engine.
func NewAssembler(registry *Registry, store *metrics.Store, queries *db.Queries, info ClientInfoProvider, log *logrus.Logger) *Assembler {
	return &Assembler{
		registry: registry,
		store:    store,
		queries:  queries,
		info:     info,
		log:      log.WithField("component", "assembler"),
	}
}

// Assemble produces the payload for one named ping, or nil when there
// is nothing to send.
//
// Unknown ping names are a recorded no-op, not a failure: generated
// instrumentation can race ahead of ping registration and must not
// crash the host. An empty ping with SendIfEmpty false aborts quietly,
// leaving pings sharing metrics with this one untouched.
//
// Snapshot, ping-lifetime clear, sequence bump and interval rotation
// all commit in one transaction, after the payload has encoded: data
// is cleared only together with a successfully assembled ping. Pings
// are always assembled one at a time so the clear stays scoped to the
// ping at hand.
func (a *Assembler) Assemble(pingName string) (*AssembledPing, error) {
	cfg, ok := a.registry.Lookup(pingName)
	if !ok {
		a.store.RecordStandaloneError("submit_unknown_ping", types.ErrorInvalidState)
		a.log.WithField("ping", pingName).Warn("attempted to submit unregistered ping")
		return nil, types.ErrUnknownPing
	}

	tx, err := a.queries.DB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin assembly of %q: %w", pingName, err)
	}
	defer tx.Rollback()

	snap, err := a.store.SnapshotTx(tx, pingName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %q: %w", pingName, err)
	}

	if snap.Empty() && !cfg.SendIfEmpty {
		a.log.WithField("ping", pingName).Debug("nothing to send")
		return nil, nil
	}

	seq, err := a.nextSeq(tx, pingName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	start, err := a.rotateStartTime(tx, pingName, now)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"ping_info": pingInfo{
			Seq:       seq,
			StartTime: start.Format(time.RFC3339),
			EndTime:   now.Format(time.RFC3339),
		},
		"client_info": a.info.ClientInfo(cfg.IncludeClientID),
	}
	if len(snap.Metrics) > 0 {
		sections := make(map[string]map[string]any, len(snap.Metrics))
		for kind, values := range snap.Metrics {
			sections[string(kind)] = values
		}
		body["metrics"] = sections
	}
	if len(snap.Events) > 0 {
		body["events"] = snap.Events
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ping %q: %w", pingName, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assembly of %q: %w", pingName, err)
	}

	return &AssembledPing{
		DocType:    pingName,
		DocumentID: types.NewDocumentID(),
		Body:       encoded,
	}, nil
}

// nextSeq returns the next sequence number for a ping store, inside the
// assembly transaction. Persisted so the counter is monotonic across
// process restarts; numbering starts at zero.
func (a *Assembler) nextSeq(tx *sqlx.Tx, store string) (int64, error) {
	bump, err := a.queries.Raw("bump-ping-seq")
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(bump, store); err != nil {
		return 0, fmt.Errorf("failed to bump sequence for %q: %w", store, err)
	}

	get, err := a.queries.Raw("get-ping-seq")
	if err != nil {
		return 0, err
	}
	var seq int64
	if err := tx.Get(&seq, get, store); err != nil {
		return 0, fmt.Errorf("failed to read sequence for %q: %w", store, err)
	}
	return seq - 1, nil
}

// rotateStartTime returns the start of the interval this ping covers
// and stamps now as the start of the next one, inside the assembly
// transaction. The very first ping for a store covers everything since
// the store existed.
func (a *Assembler) rotateStartTime(tx *sqlx.Tx, store string, now time.Time) (time.Time, error) {
	key := "last_sent_" + store
	start := now

	get, err := a.queries.Raw("get-client-state")
	if err != nil {
		return time.Time{}, err
	}
	var raw string
	err = tx.Get(&raw, get, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First ping for this store.
	case err != nil:
		return time.Time{}, fmt.Errorf("failed to read last send time for %q: %w", store, err)
	default:
		if t, perr := time.Parse(time.RFC3339, raw); perr == nil {
			start = t
		}
	}

	upsert, err := a.queries.Raw("upsert-client-state")
	if err != nil {
		return time.Time{}, err
	}
	if _, err := tx.Exec(upsert, key, now.Format(time.RFC3339)); err != nil {
		return time.Time{}, fmt.Errorf("failed to store last send time for %q: %w", store, err)
	}
	return start, nil
}
