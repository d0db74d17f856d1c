package metrics

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/beacon/internal/types"
)

// Snapshot is a copy of everything one ping store holds at assembly
// time: current values grouped by kind, plus buffered events in
// recording order. Callers own the copy; the engine keeps nothing
// aliased into it.
type Snapshot struct {
	Metrics map[types.Kind]map[string]any
	Events  []types.EventRecord
}

// Empty reports whether the snapshot carries no data at all.
func (s Snapshot) Empty() bool {
	return len(s.Metrics) == 0 && len(s.Events) == 0
}

// Snapshot copies all values subscribed to the named ping store. When
// clearPingLifetime is true, Ping-lifetime rows and buffered events for
// this store are deleted in the same transaction, so a crash can never
// separate the copy from the clear. The clear is scoped strictly to
// this store: a different ping sharing a metric keeps its own rows.
func (s *Store) Snapshot(store string, clearPingLifetime bool) (Snapshot, error) {
	tx, err := s.queries.DB().Beginx()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	snap, err := s.SnapshotTx(tx, store, clearPingLifetime)
	if err != nil {
		return Snapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotTx is Snapshot running inside a caller-owned transaction.
// Ping assembly uses this so the clear commits only together with the
// rest of assembly: if anything downstream fails, the rollback puts the
// data back.
func (s *Store) SnapshotTx(tx *sqlx.Tx, store string, clearPingLifetime bool) (Snapshot, error) {
	snap := Snapshot{Metrics: make(map[types.Kind]map[string]any)}

	if err := s.snapshotValues(tx, store, &snap); err != nil {
		return Snapshot{}, err
	}

	events, err := s.snapshotEvents(tx, store)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Events = events

	if clearPingLifetime {
		clearValues, err := s.queries.Raw("clear-ping-lifetime")
		if err != nil {
			return Snapshot{}, err
		}
		if _, err := tx.Exec(clearValues, store); err != nil {
			return Snapshot{}, fmt.Errorf("failed to clear ping-lifetime values for %q: %w", store, err)
		}
		clearEvents, err := s.queries.Raw("clear-events")
		if err != nil {
			return Snapshot{}, err
		}
		if _, err := tx.Exec(clearEvents, store); err != nil {
			return Snapshot{}, fmt.Errorf("failed to clear events for %q: %w", store, err)
		}
	}

	return snap, nil
}

// snapshotValues copies current value rows for a store into snap.
// Rows with unknown kinds or undecodable values are skipped, not fatal:
// one bad row must not block every future ping.
func (s *Store) snapshotValues(tx *sqlx.Tx, store string, snap *Snapshot) error {
	query, err := s.queries.Raw("snapshot-store")
	if err != nil {
		return err
	}
	rows, err := tx.Queryx(query, store)
	if err != nil {
		return fmt.Errorf("failed to snapshot store %q: %w", store, err)
	}
	defer rows.Close()

	for rows.Next() {
		var lifetime, kindName, metricID, raw string
		if err := rows.Scan(&lifetime, &kindName, &metricID, &raw); err != nil {
			return err
		}
		kind, err := types.ParseKind(kindName)
		if err != nil {
			s.log.WithField("metric", metricID).Warn("skipping value with unknown kind")
			continue
		}
		value, err := types.DecodeValue([]byte(raw))
		if err != nil {
			s.log.WithError(err).WithField("metric", metricID).Warn("skipping undecodable value")
			continue
		}
		if snap.Metrics[kind] == nil {
			snap.Metrics[kind] = make(map[string]any)
		}
		snap.Metrics[kind][metricID] = value.Payload()
	}
	return rows.Err()
}

// snapshotEvents reads buffered events for a store in recording order.
func (s *Store) snapshotEvents(tx *sqlx.Tx, store string) ([]types.EventRecord, error) {
	query, err := s.queries.Raw("select-events")
	if err != nil {
		return nil, err
	}
	rows, err := tx.Queryx(query, store)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot events for %q: %w", store, err)
	}
	defer rows.Close()

	var events []types.EventRecord
	for rows.Next() {
		var (
			timestamp uint64
			category  string
			name      string
			extra     *string
		)
		if err := rows.Scan(&timestamp, &category, &name, &extra); err != nil {
			return nil, err
		}
		events = append(events, types.EventRecord{
			Timestamp: timestamp,
			Category:  category,
			Name:      name,
			Extra:     decodeExtra(extra),
		})
	}
	return events, rows.Err()
}

// ClearAll wipes every stored value and buffered event. Used on full
// data-store reset and when telemetry is disabled at runtime.
func (s *Store) ClearAll() {
	for _, name := range []string{"clear-all-metric-values", "clear-all-events"} {
		if _, err := s.queries.Exec(name); err != nil {
			s.log.WithError(err).WithField("query", name).Warn("failed to clear storage")
		}
	}
}

// decodeExtra parses the stored event extra column.
func decodeExtra(raw *string) map[string]string {
	if raw == nil || *raw == "" {
		return nil
	}
	var extra map[string]string
	if err := json.Unmarshal([]byte(*raw), &extra); err != nil {
		return nil
	}
	return extra
}
