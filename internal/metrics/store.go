// Package metrics implements the metric storage engine.
//
// One Store owns all persisted metric values, keyed by
// (lifetime, ping store, metric identifier). Writes accumulate or
// overwrite depending on kind: counters and timespans add, booleans and
// strings overwrite, events append. All mutation is expected to arrive
// on the dispatcher's single execution context, so no locking happens
// here; durability comes from the backing store.
//
// Recording is fail-open: a write that violates a constraint truncates
// or drops the value and records an error metric (see errors.go). A
// database failure is logged and swallowed. Nothing in this package
// returns an error to the recording call path.
package metrics

import (
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/core/db"
	"github.com/solatis/beacon/internal/types"
)

// labelPattern matches acceptable labels for labeled metrics: lowercase
// snake case with optional dotted namespacing.
var labelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,29}(\.[a-z_][a-z0-9_-]{0,29})*$`)

// otherLabel buckets writes whose label fails validation or exceeds the
// dynamic label budget, so misbehaving instrumentation degrades instead
// of growing storage unbounded.
const otherLabel = "__other__"

// maxDynamicLabels caps distinct labels stored per labeled metric.
const maxDynamicLabels = 16

// CommonMetricData carries the registration-time attributes of a metric
// through the recording boundary.
type CommonMetricData struct {
	Identity    types.MetricIdentity
	Lifetime    types.Lifetime
	SendInPings []string
	Disabled    bool
}

// stores returns the ping stores this metric routes into, defaulting to
// the builtin "metrics" ping when instrumentation declared none.
func (m CommonMetricData) stores() []string {
	if len(m.SendInPings) == 0 {
		return []string{"metrics"}
	}
	return m.SendInPings
}

// Store is the storage engine for all metric kinds.
type Store struct {
	queries *db.Queries
	log     *logrus.Entry
	// startTime anchors event timestamps; relative milliseconds keep
	// event ordering stable across wall-clock jumps.
	startTime time.Time
}

// NewStore creates a storage engine over an opened, migrated database.
func NewStore(queries *db.Queries, log *logrus.Logger) *Store {
	return &Store{
		queries:   queries,
		log:       log.WithField("component", "metrics"),
		startTime: time.Now(),
	}
}

// RecordBoolean overwrites a boolean metric in every subscribed store.
func (s *Store) RecordBoolean(meta CommonMetricData, value bool) {
	if meta.Disabled {
		return
	}
	s.writeAll(meta, meta.Identity.Identifier(), types.BooleanValue(value))
}

// AddCounter adds a positive amount to a counter metric. Zero or
// negative amounts record an invalid_value error and change nothing.
func (s *Store) AddCounter(meta CommonMetricData, amount int64) {
	if meta.Disabled {
		return
	}
	if amount <= 0 {
		s.RecordError(meta, types.ErrorInvalidValue)
		return
	}
	s.addAll(meta, meta.Identity.Identifier(), types.KindCounter, uint64(amount))
}

// RecordString overwrites a string metric. Values over MaxStringLength
// bytes are truncated and an invalid_value error is recorded; the
// truncated prefix is still stored.
func (s *Store) RecordString(meta CommonMetricData, value string) {
	if meta.Disabled {
		return
	}
	if len(value) > types.MaxStringLength {
		value = truncateUTF8(value, types.MaxStringLength)
		s.RecordError(meta, types.ErrorInvalidValue)
	}
	s.writeAll(meta, meta.Identity.Identifier(), types.StringValue(value))
}

// AccumulateTimespan adds an elapsed duration to a timespan metric.
// Successive stops sum; truncation to the metric's unit happens only at
// snapshot time. Negative durations record an invalid_value error.
func (s *Store) AccumulateTimespan(meta CommonMetricData, unit types.TimeUnit, elapsed time.Duration) {
	if meta.Disabled {
		return
	}
	if elapsed < 0 {
		s.RecordError(meta, types.ErrorInvalidValue)
		return
	}
	id := meta.Identity.Identifier()
	for _, store := range meta.stores() {
		current, ok := s.readValue(meta.Lifetime, store, id)
		var total uint64
		if ok && current.Kind == types.KindTimespan {
			total = current.Timespan.Nanos
		}
		total += uint64(elapsed.Nanoseconds())
		s.write(meta.Lifetime, store, id, types.TimespanValue(unit, total))
	}
}

// RecordEvent appends an event occurrence to every subscribed store.
// Extras beyond MaxEventExtraKeys are dropped with an invalid_value
// error; oversized keys or values are truncated likewise.
func (s *Store) RecordEvent(meta CommonMetricData, extra map[string]string) {
	if meta.Disabled {
		return
	}

	clean := make(map[string]string, len(extra))
	for k, v := range extra {
		if len(clean) >= types.MaxEventExtraKeys {
			s.RecordError(meta, types.ErrorInvalidValue)
			break
		}
		if len(k) > types.MaxEventExtraLength {
			k = truncateUTF8(k, types.MaxEventExtraLength)
			s.RecordError(meta, types.ErrorInvalidValue)
		}
		if len(v) > types.MaxEventExtraLength {
			v = truncateUTF8(v, types.MaxEventExtraLength)
			s.RecordError(meta, types.ErrorInvalidValue)
		}
		clean[k] = v
	}

	var extraJSON []byte
	if len(clean) > 0 {
		var err error
		extraJSON, err = json.Marshal(clean)
		if err != nil {
			s.log.WithError(err).Warn("failed to encode event extras")
			extraJSON = nil
		}
	}

	timestamp := time.Since(s.startTime).Milliseconds()
	for _, store := range meta.stores() {
		var count int
		if err := s.queries.Get("count-events", &count, store); err == nil && count >= types.MaxEventsPerStore {
			s.RecordError(meta, types.ErrorOverflow)
			continue
		}
		_, err := s.queries.Exec("insert-event",
			store, timestamp, meta.Identity.Category, meta.Identity.Name, nullableString(extraJSON))
		if err != nil {
			s.log.WithError(err).WithField("store", store).Warn("failed to record event")
		}
	}
}

// AddLabeledCounter adds to one label of a labeled counter metric.
func (s *Store) AddLabeledCounter(meta CommonMetricData, label string, amount int64) {
	if meta.Disabled {
		return
	}
	if amount <= 0 {
		s.RecordError(meta, types.ErrorInvalidValue)
		return
	}
	label = s.sanitizeLabel(meta, label)
	s.addAll(meta, meta.Identity.WithLabel(label), types.KindLabeledCounter, uint64(amount))
}

// RecordLabeledString overwrites one label of a labeled string metric.
func (s *Store) RecordLabeledString(meta CommonMetricData, label, value string) {
	if meta.Disabled {
		return
	}
	if len(value) > types.MaxStringLength {
		value = truncateUTF8(value, types.MaxStringLength)
		s.RecordError(meta, types.ErrorInvalidValue)
	}
	label = s.sanitizeLabel(meta, label)
	v := types.StringValue(value)
	v.Kind = types.KindLabeledString
	s.writeAll(meta, meta.Identity.WithLabel(label), v)
}

// sanitizeLabel validates a label and applies the dynamic label budget.
// Invalid or over-budget labels collapse into the __other__ bucket.
func (s *Store) sanitizeLabel(meta CommonMetricData, label string) string {
	if len(label) > types.MaxLabelLength || !labelPattern.MatchString(label) {
		s.RecordError(meta, types.ErrorInvalidLabel)
		return otherLabel
	}

	// The budget counts labels already stored in the first subscribed
	// store; an existing label never gets rebucketed.
	store := meta.stores()[0]
	if _, ok := s.readValue(meta.Lifetime, store, meta.Identity.WithLabel(label)); ok {
		return label
	}
	var count int
	if err := s.queries.Get("count-labels", &count, store, meta.Identity.Identifier()+"/%"); err == nil && count >= maxDynamicLabels {
		s.RecordError(meta, types.ErrorInvalidLabel)
		return otherLabel
	}
	return label
}

// writeAll overwrites the value in every subscribed store.
func (s *Store) writeAll(meta CommonMetricData, metricID string, value types.Value) {
	for _, store := range meta.stores() {
		s.write(meta.Lifetime, store, metricID, value)
	}
}

// addAll accumulates a counter-shaped value in every subscribed store.
func (s *Store) addAll(meta CommonMetricData, metricID string, kind types.Kind, amount uint64) {
	for _, store := range meta.stores() {
		current, ok := s.readValue(meta.Lifetime, store, metricID)
		var total uint64
		if ok && current.Kind == kind {
			total = current.Counter
		}
		v := types.Value{Kind: kind, Counter: total + amount}
		s.write(meta.Lifetime, store, metricID, v)
	}
}

// write upserts one value row. Database failures are logged; the
// recording call path never sees them.
func (s *Store) write(lifetime types.Lifetime, store, metricID string, value types.Value) {
	encoded, err := value.Encode()
	if err != nil {
		s.log.WithError(err).WithField("metric", metricID).Warn("failed to encode value")
		return
	}
	_, err = s.queries.Exec("upsert-metric-value",
		lifetime.String(), store, string(value.Kind), metricID, string(encoded))
	if err != nil {
		s.log.WithError(err).WithField("metric", metricID).Warn("failed to persist value")
	}
}

// readValue fetches one current value, reporting presence.
func (s *Store) readValue(lifetime types.Lifetime, store, metricID string) (types.Value, bool) {
	var raw string
	err := s.queries.Get("get-metric-value", &raw, lifetime.String(), store, metricID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Value{}, false
	}
	if err != nil {
		s.log.WithError(err).WithField("metric", metricID).Warn("failed to read value")
		return types.Value{}, false
	}
	value, err := types.DecodeValue([]byte(raw))
	if err != nil {
		s.log.WithError(err).WithField("metric", metricID).Warn("failed to decode value")
		return types.Value{}, false
	}
	return value, true
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune,
// backing the cut off to the previous rune boundary. The stored value
// stays a byte prefix of the input and never exceeds the limit.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// nullableString converts optional JSON bytes to a driver-friendly value.
func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
