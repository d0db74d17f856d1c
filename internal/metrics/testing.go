package metrics

import (
	"fmt"

	"github.com/solatis/beacon/internal/types"
)

// Test-only accessors. Unlike the recording path these fail hard:
// asking for a value that was never recorded is an instrumentation bug
// the test suite should surface, not paper over.

// TestGetValue returns the stored value for a metric in one ping store.
// Returns ErrNoValue when nothing was recorded.
func (s *Store) TestGetValue(meta CommonMetricData, store string) (types.Value, error) {
	if store == "" {
		store = meta.stores()[0]
	}
	value, ok := s.readValue(meta.Lifetime, store, meta.Identity.Identifier())
	if !ok {
		return types.Value{}, fmt.Errorf("%w: %s in store %q", types.ErrNoValue, meta.Identity.Identifier(), store)
	}
	return value, nil
}

// TestGetLabeledValue returns the stored value for one label of a
// labeled metric.
func (s *Store) TestGetLabeledValue(meta CommonMetricData, label, store string) (types.Value, error) {
	if store == "" {
		store = meta.stores()[0]
	}
	value, ok := s.readValue(meta.Lifetime, store, meta.Identity.WithLabel(label))
	if !ok {
		return types.Value{}, fmt.Errorf("%w: %s in store %q", types.ErrNoValue, meta.Identity.WithLabel(label), store)
	}
	return value, nil
}

// TestGetNumRecordedErrors returns how many errors of one type were
// recorded against a metric, as seen by the given ping store (defaults
// to the metric's first subscribed store).
func (s *Store) TestGetNumRecordedErrors(meta CommonMetricData, errType types.ErrorType, store string) (uint64, error) {
	if store == "" {
		store = meta.stores()[0]
	}
	id := types.MetricIdentity{
		Category: errorCategory,
		Name:     errType.String() + "/" + meta.Identity.Identifier(),
	}
	value, ok := s.readValue(types.LifetimePing, store, id.Identifier())
	if !ok {
		return 0, fmt.Errorf("%w: no %s errors for %s in store %q",
			types.ErrNoValue, errType, meta.Identity.Identifier(), store)
	}
	return value.Counter, nil
}

// TestHasValue reports whether a metric currently holds a value in one
// ping store. Never errors; disabled or unimplemented metrics simply
// report false.
func (s *Store) TestHasValue(meta CommonMetricData, store string) bool {
	if store == "" {
		store = meta.stores()[0]
	}
	_, ok := s.readValue(meta.Lifetime, store, meta.Identity.Identifier())
	return ok
}
