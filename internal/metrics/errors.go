package metrics

import (
	"github.com/solatis/beacon/internal/types"
)

// errorCategory holds the internal counters that track recording and
// delivery failures. They travel inside ordinary pings so the collector
// sees data quality problems alongside the data.
const errorCategory = "beacon.error"

// RecordError counts a telemetry failure against the offending metric.
// Errors are stored as labeled counters named "<error_type>/<metric>",
// Ping lifetime, routed to the metric's own pings plus the builtin
// "metrics" ping so data quality problems are visible even when the
// offending ping itself never gets sent.
func (s *Store) RecordError(meta CommonMetricData, errType types.ErrorType) {
	identifier := meta.Identity.Identifier()

	pings := meta.stores()
	hasMetrics := false
	for _, p := range pings {
		if p == "metrics" {
			hasMetrics = true
			break
		}
	}
	if !hasMetrics {
		pings = append(append([]string{}, pings...), "metrics")
	}

	errMeta := CommonMetricData{
		Identity:    types.MetricIdentity{Category: errorCategory, Name: errType.String() + "/" + identifier},
		Lifetime:    types.LifetimePing,
		SendInPings: pings,
	}

	s.log.WithField("metric", identifier).Warnf("recording error: %s", errType)
	s.addAll(errMeta, errMeta.Identity.Identifier(), types.KindLabeledCounter, 1)
}

// RecordStandaloneError counts a failure not attributable to a single
// metric (queue overflow, dropped upload). The counter lands in the
// "metrics" ping under the operation name.
func (s *Store) RecordStandaloneError(operation string, errType types.ErrorType) {
	s.RecordError(CommonMetricData{
		Identity:    types.MetricIdentity{Category: "beacon", Name: operation},
		Lifetime:    types.LifetimePing,
		SendInPings: []string{"metrics"},
	}, errType)
}
