package beacon

import (
	"time"

	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/types"
)

// Re-exports so host applications and generated instrumentation never
// import internal packages.
type (
	// MetricConfig carries a metric's registration-time attributes
	// through every recording call.
	MetricConfig = metrics.CommonMetricData
	// MetricIdentity names a metric as "category.name".
	MetricIdentity = types.MetricIdentity
	// Lifetime governs when a stored value is cleared.
	Lifetime = types.Lifetime
	// TimeUnit is the reporting resolution of a timespan metric.
	TimeUnit = types.TimeUnit
	// PingConfig describes a registered ping.
	PingConfig = types.PingConfig
	// Value is a snapshot copy of one stored metric value.
	Value = types.Value
	// ErrorType classifies recorded telemetry failures.
	ErrorType = types.ErrorType
)

const (
	LifetimePing        = types.LifetimePing
	LifetimeApplication = types.LifetimeApplication
	LifetimeUser        = types.LifetimeUser

	UnitNanosecond  = types.UnitNanosecond
	UnitMicrosecond = types.UnitMicrosecond
	UnitMillisecond = types.UnitMillisecond
	UnitSecond      = types.UnitSecond
	UnitMinute      = types.UnitMinute
	UnitHour        = types.UnitHour
	UnitDay         = types.UnitDay

	ErrorInvalidValue   = types.ErrorInvalidValue
	ErrorInvalidLabel   = types.ErrorInvalidLabel
	ErrorInvalidState   = types.ErrorInvalidState
	ErrorOverflow       = types.ErrorOverflow
	ErrorNotImplemented = types.ErrorNotImplemented
)

// ErrNoValue is returned by test accessors when nothing was recorded.
var ErrNoValue = types.ErrNoValue

// Recording boundary. Every method is fire-and-forget: it enqueues
// work on the dispatcher and returns before any storage I/O happens.
// A disabled metric is a free no-op.

// RecordBoolean sets a boolean metric.
func (c *Client) RecordBoolean(m MetricConfig, value bool) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() { c.store.RecordBoolean(m, value) })
}

// AddCounter increments a counter metric by amount (must be positive).
func (c *Client) AddCounter(m MetricConfig, amount int64) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() { c.store.AddCounter(m, amount) })
}

// RecordString sets a string metric. Values beyond the length limit
// are truncated and the truncation is recorded as an invalid_value
// error; the call itself always succeeds.
func (c *Client) RecordString(m MetricConfig, value string) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() { c.store.RecordString(m, value) })
}

// StartTimespan marks the start of a timespan measurement. A second
// start before the matching stop records an invalid_state error and
// keeps the original start.
func (c *Client) StartTimespan(m MetricConfig) {
	if m.Disabled {
		return
	}
	start := time.Now()
	c.dispatcher.Launch(func() {
		id := m.Identity.Identifier()
		if _, running := c.timespans[id]; running {
			c.store.RecordError(m, types.ErrorInvalidState)
			return
		}
		c.timespans[id] = start
	})
}

// StopTimespan ends a timespan measurement and accumulates the elapsed
// time; successive start/stop pairs sum. A stop without a matching
// start records an invalid_state error.
func (c *Client) StopTimespan(m MetricConfig, unit TimeUnit) {
	if m.Disabled {
		return
	}
	stop := time.Now()
	c.dispatcher.Launch(func() {
		id := m.Identity.Identifier()
		start, running := c.timespans[id]
		if !running {
			c.store.RecordError(m, types.ErrorInvalidState)
			return
		}
		delete(c.timespans, id)
		c.store.AccumulateTimespan(m, unit, stop.Sub(start))
	})
}

// CancelTimespan abandons a running measurement without recording.
func (c *Client) CancelTimespan(m MetricConfig) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() {
		delete(c.timespans, m.Identity.Identifier())
	})
}

// RecordEvent appends an event occurrence with optional extras.
func (c *Client) RecordEvent(m MetricConfig, extra map[string]string) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() { c.store.RecordEvent(m, extra) })
}

// AddLabeledCounter increments one label of a labeled counter.
func (c *Client) AddLabeledCounter(m MetricConfig, label string, amount int64) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() { c.store.AddLabeledCounter(m, label, amount) })
}

// RecordLabeledString sets one label of a labeled string metric.
func (c *Client) RecordLabeledString(m MetricConfig, label, value string) {
	if m.Disabled {
		return
	}
	c.dispatcher.Launch(func() { c.store.RecordLabeledString(m, label, value) })
}
