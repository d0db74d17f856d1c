package types

import "errors"

// Sentinel errors for beacon operations.
var (
	// ErrInvalidLifetime indicates an unrecognized lifetime representation.
	ErrInvalidLifetime = errors.New("invalid lifetime")

	// ErrInvalidKind indicates an unrecognized metric kind.
	ErrInvalidKind = errors.New("invalid metric kind")

	// ErrInvalidTimeUnit indicates an unrecognized time unit name.
	ErrInvalidTimeUnit = errors.New("invalid time unit")

	// ErrUnknownPing indicates a ping name absent from the registry.
	ErrUnknownPing = errors.New("unknown ping")

	// ErrDuplicatePing indicates a second registration for an existing
	// ping name. The first registration wins.
	ErrDuplicatePing = errors.New("ping already registered")

	// ErrNoValue is returned by test-only accessors when the requested
	// metric has no stored value. A hard failure by design: it catches
	// instrumentation bugs in test suites.
	ErrNoValue = errors.New("no value recorded")

	// ErrQueueEmpty indicates PeekNext found no pending uploads.
	ErrQueueEmpty = errors.New("upload queue empty")

	// ErrDrainInProgress indicates a second concurrent drain cycle was
	// requested while one is active.
	ErrDrainInProgress = errors.New("drain cycle already active")

	// ErrUploadsDisabled indicates the scheduler was asked to drain while
	// uploads are switched off.
	ErrUploadsDisabled = errors.New("uploads disabled")
)

// ErrorType classifies recordable telemetry failures. Each value is the
// label under which the failure is counted in the beacon.error category.
type ErrorType int

const (
	// ErrorInvalidValue counts values that failed a type or length
	// constraint and were truncated or dropped.
	ErrorInvalidValue ErrorType = iota
	// ErrorInvalidLabel counts labeled-metric writes with an
	// out-of-contract label.
	ErrorInvalidLabel
	// ErrorInvalidState counts operations on unregistered or disabled
	// metrics and submissions of unknown pings.
	ErrorInvalidState
	// ErrorOverflow counts queue evictions forced by the capacity bound.
	ErrorOverflow
	// ErrorDeliveryPermanent counts uploads dropped after a 4xx response.
	ErrorDeliveryPermanent
	// ErrorNotImplemented counts calls into operations compiled out or
	// not yet supported on this platform.
	ErrorNotImplemented
)

// String returns the metric name fragment for the error type.
func (e ErrorType) String() string {
	switch e {
	case ErrorInvalidValue:
		return "invalid_value"
	case ErrorInvalidLabel:
		return "invalid_label"
	case ErrorInvalidState:
		return "invalid_state"
	case ErrorOverflow:
		return "overflow"
	case ErrorDeliveryPermanent:
		return "delivery_permanent"
	case ErrorNotImplemented:
		return "not_implemented"
	default:
		return "unknown"
	}
}
