// Package types provides domain models shared across beacon components.
//
// Zero-dependency design: types.go, values.go and errors.go use only the
// standard library so the recording hot path stays allocation-light. ID
// utilities in ids.go import uuid but are isolated for selective inclusion.
package types

import "fmt"

// MetricIdentity names a metric. Category and Name are fixed at
// registration time and never change for the life of the process.
type MetricIdentity struct {
	Category string
	Name     string
}

// Identifier returns the canonical "category.name" form used as the
// storage key and as the key inside the ping `metrics` section.
func (m MetricIdentity) Identifier() string {
	if m.Category == "" {
		return m.Name
	}
	return fmt.Sprintf("%s.%s", m.Category, m.Name)
}

// WithLabel returns the storage identifier for one label of a labeled
// metric, encoded as "category.name/label".
func (m MetricIdentity) WithLabel(label string) string {
	return fmt.Sprintf("%s/%s", m.Identifier(), label)
}

// Lifetime governs when a stored metric value is cleared.
type Lifetime int

const (
	// LifetimePing clears the value every time a ping containing it is
	// assembled.
	LifetimePing Lifetime = iota
	// LifetimeApplication clears the value only on a full data-store reset.
	LifetimeApplication
	// LifetimeUser never clears automatically; the value persists across
	// process restarts until explicitly reset.
	LifetimeUser
)

// ClearsOnSend reports whether values with this lifetime are removed as
// part of ping assembly. True only for LifetimePing; the clear itself is
// scoped to the single ping being assembled.
func (l Lifetime) ClearsOnSend() bool {
	return l == LifetimePing
}

// String returns the database representation of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case LifetimePing:
		return "ping"
	case LifetimeApplication:
		return "application"
	case LifetimeUser:
		return "user"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// ParseLifetime converts the database representation back to a Lifetime.
func ParseLifetime(s string) (Lifetime, error) {
	switch s {
	case "ping":
		return LifetimePing, nil
	case "application":
		return LifetimeApplication, nil
	case "user":
		return LifetimeUser, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLifetime, s)
	}
}

// PingConfig describes one registered ping. Read-only after registration.
type PingConfig struct {
	// Name is the ping's document type, used in the upload path.
	Name string
	// IncludeClientID controls whether client_info carries the client_id
	// field. When false the field is absent, not null.
	IncludeClientID bool
	// SendIfEmpty allows assembly of a ping whose metrics section is empty.
	SendIfEmpty bool
}

// Resource limits enforced at write time. Violations truncate or drop the
// value and record an error metric; they never propagate to the caller.
const (
	// MaxStringLength caps string metric values, in bytes.
	// Matches the collector-side schema limit.
	MaxStringLength = 50

	// MaxLabelLength caps the label of a labeled metric, in bytes.
	MaxLabelLength = 61

	// MaxEventExtraKeys limits the number of extra key/value pairs on one
	// event record.
	MaxEventExtraKeys = 10

	// MaxEventExtraLength caps each event extra key and value, in bytes.
	MaxEventExtraLength = 100

	// MaxEventsPerStore bounds buffered events per ping store. The events
	// ping flushes well before this; the cap only guards a stuck store.
	MaxEventsPerStore = 500
)
