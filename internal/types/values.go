package types

import "encoding/json"

// Kind identifies the metric type a stored value belongs to. The string
// form doubles as the section name inside the ping `metrics` object.
type Kind string

const (
	KindBoolean        Kind = "boolean"
	KindCounter        Kind = "counter"
	KindString         Kind = "string"
	KindTimespan       Kind = "timespan"
	KindEvent          Kind = "event"
	KindLabeledCounter Kind = "labeled_counter"
	KindLabeledString  Kind = "labeled_string"
)

// ParseKind converts the database representation back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBoolean, KindCounter, KindString, KindTimespan,
		KindEvent, KindLabeledCounter, KindLabeledString:
		return Kind(s), nil
	}
	return "", ErrInvalidKind
}

// Value is the tagged union of storable metric values. Exactly one field
// is meaningful, selected by Kind. Values are exclusively owned by the
// storage engine; callers only ever see copies produced by Snapshot.
type Value struct {
	Kind Kind `json:"kind"`

	Boolean  bool   `json:"boolean,omitempty"`
	Counter  uint64 `json:"counter,omitempty"`
	String   string `json:"string,omitempty"`
	Timespan struct {
		Unit  TimeUnit `json:"time_unit"`
		Nanos uint64   `json:"value"`
	} `json:"timespan,omitempty"`
}

// BooleanValue wraps a boolean for storage.
func BooleanValue(v bool) Value {
	return Value{Kind: KindBoolean, Boolean: v}
}

// CounterValue wraps a counter increment for storage.
func CounterValue(v uint64) Value {
	return Value{Kind: KindCounter, Counter: v}
}

// StringValue wraps a string for storage. Length enforcement happens in
// the storage engine, not here.
func StringValue(v string) Value {
	return Value{Kind: KindString, String: v}
}

// TimespanValue wraps an elapsed duration for storage.
func TimespanValue(unit TimeUnit, nanos uint64) Value {
	v := Value{Kind: KindTimespan}
	v.Timespan.Unit = unit
	v.Timespan.Nanos = nanos
	return v
}

// Payload returns the JSON representation of the value as it appears in
// an assembled ping (the bare value, without the kind tag).
func (v Value) Payload() any {
	switch v.Kind {
	case KindBoolean:
		return v.Boolean
	case KindCounter, KindLabeledCounter:
		return v.Counter
	case KindString, KindLabeledString:
		return v.String
	case KindTimespan:
		return map[string]any{
			"time_unit": v.Timespan.Unit.String(),
			"value":     v.Timespan.Unit.FromNanos(v.Timespan.Nanos),
		}
	default:
		return nil
	}
}

// Encode serializes the value for a metric_values row.
func (v Value) Encode() ([]byte, error) {
	return json.Marshal(v)
}

// DecodeValue deserializes a metric_values row back into a Value.
func DecodeValue(data []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// EventRecord is one occurrence of an event metric. Timestamp is
// milliseconds relative to the process start, so event ordering inside a
// ping is stable even if the wall clock jumps.
type EventRecord struct {
	Timestamp uint64            `json:"timestamp"`
	Category  string            `json:"category"`
	Name      string            `json:"name"`
	Extra     map[string]string `json:"extra,omitempty"`
}
