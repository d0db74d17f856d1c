package types

// TimeUnit is the resolution a timespan metric reports in. Raw values are
// accumulated in nanoseconds; truncation to the unit happens at snapshot
// time, never at write time.
type TimeUnit int

const (
	UnitNanosecond TimeUnit = iota
	UnitMicrosecond
	UnitMillisecond
	UnitSecond
	UnitMinute
	UnitHour
	UnitDay
)

// nanosPer maps each unit to its size in nanoseconds.
var nanosPer = [...]uint64{
	UnitNanosecond:  1,
	UnitMicrosecond: 1e3,
	UnitMillisecond: 1e6,
	UnitSecond:      1e9,
	UnitMinute:      60 * 1e9,
	UnitHour:        3600 * 1e9,
	UnitDay:         86400 * 1e9,
}

// String returns the wire name of the unit.
func (u TimeUnit) String() string {
	switch u {
	case UnitNanosecond:
		return "nanosecond"
	case UnitMicrosecond:
		return "microsecond"
	case UnitMillisecond:
		return "millisecond"
	case UnitSecond:
		return "second"
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	default:
		return "unknown"
	}
}

// FromNanos converts an accumulated nanosecond count into this unit,
// truncating toward zero.
func (u TimeUnit) FromNanos(nanos uint64) uint64 {
	if int(u) < 0 || int(u) >= len(nanosPer) {
		return nanos
	}
	return nanos / nanosPer[u]
}

// ParseTimeUnit converts a wire name back to a TimeUnit.
func ParseTimeUnit(s string) (TimeUnit, error) {
	for u := UnitNanosecond; u <= UnitDay; u++ {
		if u.String() == s {
			return u, nil
		}
	}
	return 0, ErrInvalidTimeUnit
}
