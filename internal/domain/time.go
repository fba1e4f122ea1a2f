package domain

import (
	"fmt"
	"math"
	"time"
)

// TimeInstance is a point in time in milliseconds since the Unix epoch.
type TimeInstance int64

// Bounds of the representable time range.
const (
	MinTimeInstance TimeInstance = math.MinInt64 / 2
	MaxTimeInstance TimeInstance = math.MaxInt64 / 2
)

// TimeInstanceFromTime converts a time.Time to a TimeInstance.
func TimeInstanceFromTime(t time.Time) TimeInstance {
	return TimeInstance(t.UnixMilli())
}

// Time returns the instance as UTC time.Time.
func (t TimeInstance) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// TimeInterval is the half-open interval [Start, End). Start == End denotes an instant.
type TimeInterval struct {
	Start TimeInstance `json:"start"`
	End   TimeInstance `json:"end"`
}

// NewTimeInterval creates a validated interval.
func NewTimeInterval(start, end TimeInstance) (TimeInterval, error) {
	t := TimeInterval{Start: start, End: end}
	return t, t.Validate()
}

// DefaultTimeInterval covers the whole representable time range.
func DefaultTimeInterval() TimeInterval {
	return TimeInterval{Start: MinTimeInstance, End: MaxTimeInstance}
}

// Validate checks start <= end.
func (t TimeInterval) Validate() error {
	if t.Start > t.End {
		return &ValidationError{
			Field:      "timeInterval",
			Value:      t,
			Constraint: "start <= end",
			Message:    "time interval start must not be after its end",
		}
	}
	return nil
}

// IsInstant reports whether the interval has zero length.
func (t TimeInterval) IsInstant() bool {
	return t.Start == t.End
}

// Contains reports whether o lies completely inside t.
func (t TimeInterval) Contains(o TimeInterval) bool {
	return t.Start <= o.Start && o.End <= t.End
}

// Intersects reports whether the intervals overlap. Instants intersect an interval
// that contains them.
func (t TimeInterval) Intersects(o TimeInterval) bool {
	if t.IsInstant() || o.IsInstant() {
		return (t.Start <= o.Start && o.Start < t.End) ||
			(o.Start <= t.Start && t.Start < o.End) ||
			t.Start == o.Start
	}
	return t.Start < o.End && o.Start < t.End
}

// Extend returns the smallest interval covering both.
func (t TimeInterval) Extend(o TimeInterval) TimeInterval {
	return TimeInterval{
		Start: min(t.Start, o.Start),
		End:   max(t.End, o.End),
	}
}

// Center returns the floored mean of start and end.
func (t TimeInterval) Center() TimeInstance {
	// start+end may overflow
	return t.Start + (t.End-t.Start)/2
}

// String returns the interval in ISO-8601 form.
func (t TimeInterval) String() string {
	return fmt.Sprintf("[%s, %s)",
		t.Start.Time().Format(time.RFC3339Nano), t.End.Time().Format(time.RFC3339Nano))
}

// TimeIntervalExtent returns the union of all known intervals. A nil entry makes the
// whole extent unknown.
func TimeIntervalExtent(intervals []*TimeInterval) *TimeInterval {
	if len(intervals) == 0 {
		return nil
	}
	var out *TimeInterval
	for _, t := range intervals {
		if t == nil {
			return nil
		}
		if out == nil {
			c := *t
			out = &c
			continue
		}
		e := out.Extend(*t)
		out = &e
	}
	return out
}
