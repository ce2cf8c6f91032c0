package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// IntervalKind enumerates the supported execution frequencies.
type IntervalKind string

const (
	IntervalEveryMinute IntervalKind = "every_minute"
	IntervalHalfHourly  IntervalKind = "half_hourly"
	IntervalHourly      IntervalKind = "hourly"
	IntervalHalfDaily   IntervalKind = "half_daily"
	IntervalDaily       IntervalKind = "daily"
	IntervalWeekly      IntervalKind = "weekly"
	IntervalFortnightly IntervalKind = "fortnightly"
	IntervalMonthly     IntervalKind = "monthly"
	IntervalCustom      IntervalKind = "custom"
)

// MinCustomIntervalSeconds is the shortest custom interval a vault may use.
const MinCustomIntervalSeconds = 60

// TimeInterval is the gap between two scheduled executions.
type TimeInterval struct {
	Kind    IntervalKind `json:"kind"`
	Seconds int64        `json:"seconds,omitempty"` // only for IntervalCustom
}

// Custom builds a custom interval of the given number of seconds.
func Custom(seconds int64) TimeInterval {
	return TimeInterval{Kind: IntervalCustom, Seconds: seconds}
}

// Validate checks the interval is one the scheduler can step.
func (i TimeInterval) Validate() error {
	switch i.Kind {
	case IntervalEveryMinute, IntervalHalfHourly, IntervalHourly, IntervalHalfDaily,
		IntervalDaily, IntervalWeekly, IntervalFortnightly, IntervalMonthly:
		return nil
	case IntervalCustom:
		if i.Seconds < MinCustomIntervalSeconds {
			return fmt.Errorf("%w: custom interval must be at least %d seconds", ErrInvalidInput, MinCustomIntervalSeconds)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown time interval %q", ErrInvalidInput, i.Kind)
	}
}

// Duration is the nominal length of one interval. Monthly is approximated as 30 days
// and only used for projections; scheduling steps months on the calendar.
func (i TimeInterval) Duration() time.Duration {
	switch i.Kind {
	case IntervalEveryMinute:
		return time.Minute
	case IntervalHalfHourly:
		return 30 * time.Minute
	case IntervalHourly:
		return time.Hour
	case IntervalHalfDaily:
		return 12 * time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	case IntervalWeekly:
		return 7 * 24 * time.Hour
	case IntervalFortnightly:
		return 14 * 24 * time.Hour
	case IntervalMonthly:
		return 30 * 24 * time.Hour
	case IntervalCustom:
		return time.Duration(i.Seconds) * time.Second
	}
	return 0
}

// Step advances t by exactly one interval.
func (i TimeInterval) Step(t time.Time) time.Time {
	if i.Kind == IntervalMonthly {
		return t.AddDate(0, 1, 0)
	}
	return t.Add(i.Duration())
}

// NextAfter returns the first whole-interval step from target that lies strictly after now.
// A target already in the future still advances by one step, so the result is always > now
// and reachable from target. Long outages never produce a retroactive schedule.
func (i TimeInterval) NextAfter(target, now time.Time) time.Time {
	next := i.Step(target)
	if next.After(now) {
		return next
	}
	if i.Kind != IntervalMonthly {
		d := i.Duration()
		if d <= 0 {
			return now.Add(time.Second)
		}
		// skip whole intervals in one jump
		missed := now.Sub(next) / d
		next = next.Add(missed * d)
		for !next.After(now) {
			next = next.Add(d)
		}
		return next
	}
	for !next.After(now) {
		next = i.Step(next)
	}
	return next
}

func (i TimeInterval) String() string {
	if i.Kind == IntervalCustom {
		return fmt.Sprintf("custom(%ds)", i.Seconds)
	}
	return string(i.Kind)
}

// UnmarshalJSON accepts either the bare kind ("daily") or the object form.
func (i *TimeInterval) UnmarshalJSON(data []byte) error {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		*i = TimeInterval{Kind: IntervalKind(kind)}
		return nil
	}
	type alias TimeInterval
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*i = TimeInterval(decoded)
	return nil
}
