package timex

import "time"

// Ms converts a duration to whole milliseconds.
func Ms(d time.Duration) int64 { return int64(d / time.Millisecond) }

// FromMs converts milliseconds to a duration.
func FromMs[T ~int | ~int32 | ~int64 | ~uint32](ms T) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Since returns now-t, or 0 when t is the zero time or in the future.
func Since(now, t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	if d := now.Sub(t); d > 0 {
		return d
	}
	return 0
}

// Until returns t-now, or 0 when t is the zero time or already passed.
func Until(now, t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	if d := t.Sub(now); d > 0 {
		return d
	}
	return 0
}
