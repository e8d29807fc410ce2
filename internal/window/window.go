// Package window buckets classified records into contiguous fixed-duration
// windows and counts volume and errors per window.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

const (
	DefaultDuration = time.Minute
	// DefaultMaxWindows bounds the grid a single run may allocate.
	DefaultMaxWindows = 1_000_000
)

var (
	ErrNoRecords      = errors.New("window: no records to bucket")
	ErrBadDuration    = errors.New("window: duration must be a whole number of seconds, at least 1s")
	ErrTooManyWindows = errors.New("window: too many windows")
)

// CheckDuration reports whether d can index second-resolution timestamps.
func CheckDuration(d time.Duration) error {
	if d < time.Second || d%time.Second != 0 {
		return fmt.Errorf("%w: got %s", ErrBadDuration, d)
	}
	return nil
}

// Floor returns the start of the window containing ts. The grid is anchored
// at midnight of origin's day. d is taken in whole seconds.
func Floor(ts, origin time.Time, d time.Duration) time.Time {
	day := midnight(origin)
	step := seconds(d)
	n := floorDiv(ts.Unix()-day.Unix(), step)
	return at(day, n*step)
}

// Build returns every window between the earliest and the latest record,
// including windows no record falls into, capped at DefaultMaxWindows.
func Build(records []model.Record, d time.Duration) ([]model.Window, error) {
	return BuildMax(records, d, DefaultMaxWindows)
}

// BuildMax is Build with an explicit cap; limit <= 0 means DefaultMaxWindows.
// The window count is checked before anything is allocated.
func BuildMax(records []model.Record, d time.Duration, limit int) ([]model.Window, error) {
	if err := CheckDuration(d); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if limit <= 0 {
		limit = DefaultMaxWindows
	}
	lo, hi := records[0].Timestamp, records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(lo) {
			lo = r.Timestamp
		}
		if r.Timestamp.After(hi) {
			hi = r.Timestamp
		}
	}

	// Unix seconds span year 1 to 9999 without overflow, unlike time.Duration.
	step := seconds(d)
	first := Floor(lo, lo, d)
	base := first.Unix()
	n := (hi.Unix()-base)/step + 1
	if n > int64(limit) {
		return nil, fmt.Errorf("%w: %d windows of %s exceed the limit of %d", ErrTooManyWindows, n, d, limit)
	}

	out := make([]model.Window, n)
	for i := range out {
		out[i].Start = at(first, int64(i)*step)
	}
	for _, r := range records {
		i := (r.Timestamp.Unix() - base) / step
		out[i].TotalVolume++
		if r.IsError {
			out[i].ErrorCount++
		}
	}
	return out, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func seconds(d time.Duration) int64 {
	if s := int64(d / time.Second); s > 0 {
		return s
	}
	return 1
}

// at adds sec seconds to t, keeping t's location.
func at(t time.Time, sec int64) time.Time {
	return time.Unix(t.Unix()+sec, 0).In(t.Location())
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
