// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package bandwidth

import (
	"fmt"
	"time"

	"github.com/tomtom215/proxywatch/internal/models"
)

// Bucket is the sampling scheme of one fetch: Count samples, Interval apart,
// the last one at End.
type Bucket struct {
	Count    int
	Interval time.Duration
	End      time.Time
}

// Start is the timestamp of the first sample.
func (b Bucket) Start() time.Time {
	if b.Count <= 1 {
		return b.End
	}
	return b.End.Add(-time.Duration(b.Count-1) * b.Interval)
}

// Timestamp returns the epoch-ms timestamp of sample i.
func (b Bucket) Timestamp(i int) int64 {
	return b.End.Add(-time.Duration(b.Count-1-i) * b.Interval).UnixMilli()
}

type scheme struct {
	count    int
	interval time.Duration
}

// 30d, 90d and 1y keep the sample count in the 30–52 range so charts stay readable.
var schemes = map[models.TimeRangeToken]scheme{
	models.Range1h:  {12, 5 * time.Minute},
	models.Range24h: {24, time.Hour},
	models.Range7d:  {28, 6 * time.Hour},
	models.Range30d: {30, 24 * time.Hour},
	models.Range90d: {45, 48 * time.Hour},
	models.Range1y:  {52, 7 * 24 * time.Hour},
}

// BucketsFor returns the sampling scheme for r ending at now. Unknown or empty
// tokens use the 24h scheme. Custom ranges take the count of the smallest preset
// that covers the span and divide the span evenly.
func BucketsFor(r models.TimeRange, now time.Time) (Bucket, error) {
	now = now.UTC().Truncate(time.Millisecond)

	if r.Token != models.RangeCustom {
		s, ok := schemes[r.Token]
		if !ok {
			s = schemes[models.DefaultRange]
		}
		return Bucket{Count: s.count, Interval: s.interval, End: now}, nil
	}

	if r.Custom == nil {
		return Bucket{}, fmt.Errorf("custom range requires start and end dates")
	}
	start, end, err := r.Custom.Bounds()
	if err != nil {
		return Bucket{}, err
	}
	if end.Before(start) {
		return Bucket{}, fmt.Errorf("custom range start %s is after end %s", r.Custom.Start, r.Custom.End)
	}
	if end.After(now) {
		end = now
	}
	span := end.Sub(start)
	if span <= 0 {
		// range lies entirely in the future; show the last hour before now
		span = time.Hour
		end = now
	}

	count := schemes[models.Range1y].count
	for _, tok := range models.PresetTokens {
		if tok.Window() >= span {
			count = schemes[tok].count
			break
		}
	}
	interval := (span / time.Duration(count-1)).Truncate(time.Millisecond)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return Bucket{Count: count, Interval: interval, End: end}, nil
}
