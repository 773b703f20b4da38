// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package models

import (
	"fmt"
	"time"
)

// TimeRangeToken selects a predefined or custom lookback window.
type TimeRangeToken string

const (
	Range1h     TimeRangeToken = "1h"
	Range24h    TimeRangeToken = "24h"
	Range7d     TimeRangeToken = "7d"
	Range30d    TimeRangeToken = "30d"
	Range90d    TimeRangeToken = "90d"
	Range1y     TimeRangeToken = "1y"
	RangeCustom TimeRangeToken = "custom"
)

// DefaultRange is used when no token is given.
const DefaultRange = Range24h

// DateLayout is the format of CustomDateRange dates.
const DateLayout = "2006-01-02"

// PresetTokens lists the non-custom tokens in ascending window order.
var PresetTokens = []TimeRangeToken{Range1h, Range24h, Range7d, Range30d, Range90d, Range1y}

// Valid reports whether t is one of the known tokens (including custom).
func (t TimeRangeToken) Valid() bool {
	if t == RangeCustom {
		return true
	}
	for _, p := range PresetTokens {
		if p == t {
			return true
		}
	}
	return false
}

// Window returns the lookback duration of a preset token, or 0 for custom and
// unknown tokens.
func (t TimeRangeToken) Window() time.Duration {
	switch t {
	case Range1h:
		return time.Hour
	case Range24h:
		return 24 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	case Range90d:
		return 90 * 24 * time.Hour
	case Range1y:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Label is the human readable name used by pickers and exports.
func (t TimeRangeToken) Label() string {
	switch t {
	case Range1h:
		return "Last hour"
	case Range24h:
		return "Last 24 hours"
	case Range7d:
		return "Last 7 days"
	case Range30d:
		return "Last 30 days"
	case Range90d:
		return "Last 90 days"
	case Range1y:
		return "Last year"
	case RangeCustom:
		return "Custom range"
	default:
		return string(t)
	}
}

// CustomDateRange is an inclusive pair of YYYY-MM-DD dates.
type CustomDateRange struct {
	Start string `json:"start" validate:"required,date_only"`
	End   string `json:"end" validate:"required,date_only"`
}

// Bounds parses the range. end is the last instant of the End day (UTC).
func (r CustomDateRange) Bounds() (start, end time.Time, err error) {
	start, err = time.Parse(DateLayout, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start date %q: %w", r.Start, err)
	}
	endDay, err := time.Parse(DateLayout, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end date %q: %w", r.End, err)
	}
	return start, endDay.Add(24*time.Hour - time.Millisecond), nil
}

// TimeRange is the normalized output of the selector: a token plus, for
// custom, the concrete dates.
type TimeRange struct {
	Token  TimeRangeToken   `json:"token" validate:"omitempty,range_token"`
	Custom *CustomDateRange `json:"custom,omitempty"`
}

// Preset returns a TimeRange for a predefined token.
func Preset(t TimeRangeToken) TimeRange {
	return TimeRange{Token: t}
}

// Custom returns a custom TimeRange. The pointer is fresh so ranges are never
// shared between callers.
func Custom(start, end string) TimeRange {
	return TimeRange{Token: RangeCustom, Custom: &CustomDateRange{Start: start, End: end}}
}

// Key is a stable string identity, used to key pollers.
func (r TimeRange) Key() string {
	if r.Token == RangeCustom && r.Custom != nil {
		return fmt.Sprintf("custom:%s..%s", r.Custom.Start, r.Custom.End)
	}
	if r.Token == "" {
		return string(DefaultRange)
	}
	return string(r.Token)
}

// Clone returns a deep copy.
func (r TimeRange) Clone() TimeRange {
	out := TimeRange{Token: r.Token}
	if r.Custom != nil {
		c := *r.Custom
		out.Custom = &c
	}
	return out
}

// String implements fmt.Stringer.
func (r TimeRange) String() string {
	if r.Token == RangeCustom && r.Custom != nil {
		return r.Custom.Start + " – " + r.Custom.End
	}
	return r.Token.Label()
}
