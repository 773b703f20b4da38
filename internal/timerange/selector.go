// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package timerange turns range picker input into normalized models.TimeRange
// values.
//
// A Selector accepts preset tokens, quick filters ("today", "last_week", ...)
// and custom start/end dates. Quick filters resolve to a custom range relative
// to the injected clock. Custom input is only emitted after validation, and
// draft edits emit nothing until Apply. Listeners registered with OnChange
// receive every confirmed selection.
package timerange

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/proxywatch/internal/models"
)

// ValidationError rejects a malformed or inverted range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid time range %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// QuickFilter names a window relative to the current date.
type QuickFilter string

const (
	Today     QuickFilter = "today"
	Yesterday QuickFilter = "yesterday"
	ThisWeek  QuickFilter = "this_week"
	LastWeek  QuickFilter = "last_week"
	ThisMonth QuickFilter = "this_month"
	LastMonth QuickFilter = "last_month"
)

// QuickFilters lists the supported filters in picker order.
var QuickFilters = []QuickFilter{Today, Yesterday, ThisWeek, LastWeek, ThisMonth, LastMonth}

// Option is a preset shown by pickers.
type Option struct {
	Token models.TimeRangeToken `json:"token"`
	Label string                `json:"label"`
}

// Presets returns the predefined ranges with labels.
func Presets() []Option {
	out := make([]Option, 0, len(models.PresetTokens))
	for _, t := range models.PresetTokens {
		out = append(out, Option{Token: t, Label: t.Label()})
	}
	return out
}

// Normalize validates token plus optional dates and returns the canonical
// TimeRange. An empty token means the default range. Dates are ignored for
// preset tokens.
func Normalize(token models.TimeRangeToken, start, end string) (models.TimeRange, error) {
	if token == "" {
		token = models.DefaultRange
	}
	if !token.Valid() {
		return models.TimeRange{}, &ValidationError{Field: "token", Reason: fmt.Sprintf("unknown range %q", token)}
	}
	if token != models.RangeCustom {
		return models.Preset(token), nil
	}
	if err := ValidateCustom(models.CustomDateRange{Start: start, End: end}); err != nil {
		return models.TimeRange{}, err
	}
	return models.Custom(start, end), nil
}

// ValidateCustom checks that both dates are present, parse, and are ordered.
func ValidateCustom(r models.CustomDateRange) error {
	if strings.TrimSpace(r.Start) == "" {
		return &ValidationError{Field: "start", Reason: "required"}
	}
	if strings.TrimSpace(r.End) == "" {
		return &ValidationError{Field: "end", Reason: "required"}
	}
	start, err := time.Parse(models.DateLayout, r.Start)
	if err != nil {
		return &ValidationError{Field: "start", Reason: "expected YYYY-MM-DD"}
	}
	end, err := time.Parse(models.DateLayout, r.End)
	if err != nil {
		return &ValidationError{Field: "end", Reason: "expected YYYY-MM-DD"}
	}
	if start.After(end) {
		return &ValidationError{Field: "end", Reason: "must not be before start"}
	}
	return nil
}

// Resolve computes the concrete dates of a quick filter for the day containing
// now, in now's location. Weeks start on Sunday.
func Resolve(f QuickFilter, now time.Time) (models.CustomDateRange, error) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())

	var start, end time.Time
	switch f {
	case Today:
		start, end = today, today
	case Yesterday:
		start = today.AddDate(0, 0, -1)
		end = start
	case ThisWeek:
		start, end = weekStart, today
	case LastWeek:
		start = weekStart.AddDate(0, 0, -7)
		end = weekStart.AddDate(0, 0, -1)
	case ThisMonth:
		start, end = monthStart, today
	case LastMonth:
		start = monthStart.AddDate(0, -1, 0)
		end = monthStart.AddDate(0, 0, -1)
	default:
		return models.CustomDateRange{}, &ValidationError{Field: "quickFilter", Reason: fmt.Sprintf("unknown filter %q", f)}
	}
	return models.CustomDateRange{
		Start: start.Format(models.DateLayout),
		End:   end.Format(models.DateLayout),
	}, nil
}

// Listener receives confirmed selections.
type Listener func(models.TimeRange)

// Selector holds the current selection and an uncommitted custom draft.
// It is safe for concurrent use; listeners run synchronously on the caller's
// goroutine, outside the lock.
type Selector struct {
	mu        sync.Mutex
	current   models.TimeRange
	draft     models.CustomDateRange
	listeners []Listener
	now       func() time.Time
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithClock overrides time.Now for quick filters.
func WithClock(now func() time.Time) SelectorOption {
	return func(s *Selector) { s.now = now }
}

// WithInitial sets the starting selection without emitting.
func WithInitial(r models.TimeRange) SelectorOption {
	return func(s *Selector) { s.current = r.Clone() }
}

// NewSelector returns a Selector on the default range.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		current: models.Preset(models.DefaultRange),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers l for every confirmed selection.
func (s *Selector) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Current returns a copy of the confirmed selection.
func (s *Selector) Current() models.TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Select chooses a preset. The custom token is rejected here; use SelectCustom.
func (s *Selector) Select(token models.TimeRangeToken) error {
	if token == models.RangeCustom {
		return &ValidationError{Field: "token", Reason: "custom requires start and end dates"}
	}
	r, err := Normalize(token, "", "")
	if err != nil {
		return err
	}
	s.emit(r)
	return nil
}

// SelectCustom validates and emits a custom range.
func (s *Selector) SelectCustom(r models.CustomDateRange) error {
	if err := ValidateCustom(r); err != nil {
		return err
	}
	s.emit(models.Custom(r.Start, r.End))
	return nil
}

// SelectQuickFilter resolves f against the clock and emits it as a custom range.
func (s *Selector) SelectQuickFilter(f QuickFilter) error {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	r, err := Resolve(f, now)
	if err != nil {
		return err
	}
	s.emit(models.Custom(r.Start, r.End))
	return nil
}

// SetDraftStart edits the draft start date. Nothing is emitted.
func (s *Selector) SetDraftStart(date string) {
	s.mu.Lock()
	s.draft.Start = date
	s.mu.Unlock()
}

// SetDraftEnd edits the draft end date. Nothing is emitted.
func (s *Selector) SetDraftEnd(date string) {
	s.mu.Lock()
	s.draft.End = date
	s.mu.Unlock()
}

// Draft returns the uncommitted custom dates.
func (s *Selector) Draft() models.CustomDateRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// CanApply reports whether the draft would be accepted by Apply.
func (s *Selector) CanApply() bool {
	return ValidateCustom(s.Draft()) == nil
}

// Apply commits the draft as a custom selection.
func (s *Selector) Apply() error {
	return s.SelectCustom(s.Draft())
}

func (s *Selector) emit(r models.TimeRange) {
	s.mu.Lock()
	s.current = r
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(r.Clone())
	}
}
