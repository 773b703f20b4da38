// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/proxywatch/internal/export"
	"github.com/tomtom215/proxywatch/internal/timerange"
	"github.com/tomtom215/proxywatch/internal/validation"
)

// paramError rejects a malformed query or path parameter.
type paramError struct {
	Field  string
	Reason string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// writeError maps a domain error to its HTTP response.
func writeError(rw *ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	var rerr *timerange.ValidationError
	var perr *paramError

	switch {
	case errors.As(err, &verr):
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
	case errors.As(err, &rerr):
		rw.ValidationError(rerr.Error(), map[string]interface{}{"field": rerr.Field, "reason": rerr.Reason})
	case errors.As(err, &perr):
		rw.ValidationError(perr.Error(), map[string]interface{}{"field": perr.Field, "reason": perr.Reason})
	case errors.Is(err, export.ErrInvalidOptions):
		rw.ValidationError(err.Error(), nil)
	case errors.Is(err, export.ErrNotFound):
		rw.NotFound("export job not found")
	case errors.Is(err, export.ErrNotReady):
		rw.Conflict("export job has not completed")
	case errors.Is(err, export.ErrTooManyJobs):
		rw.ServiceUnavailable("export capacity reached; delete finished jobs and retry", nil)
	default:
		rw.InternalError(err)
	}
}

// sanitizeLogValue escapes control characters in client-supplied values
// before they reach the logs.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
