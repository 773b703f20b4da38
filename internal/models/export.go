// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package models

import "time"

// ExportType is the artifact format of an export job.
type ExportType string

const (
	ExportCSV   ExportType = "csv"
	ExportJSON  ExportType = "json"
	ExportPDF   ExportType = "pdf"
	ExportExcel ExportType = "excel"
)

// Extension returns the file extension (without dot) for the format.
func (t ExportType) Extension() string {
	if t == ExportExcel {
		return "xlsx"
	}
	return string(t)
}

// ContentType returns the MIME type of an uncompressed artifact.
func (t ExportType) ContentType() string {
	switch t {
	case ExportCSV:
		return "text/csv"
	case ExportJSON:
		return "application/json"
	case ExportPDF:
		return "application/pdf"
	case ExportExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// ExportDataType selects which metrics an export contains.
type ExportDataType string

const (
	DataPerformance ExportDataType = "performance"
	DataUsage       ExportDataType = "usage"
	DataCosts       ExportDataType = "costs"
	DataAll         ExportDataType = "all"
)

// ExportStatus is the lifecycle state of an export job.
type ExportStatus string

const (
	StatusPending    ExportStatus = "pending"
	StatusProcessing ExportStatus = "processing"
	StatusCompleted  ExportStatus = "completed"
	StatusFailed     ExportStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s ExportStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExportFilters narrow the proxies and window of an export.
type ExportFilters struct {
	Region    string           `json:"region,omitempty"`
	Category  string           `json:"category,omitempty"`
	ProxyID   string           `json:"proxyId,omitempty"`
	DateRange *CustomDateRange `json:"dateRange,omitempty"`
}

// ExportOptions describe one export request. They are copied into the job
// and never shared between jobs.
type ExportOptions struct {
	Type           ExportType     `json:"type" validate:"required,export_type"`
	DataType       ExportDataType `json:"dataType" validate:"required,export_data_type"`
	TimeRange      TimeRange      `json:"timeRange"`
	Filters        ExportFilters  `json:"filters"`
	IncludeCharts  bool           `json:"includeCharts"`
	IncludeRawData bool           `json:"includeRawData"`
	Compression    bool           `json:"compression"`
}

// Clone returns a deep copy of the options.
func (o ExportOptions) Clone() ExportOptions {
	out := o
	out.TimeRange = o.TimeRange.Clone()
	if o.Filters.DateRange != nil {
		dr := *o.Filters.DateRange
		out.Filters.DateRange = &dr
	}
	return out
}

// ExportJob is a tracked asynchronous export. Only the export manager mutates it;
// everything else receives copies.
type ExportJob struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        ExportType     `json:"type"`
	DataType    ExportDataType `json:"dataType"`
	Status      ExportStatus   `json:"status"`
	Progress    *int           `json:"progress,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	FileSize    string         `json:"fileSize,omitempty"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Error       string         `json:"error,omitempty"`

	Options   ExportOptions `json:"options"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of the job.
func (j *ExportJob) Clone() ExportJob {
	out := *j
	out.Options = j.Options.Clone()
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	if j.CompletedAt != nil {
		c := *j.CompletedAt
		out.CompletedAt = &c
	}
	return out
}
