// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package export

import (
	"math"
	"strconv"
	"time"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/models"
)

// proxySeries is one proxy's fetched data.
type proxySeries struct {
	Proxy    models.Proxy
	Samples  []models.BandwidthSample
	Interval time.Duration
	Fallback bool
	Stats    models.BandwidthStats
}

// Table is a titled grid of cells. Cells are string, int64 or float64.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// ChartImage is a rendered PNG for one proxy.
type ChartImage struct {
	ProxyID string
	Title   string
	PNG     []byte
}

// Report is the format-independent content of an export.
type Report struct {
	Title       string
	Range       string
	DataType    models.ExportDataType
	GeneratedAt time.Time
	Estimated   bool
	Series      []proxySeries
	Tables      []Table
	Charts      []ChartImage
	RawData     bool
}

func includes(dt, want models.ExportDataType) bool {
	return dt == want || dt == models.DataAll
}

// buildReport lays out the summary tables for the requested data type and,
// when asked, one row per sample.
func buildReport(job models.ExportJob, r models.TimeRange, series []proxySeries, now time.Time) Report {
	rep := Report{
		Title:       job.Name,
		Range:       r.String(),
		DataType:    job.DataType,
		GeneratedAt: now.UTC(),
		Series:      series,
		RawData:     job.Options.IncludeRawData,
	}
	for _, s := range series {
		if s.Fallback {
			rep.Estimated = true
		}
	}

	if includes(job.DataType, models.DataUsage) {
		t := Table{
			Name:   "Usage",
			Header: []string{"Proxy ID", "Name", "Region", "Category", "Total Bytes", "Total", "Average Bytes", "Peak Bytes", "Samples"},
		}
		for _, s := range series {
			t.Rows = append(t.Rows, []any{
				s.Proxy.ID, s.Proxy.Name, s.Proxy.Region, s.Proxy.Category,
				s.Stats.Total, bandwidth.FormatBytes(s.Stats.Total), round(s.Stats.Average, 0), s.Stats.Peak, int64(s.Stats.Count),
			})
		}
		rep.Tables = append(rep.Tables, t)
	}

	if includes(job.DataType, models.DataPerformance) {
		t := Table{
			Name:   "Performance",
			Header: []string{"Proxy ID", "Name", "Interval", "Average Mbps", "Peak Mbps"},
		}
		for _, s := range series {
			t.Rows = append(t.Rows, []any{
				s.Proxy.ID, s.Proxy.Name, s.Interval.String(),
				round(bandwidth.Mbps(int64(s.Stats.Average), s.Interval), 3),
				round(bandwidth.Mbps(s.Stats.Peak, s.Interval), 3),
			})
		}
		rep.Tables = append(rep.Tables, t)
	}

	if includes(job.DataType, models.DataCosts) {
		t := Table{
			Name:   "Costs",
			Header: []string{"Proxy ID", "Name", "Total GB", "Cost per GB", "Cost"},
		}
		for _, s := range series {
			gb := bandwidth.Gigabytes(s.Stats.Total)
			t.Rows = append(t.Rows, []any{
				s.Proxy.ID, s.Proxy.Name, round(gb, 3), s.Proxy.CostPerGB, round(gb*s.Proxy.CostPerGB, 2),
			})
		}
		rep.Tables = append(rep.Tables, t)
	}

	if job.Options.IncludeRawData {
		t := Table{
			Name:   "Raw Data",
			Header: []string{"Proxy ID", "Timestamp", "Bytes Transferred", "Mbps"},
		}
		for _, s := range series {
			for _, sample := range s.Samples {
				t.Rows = append(t.Rows, []any{
					s.Proxy.ID,
					sample.Time().Format(time.RFC3339),
					sample.BytesTransferred,
					round(bandwidth.Mbps(sample.BytesTransferred, s.Interval), 3),
				})
			}
		}
		rep.Tables = append(rep.Tables, t)
	}

	return rep
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// cellString renders a table cell for text formats.
func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
