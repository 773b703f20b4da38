// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package chart

import (
	"image/color"
	"math"
	"time"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/models"
)

const (
	// Padding is the fixed margin around the plot area.
	Padding = 40
	// HorizontalLines is the number of horizontal gridlines.
	HorizontalLines = 5
	// MaxVerticalLines caps the number of vertical gridlines.
	MaxVerticalLines = 6

	lineWidth    = 2
	markerRadius = 3
)

// Style holds colors and the label time zone.
type Style struct {
	Grid     color.NRGBA
	Label    color.NRGBA
	Line     color.NRGBA
	Marker   color.NRGBA
	Location *time.Location
}

// DefaultStyle is the blue-on-white chart style with UTC labels.
func DefaultStyle() Style {
	return Style{
		Grid:     color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff},
		Label:    color.NRGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff},
		Line:     color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
		Marker:   color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
		Location: time.UTC,
	}
}

// Draw renders samples onto s with the default style.
func Draw(s Surface, samples []models.BandwidthSample, token models.TimeRangeToken) {
	DrawStyled(s, samples, token, DefaultStyle())
}

// DrawStyled renders samples onto s.
//
// Layout: five horizontal gridlines with the lower four labeled in bytes, up to
// six vertical gridlines with interior time labels, then (for two or more
// samples) a gradient area, the line and a marker per sample.
func DrawStyled(s Surface, samples []models.BandwidthSample, token models.TimeRangeToken, st Style) {
	if st.Location == nil {
		st.Location = time.UTC
	}

	s.Clear()
	w, h := s.Size()
	left, top := float64(Padding), float64(Padding)
	chartW := math.Max(0, float64(w)-2*Padding)
	chartH := math.Max(0, float64(h)-2*Padding)
	bottom := top + chartH

	maxValue := int64(1)
	for _, sample := range samples {
		if sample.BytesTransferred > maxValue {
			maxValue = sample.BytesTransferred
		}
	}

	// horizontal gridlines, i counted from the baseline up
	for i := 0; i < HorizontalLines; i++ {
		y := bottom - chartH*float64(i)/float64(HorizontalLines-1)
		s.StrokeLine(Point{left, y}, Point{left + chartW, y}, st.Grid, 1)
		if i < HorizontalLines-1 {
			value := int64(float64(maxValue) * float64(i) / float64(HorizontalLines-1))
			s.FillText(bandwidth.FormatBytes(value), Point{left - 5, y}, AlignRight, st.Label)
		}
	}

	n := len(samples)
	vertical := MaxVerticalLines
	if n >= 2 && n < vertical {
		vertical = n
	}
	for i := 0; i < vertical; i++ {
		x := left + chartW*float64(i)/float64(vertical-1)
		s.StrokeLine(Point{x, top}, Point{x, bottom}, st.Grid, 1)
		if i == 0 || i == vertical-1 || n < 2 {
			continue
		}
		idx := int(math.Round(float64(i) * float64(n-1) / float64(vertical-1)))
		label := FormatTick(samples[idx].Time(), token, st.Location)
		s.FillText(label, Point{x, bottom + 15}, AlignCenter, st.Label)
	}

	if n < 2 {
		return
	}

	line := make([]Point, n)
	for i, sample := range samples {
		line[i] = Point{
			X: left + chartW*float64(i)/float64(n-1),
			Y: bottom - chartH*float64(sample.BytesTransferred)/float64(maxValue),
		}
	}

	area := make([]Point, 0, n+2)
	area = append(area, line...)
	area = append(area, Point{line[n-1].X, bottom}, Point{line[0].X, bottom})
	fadeTop := st.Line
	fadeTop.A = 0x66 // 0.4 opacity
	fadeBottom := st.Line
	fadeBottom.A = 0
	s.FillPath(area, Gradient{Y0: top, Y1: bottom, Top: fadeTop, Bottom: fadeBottom})

	s.StrokePath(line, st.Line, lineWidth)

	for _, p := range line {
		s.FillCircle(p, markerRadius, st.Marker)
	}
}

// FormatTick formats an axis timestamp for the range granularity: minutes for
// 1h, hours for 24h, month/day otherwise.
func FormatTick(t time.Time, token models.TimeRangeToken, loc *time.Location) string {
	t = t.In(loc)
	switch token {
	case models.Range1h:
		return t.Format("15:04")
	case models.Range24h:
		return t.Format("15:00")
	default:
		return t.Format("1/2")
	}
}
