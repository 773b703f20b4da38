// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package chart

import (
	"image/color"
)

// Op is one recorded Surface call.
type Op struct {
	Kind   string
	Points []Point
	Text   string
	Align  Align
	Color  color.Color
	Width  float64
	Fill   Gradient
}

// Recorder is a Surface that records calls instead of drawing.
type Recorder struct {
	W, H int
	Ops  []Op
}

// NewRecorder returns a Recorder reporting the given size.
func NewRecorder(width, height int) *Recorder {
	return &Recorder{W: width, H: height}
}

func (r *Recorder) Size() (int, int) { return r.W, r.H }

// Clear drops previously recorded operations.
func (r *Recorder) Clear() {
	r.Ops = append(r.Ops[:0], Op{Kind: "clear"})
}

func (r *Recorder) StrokeLine(from, to Point, c color.Color, width float64) {
	r.Ops = append(r.Ops, Op{Kind: "line", Points: []Point{from, to}, Color: c, Width: width})
}

func (r *Recorder) FillText(text string, at Point, align Align, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: "text", Points: []Point{at}, Text: text, Align: align, Color: c})
}

func (r *Recorder) FillPath(path []Point, g Gradient) {
	r.Ops = append(r.Ops, Op{Kind: "fill", Points: append([]Point(nil), path...), Fill: g})
}

func (r *Recorder) StrokePath(path []Point, c color.Color, width float64) {
	r.Ops = append(r.Ops, Op{Kind: "stroke", Points: append([]Point(nil), path...), Color: c, Width: width})
}

func (r *Recorder) FillCircle(center Point, radius float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: "circle", Points: []Point{center}, Color: c, Width: radius})
}

// Count returns the number of recorded ops of kind.
func (r *Recorder) Count(kind string) int {
	n := 0
	for _, op := range r.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Texts returns the recorded text labels in draw order.
func (r *Recorder) Texts() []string {
	var out []string
	for _, op := range r.Ops {
		if op.Kind == "text" {
			out = append(out, op.Text)
		}
	}
	return out
}
