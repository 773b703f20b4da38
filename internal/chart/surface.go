// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package chart draws bandwidth time series as a filled line chart.
//
// Draw is a pure function of (surface, samples, range token): it holds no state
// and never panics on empty or single-point input. A Surface is any 2D target
// offering line, path, circle and text primitives. RasterSurface renders to an
// image.RGBA and PNG; Recorder captures calls for inspection.
package chart

import (
	"image/color"
)

// Point is a position in surface pixels, origin top-left.
type Point struct {
	X, Y float64
}

// Align is the horizontal anchoring of text relative to its position.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Gradient is a vertical linear gradient from Top (at Y0) to Bottom (at Y1).
type Gradient struct {
	Y0, Y1      float64
	Top, Bottom color.NRGBA
}

// At returns the gradient color at y, clamped outside [Y0, Y1].
func (g Gradient) At(y float64) color.NRGBA {
	if g.Y1 <= g.Y0 {
		return g.Top
	}
	t := (y - g.Y0) / (g.Y1 - g.Y0)
	switch {
	case t <= 0:
		return g.Top
	case t >= 1:
		return g.Bottom
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
	}
	return color.NRGBA{
		R: lerp(g.Top.R, g.Bottom.R),
		G: lerp(g.Top.G, g.Bottom.G),
		B: lerp(g.Top.B, g.Bottom.B),
		A: lerp(g.Top.A, g.Bottom.A),
	}
}

// Surface is a 2D drawing target.
type Surface interface {
	// Size returns the current pixel dimensions.
	Size() (width, height int)
	// Clear resets every pixel to the background.
	Clear()
	StrokeLine(from, to Point, c color.Color, width float64)
	FillText(text string, at Point, align Align, c color.Color)
	// FillPath fills the closed polygon path with g.
	FillPath(path []Point, g Gradient)
	// StrokePath strokes the open polyline path.
	StrokePath(path []Point, c color.Color, width float64)
	FillCircle(center Point, radius float64, c color.Color)
}
