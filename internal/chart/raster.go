// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

const (
	// DefaultWidth and DefaultHeight size charts when the caller gives none.
	DefaultWidth  = 800
	DefaultHeight = 300
	// MaxDimension bounds either side of a rendered chart.
	MaxDimension = 4096

	circleSegments = 24
)

// RasterSurface is a Surface backed by an RGBA image.
type RasterSurface struct {
	img        *image.RGBA
	background color.Color
	face       font.Face
	rast       *vector.Rasterizer
}

// NewRasterSurface allocates a white surface of the given size.
func NewRasterSurface(width, height int) *RasterSurface {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	s := &RasterSurface{
		img:        image.NewRGBA(image.Rect(0, 0, width, height)),
		background: color.White,
		face:       basicfont.Face7x13,
		rast:       vector.NewRasterizer(width, height),
	}
	s.Clear()
	return s
}

// Resize reallocates the backing image. Drawing must be repeated afterwards.
func (s *RasterSurface) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	s.rast.Reset(width, height)
	s.Clear()
}

// Image returns the backing image.
func (s *RasterSurface) Image() *image.RGBA { return s.img }

func (s *RasterSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *RasterSurface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)
}

func (s *RasterSurface) StrokeLine(from, to Point, c color.Color, width float64) {
	s.strokeSegment(from, to, width)
	s.fill(image.NewUniform(c))
}

func (s *RasterSurface) StrokePath(path []Point, c color.Color, width float64) {
	if len(path) < 2 {
		return
	}
	src := image.NewUniform(c)
	for i := 1; i < len(path); i++ {
		s.strokeSegment(path[i-1], path[i], width)
		s.fill(src)
	}
	// round joins
	for i := 1; i < len(path)-1; i++ {
		s.circle(path[i], width/2)
		s.fill(src)
	}
}

func (s *RasterSurface) FillPath(path []Point, g Gradient) {
	if len(path) < 3 {
		return
	}
	s.moveTo(path[0])
	for _, p := range path[1:] {
		s.lineTo(p)
	}
	s.rast.ClosePath()
	s.fill(&gradientImage{g: g, bounds: s.img.Bounds()})
}

func (s *RasterSurface) FillCircle(center Point, radius float64, c color.Color) {
	if radius <= 0 {
		return
	}
	s.circle(center, radius)
	s.fill(image.NewUniform(c))
}

func (s *RasterSurface) FillText(text string, at Point, align Align, c color.Color) {
	d := &font.Drawer{Dst: s.img, Src: image.NewUniform(c), Face: s.face}
	x := at.X
	switch align {
	case AlignCenter:
		x -= float64(d.MeasureString(text).Round()) / 2
	case AlignRight:
		x -= float64(d.MeasureString(text).Round())
	}
	// vertically centered on at.Y
	m := s.face.Metrics()
	y := at.Y + float64(m.Ascent.Round()-m.Descent.Round())/2
	d.Dot = fixed.P(int(math.Round(x)), int(math.Round(y)))
	d.DrawString(text)
}

// EncodePNG writes the surface as PNG.
func (s *RasterSurface) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, s.img); err != nil {
		return fmt.Errorf("encode chart png: %w", err)
	}
	return nil
}

func (s *RasterSurface) strokeSegment(a, b Point, width float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		s.circle(a, width/2)
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	s.moveTo(Point{a.X + nx, a.Y + ny})
	s.lineTo(Point{b.X + nx, b.Y + ny})
	s.lineTo(Point{b.X - nx, b.Y - ny})
	s.lineTo(Point{a.X - nx, a.Y - ny})
	s.rast.ClosePath()
}

func (s *RasterSurface) circle(c Point, r float64) {
	s.moveTo(Point{c.X + r, c.Y})
	for i := 1; i < circleSegments; i++ {
		theta := 2 * math.Pi * float64(i) / circleSegments
		s.lineTo(Point{c.X + r*math.Cos(theta), c.Y + r*math.Sin(theta)})
	}
	s.rast.ClosePath()
}

func (s *RasterSurface) moveTo(p Point) {
	x, y := s.clamp(p)
	s.rast.MoveTo(x, y)
}

func (s *RasterSurface) lineTo(p Point) {
	x, y := s.clamp(p)
	s.rast.LineTo(x, y)
}

// clamp keeps vertices inside the rasterizer's accumulation buffer.
func (s *RasterSurface) clamp(p Point) (float32, float32) {
	w, h := s.Size()
	return float32(math.Max(0, math.Min(float64(w), p.X))),
		float32(math.Max(0, math.Min(float64(h), p.Y)))
}

func (s *RasterSurface) fill(src image.Image) {
	s.rast.DrawOp = draw.Over
	s.rast.Draw(s.img, s.img.Bounds(), src, image.Point{})
	w, h := s.Size()
	s.rast.Reset(w, h)
}

type gradientImage struct {
	g      Gradient
	bounds image.Rectangle
}

func (gi *gradientImage) ColorModel() color.Model { return color.NRGBAModel }
func (gi *gradientImage) Bounds() image.Rectangle { return gi.bounds }
func (gi *gradientImage) At(_, y int) color.Color { return gi.g.At(float64(y) + 0.5) }

// RenderPNG draws samples on a fresh width x height surface and returns PNG
// bytes. Zero dimensions fall back to the defaults.
func RenderPNG(samples []models.BandwidthSample, token models.TimeRangeToken, width, height int) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.ChartRenderDuration.Observe(time.Since(start).Seconds()) }()

	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("chart size %dx%d exceeds %d", width, height, MaxDimension)
	}

	s := NewRasterSurface(width, height)
	Draw(s, samples, token)

	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
