// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package bandwidth

import (
	"math"
	"unicode/utf16"
)

// maxBelowOne is the largest float64 strictly less than 1.
var maxBelowOne = math.Nextafter(1, 0)

// seedHash folds the seed's UTF-16 code units into a wrapping 32-bit hash
// (h = h*31 + c).
func seedHash(seed string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = h*31 + int32(c)
	}
	return h
}

// Generate returns a deterministic value in [0,1) for (seed, index).
// The same inputs always produce the same value. Not suitable for anything
// security related.
func Generate(seed string, index int) float64 {
	x := math.Sin(float64(seedHash(seed))+float64(index)) * 10000
	r := x - math.Floor(x)
	if r >= 1 {
		return maxBelowOne
	}
	if r < 0 {
		return 0
	}
	return r
}
