/*
DESCRIPTION
  normalize.go provides histogram equalization and area-averaging
  downsampling, and combines them with decoding into Normalize.

LICENSE
  Copyright (C) 2025 the Australian Ocean Lab (AusOcean)

  It is free software: you can redistribute it and/or modify them
  under the terms of the GNU General Public License as published by the
  Free Software Foundation, either version 3 of the License, or (at your
  option) any later version.

  It is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
  FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License
  for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt.  If not, see http://www.gnu.org/licenses.
*/

package raster

import "math"

// DefaultMaxLongEdge is the default bound on the longer image side.
const DefaultMaxLongEdge = 900

// Normalizer decodes, equalizes and bounds images. It holds no state and
// may be shared between goroutines.
type Normalizer struct{}

// Normalize implements the pipeline's normalization step using Normalize.
func (Normalizer) Normalize(b []byte, maxLongEdge int) (*Raster, error) {
	return Normalize(b, maxLongEdge)
}

// Normalize decodes b, equalizes its histogram and, if its longer side
// exceeds maxLongEdge, downsamples it so that the longer side equals
// maxLongEdge. A maxLongEdge of zero or less disables downsampling.
func Normalize(b []byte, maxLongEdge int) (*Raster, error) {
	r, err := Decode(b)
	if err != nil {
		return nil, err
	}
	r = Equalize(r)
	if w, h, ok := Bound(r.W, r.H, maxLongEdge); ok {
		r = ResizeArea(r, w, h)
	}
	return r, nil
}

// Bound returns the dimensions an image of size w×h is scaled to so that
// its longer side is maxLongEdge, and whether scaling is needed at all.
func Bound(w, h, maxLongEdge int) (int, int, bool) {
	m := max(w, h)
	if maxLongEdge <= 0 || m <= maxLongEdge {
		return w, h, false
	}
	s := float64(maxLongEdge) / float64(m)
	if w >= h {
		return maxLongEdge, max(1, int(math.Round(float64(h)*s))), true
	}
	return max(1, int(math.Round(float64(w)*s))), maxLongEdge, true
}

// Equalize returns a histogram equalized copy of r. The lowest occupied
// intensity maps to 0 and the highest to 255. A uniform raster is
// returned unchanged.
func Equalize(r *Raster) *Raster {
	out := New(r.W, r.H)
	total := len(r.Pix)
	if total == 0 {
		return out
	}

	var hist [256]int
	for _, v := range r.Pix {
		hist[v]++
	}

	i := 0
	for hist[i] == 0 {
		i++
	}
	if hist[i] == total {
		copy(out.Pix, r.Pix)
		return out
	}

	var lut [256]uint8
	scale := 255 / float64(total-hist[i])
	sum := 0
	for i++; i < 256; i++ {
		sum += hist[i]
		lut[i] = clampUint8(math.Round(float64(sum) * scale))
	}
	for j, v := range r.Pix {
		out.Pix[j] = lut[v]
	}
	return out
}

// tap is a single weighted source sample contributing to a destination
// sample.
type tap struct {
	i int
	w float64
}

// ResizeArea resamples r to w×h by averaging the source area covered by
// each destination pixel, weighting partially covered source pixels by
// their coverage.
func ResizeArea(r *Raster, w, h int) *Raster {
	xt := areaTaps(r.W, w)
	yt := areaTaps(r.H, h)

	// Horizontal pass into a w×r.H intermediate.
	tmp := make([]float64, w*r.H)
	for y := 0; y < r.H; y++ {
		row := r.Pix[y*r.W : (y+1)*r.W]
		for x, taps := range xt {
			var s float64
			for _, t := range taps {
				s += float64(row[t.i]) * t.w
			}
			tmp[y*w+x] = s
		}
	}

	out := New(w, h)
	for y, taps := range yt {
		for x := 0; x < w; x++ {
			var s float64
			for _, t := range taps {
				s += tmp[t.i*w+x] * t.w
			}
			out.Pix[y*w+x] = clampUint8(math.Round(s))
		}
	}
	return out
}

// areaTaps returns, for each of dst output samples, the source samples
// and weights covering it when src samples are mapped onto dst.
func areaTaps(src, dst int) [][]tap {
	scale := float64(src) / float64(dst)
	taps := make([][]tap, dst)
	for d := range taps {
		lo := float64(d) * scale
		hi := lo + scale
		for s := int(lo); s < src && float64(s) < hi; s++ {
			a := math.Max(lo, float64(s))
			b := math.Min(hi, float64(s+1))
			if b > a {
				taps[d] = append(taps[d], tap{i: s, w: (b - a) / scale})
			}
		}
	}
	return taps
}

func clampUint8(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
