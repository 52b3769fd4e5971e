/*
DESCRIPTION
  scalespace.go builds the Gaussian and difference-of-Gaussian pyramids
  used for keypoint detection and description.

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

package features

import (
	"math"

	"github.com/ausocean/photoid/sift/raster"
)

// plane is a single channel float image with samples in 0-255.
type plane struct {
	w, h int
	p    []float32
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, p: make([]float32, w*h)}
}

func (pl *plane) at(x, y int) float64 { return float64(pl.p[y*pl.w+x]) }

func fromRaster(r *raster.Raster) *plane {
	pl := newPlane(r.W, r.H)
	for i, v := range r.Pix {
		pl.p[i] = float32(v)
	}
	return pl
}

// pyramid holds layers+3 Gaussian images and layers+2 DoG images per
// octave.
type pyramid struct {
	gauss [][]*plane
	dog   [][]*plane
}

// octaves returns the number of octaves used for an image of size w×h,
// stopping once the smaller side falls to about 8 pixels.
func octaves(w, h int) int {
	n := int(math.Round(math.Log2(float64(min(w, h))))) - 2
	return max(n, 1)
}

// buildPyramid constructs the scale space of r.
func (e *Extractor) buildPyramid(r *raster.Raster) *pyramid {
	nLayers := e.Layers
	sig := make([]float64, nLayers+3)
	sig[0] = e.Sigma
	k := math.Pow(2, 1/float64(nLayers))
	for i := 1; i < nLayers+3; i++ {
		prev := math.Pow(k, float64(i-1)) * e.Sigma
		total := prev * k
		sig[i] = math.Sqrt(total*total - prev*prev)
	}

	base := blur(fromRaster(r), math.Sqrt(math.Max(e.Sigma*e.Sigma-initSigma*initSigma, 0.01)))

	nOct := octaves(r.W, r.H)
	pyr := &pyramid{gauss: make([][]*plane, nOct), dog: make([][]*plane, nOct)}
	for o := 0; o < nOct; o++ {
		g := make([]*plane, nLayers+3)
		for i := range g {
			switch {
			case o == 0 && i == 0:
				g[i] = base
			case i == 0:
				g[i] = halve(pyr.gauss[o-1][nLayers])
			default:
				g[i] = blur(g[i-1], sig[i])
			}
		}
		pyr.gauss[o] = g

		d := make([]*plane, nLayers+2)
		for i := range d {
			d[i] = subtract(g[i+1], g[i])
		}
		pyr.dog[o] = d
	}
	return pyr
}

// kernel returns a normalised 1D Gaussian kernel.
func kernel(sigma float64) []float32 {
	r := max(int(math.Ceil(sigma*4)), 1)
	k := make([]float64, 2*r+1)
	var sum float64
	for i := range k {
		x := float64(i - r)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i]
	}
	out := make([]float32, len(k))
	for i := range k {
		out[i] = float32(k[i] / sum)
	}
	return out
}

// reflect101 maps i into [0, n) by reflection about the edge samples,
// without repeating them.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// blur convolves src with a separable Gaussian of the given sigma.
func blur(src *plane, sigma float64) *plane {
	k := kernel(sigma)
	r := len(k) / 2
	w, h := src.w, src.h

	tmp := newPlane(w, h)
	for y := 0; y < h; y++ {
		row := src.p[y*w : (y+1)*w]
		out := tmp.p[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var s float32
			if x >= r && x+r < w {
				for i, kv := range k {
					s += kv * row[x-r+i]
				}
			} else {
				for i, kv := range k {
					s += kv * row[reflect101(x-r+i, w)]
				}
			}
			out[x] = s
		}
	}

	dst := newPlane(w, h)
	for y := 0; y < h; y++ {
		out := dst.p[y*w : (y+1)*w]
		for i, kv := range k {
			yy := reflect101(y-r+i, h)
			row := tmp.p[yy*w : (yy+1)*w]
			for x := range out {
				out[x] += kv * row[x]
			}
		}
	}
	return dst
}

// halve takes every second sample in both directions.
func halve(src *plane) *plane {
	w, h := max(src.w/2, 1), max(src.h/2, 1)
	dst := newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.p[y*w+x] = src.p[(2*y)*src.w+2*x]
		}
	}
	return dst
}

func subtract(a, b *plane) *plane {
	d := newPlane(a.w, a.h)
	for i := range d.p {
		d.p[i] = a.p[i] - b.p[i]
	}
	return d
}
