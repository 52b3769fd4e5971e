/*
DESCRIPTION
  raster.go provides the single channel intensity grid that the matching
  pipeline operates on, along with decoding of raw image bytes into it.

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

// Package raster decodes, equalizes and bounds the size of grayscale
// images before feature extraction.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels is the largest image area Decode accepts, the same default
// limit as OpenCV's image codecs.
const MaxPixels = 1 << 30

// Errors returned by Decode.
var (
	ErrEmpty    = errors.New("no image data")
	ErrTooLarge = errors.New("image dimensions exceed pixel limit")
)

// Raster is a row-major grid of 8-bit intensity samples.
type Raster struct {
	W, H int
	Pix  []uint8
}

// New returns a zeroed Raster of the given dimensions.
func New(w, h int) *Raster {
	return &Raster{W: w, H: h, Pix: make([]uint8, w*h)}
}

// At returns the sample at column x, row y.
func (r *Raster) At(x, y int) uint8 { return r.Pix[y*r.W+x] }

// Set sets the sample at column x, row y.
func (r *Raster) Set(x, y int, v uint8) { r.Pix[y*r.W+x] = v }

// Gray returns the raster as an *image.Gray sharing no memory with r.
func (r *Raster) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, r.W, r.H))
	copy(g.Pix, r.Pix)
	return g
}

// FromGray copies g into a new Raster, honouring the image stride.
func FromGray(g *image.Gray) *Raster {
	b := g.Bounds()
	r := New(b.Dx(), b.Dy())
	for y := 0; y < r.H; y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(r.Pix[y*r.W:(y+1)*r.W], g.Pix[off:off+r.W])
	}
	return r
}

// Decode decodes b as any registered image format and converts it to
// grayscale using ITU-R 601 luma weights. Images declaring more than
// MaxPixels pixels are rejected with ErrTooLarge before decoding.
func Decode(b []byte) (*Raster, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	// Check the declared size before the decoder allocates for it.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("could not decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("decoded %s image has no pixels", format)
	}
	if g, ok := img.(*image.Gray); ok {
		return FromGray(g), nil
	}
	g := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(g, g.Bounds(), img, bounds.Min, draw.Src)
	return FromGray(g), nil
}
