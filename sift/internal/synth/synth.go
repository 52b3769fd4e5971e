/*
DESCRIPTION
  synth.go renders reproducible synthetic scenes of overlapping discs and
  squares for exercising the matching pipeline without image fixtures.

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

// Package synth renders synthetic grayscale test scenes.
package synth

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
)

// Shape kinds.
const (
	Disc = iota
	Square
)

// Shape is a filled disc or axis aligned square.
type Shape struct {
	Kind int
	X, Y float64 // Centre in scene coordinates.
	R    float64 // Radius or half side.
	V    uint8   // Intensity.
}

func (s Shape) contains(x, y float64) bool {
	dx, dy := x-s.X, y-s.Y
	if s.Kind == Square {
		return dx >= -s.R && dx < s.R && dy >= -s.R && dy < s.R
	}
	return dx*dx+dy*dy <= s.R*s.R
}

// Scene is an ordered list of shapes drawn over a flat background.
type Scene struct {
	Background uint8
	Shapes     []Shape
}

// NewScene returns a scene of n random shapes placed within a w×h area,
// generated deterministically from seed.
func NewScene(seed uint64, n int, w, h float64) *Scene {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	s := &Scene{Background: 128}
	for i := 0; i < n; i++ {
		s.Shapes = append(s.Shapes, Shape{
			Kind: rng.IntN(2),
			X:    rng.Float64() * w,
			Y:    rng.Float64() * h,
			R:    3 + rng.Float64()*15,
			V:    uint8(rng.IntN(256)),
		})
	}
	return s
}

// Render rasterises the w×h window of the scene whose top left corner is
// at (x0, y0).
func (s *Scene) Render(w, h int, x0, y0 float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := x0+float64(x)+0.5, y0+float64(y)+0.5
			v := s.Background
			for _, sh := range s.Shapes {
				if sh.contains(px, py) {
					v = sh.V
				}
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// Uniform returns a w×h image of a single intensity.
func Uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// PNG encodes img as PNG, panicking on failure since encoding an
// in-memory image cannot fail.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// HeaderPNG returns a small 8-bit grayscale PNG whose header declares a
// w by h image but whose data holds only a single short row.
func HeaderPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(kind string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		buf.WriteString(kind)
		buf.Write(data)
		binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // Bit depth; colour type, compression, filter and interlace are 0.
	chunk("IHDR", ihdr)

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	zw.Write(make([]byte, 100))
	zw.Close()
	chunk("IDAT", idat.Bytes())
	chunk("IEND", nil)
	return buf.Bytes()
}
