/*
DESCRIPTION
  homography.go provides a planar homography type and its estimation
  from point correspondences by the normalised direct linear transform.

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

package ransac

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Homography is a row-major 3x3 projective transform, scaled so that the
// last element is 1 where possible.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through h. It returns false if p maps to infinity.
func (h Homography) Apply(p r2.Vec) (r2.Vec, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return r2.Vec{}, false
	}
	return r2.Vec{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Mul returns the product h·g, the transform applying g then h.
func (h Homography) Mul(g Homography) Homography {
	var m Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				m[i*3+j] += h[i*3+k] * g[k*3+j]
			}
		}
	}
	return m
}

// sqErr returns the squared distance between the image of c.A under h
// and c.B.
func (h Homography) sqErr(c Correspondence) float64 {
	q, ok := h.Apply(c.A)
	if !ok {
		return math.Inf(1)
	}
	return r2.Norm2(r2.Sub(q, c.B))
}

func (h Homography) scaled() Homography {
	if h[8] == 0 {
		return h
	}
	s := 1 / h[8]
	for i := range h {
		h[i] *= s
	}
	return h
}

// errTooFew is returned when fewer than four point pairs are supplied.
var errTooFew = errors.New("at least four point pairs are needed to fit a homography")

// Fit returns the homography mapping src onto dst. With four pairs the
// fit is exact; with more it minimises algebraic error in the least
// squares sense. Points are normalised to zero mean and unit average
// radius √2 before solving to keep the system well conditioned.
func Fit(src, dst []r2.Vec) (Homography, error) {
	n := len(src)
	if n < 4 || n != len(dst) {
		return Homography{}, errTooFew
	}

	ts, ns := normalize(src)
	td, nd := normalize(dst)

	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := range ns {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	x := mat.NewVecDense(8, nil)
	if n == 4 {
		err := x.SolveVec(a, b)
		if err != nil {
			return Homography{}, fmt.Errorf("could not solve minimal system: %w", err)
		}
	} else {
		qr := new(mat.QR)
		qr.Factorize(a)
		err := qr.SolveVecTo(x, false, b)
		if err != nil {
			return Homography{}, fmt.Errorf("could not solve QR: %w", err)
		}
	}

	var hn Homography
	for i := 0; i < 8; i++ {
		hn[i] = x.AtVec(i)
	}
	hn[8] = 1

	h := td.inverse().Mul(hn).Mul(ts.matrix()).scaled()
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Homography{}, errors.New("degenerate homography")
		}
	}
	return h, nil
}

// similarity is an isotropic scale about a centroid.
type similarity struct {
	s      float64
	cx, cy float64
}

func (t similarity) matrix() Homography {
	return Homography{t.s, 0, -t.s * t.cx, 0, t.s, -t.s * t.cy, 0, 0, 1}
}

func (t similarity) inverse() Homography {
	return Homography{1 / t.s, 0, t.cx, 0, 1 / t.s, t.cy, 0, 0, 1}
}

// normalize returns the similarity taking pts to zero mean with an
// average distance of √2 from the origin, and the transformed points.
func normalize(pts []r2.Vec) (similarity, []r2.Vec) {
	var c r2.Vec
	for _, p := range pts {
		c = r2.Add(c, p)
	}
	c = r2.Scale(1/float64(len(pts)), c)

	var d float64
	for _, p := range pts {
		d += r2.Norm(r2.Sub(p, c))
	}
	d /= float64(len(pts))

	t := similarity{s: 1, cx: c.X, cy: c.Y}
	if d > 0 {
		t.s = math.Sqrt2 / d
	}
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[i] = r2.Scale(t.s, r2.Sub(p, c))
	}
	return t, out
}
