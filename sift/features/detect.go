/*
DESCRIPTION
  detect.go finds scale space extrema, refines them to sub-pixel accuracy
  and assigns each surviving keypoint one or more dominant orientations.

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

import "math"

const (
	maxInterpSteps = 5    // Sub-pixel refinement iterations.
	oriBins        = 36   // Orientation histogram bins.
	oriSigFactor   = 1.5  // Orientation window sigma relative to scale.
	oriRadius      = 4.5  // Orientation window radius relative to scale (3 * oriSigFactor).
	oriPeakRatio   = 0.8  // Secondary peaks above this fraction of the maximum become keypoints.
	angleEps       = 1e-5 // Tolerance for wrapping 360 degrees to 0.

	// DoG samples are in 0-255; derivatives are taken in 0-1.
	imgScale         = 1.0 / 255
	derivScale       = imgScale * 0.5
	secondDerivScale = imgScale
	crossDerivScale  = imgScale * 0.25
)

// detect returns the oriented keypoints found in pyr.
func (e *Extractor) detect(pyr *pyramid) []Keypoint {
	threshold := math.Floor(0.5 * e.ContrastThreshold / float64(e.Layers) * 255)

	var kps []Keypoint
	for o, dogs := range pyr.dog {
		w, h := dogs[0].w, dogs[0].h
		for layer := 1; layer <= e.Layers; layer++ {
			prev, cur, next := dogs[layer-1], dogs[layer], dogs[layer+1]
			for r := imgBorder; r < h-imgBorder; r++ {
				for c := imgBorder; c < w-imgBorder; c++ {
					val := cur.at(c, r)
					if math.Abs(val) <= threshold || !isExtremum(prev, cur, next, c, r, val) {
						continue
					}
					kp, ok := e.localize(dogs, o, layer, r, c)
					if !ok {
						continue
					}
					kps = append(kps, e.orient(pyr.gauss[kp.Octave][kp.Layer], kp)...)
				}
			}
		}
	}
	return kps
}

// isExtremum reports whether val, at (c, r) in cur, is at least as large
// (positive val) or at least as small (negative val) as its 26
// neighbours in cur and the adjacent DoG images.
func isExtremum(prev, cur, next *plane, c, r int, val float64) bool {
	for _, img := range [3]*plane{prev, cur, next} {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if img == cur && dx == 0 && dy == 0 {
					continue
				}
				v := img.at(c+dx, r+dy)
				if (val > 0 && v > val) || (val < 0 && v < val) {
					return false
				}
			}
		}
	}
	return true
}

// derivatives returns the gradient and Hessian of the DoG function at
// (c, r) in dogs[layer], with respect to x, y and scale.
func derivatives(dogs []*plane, layer, r, c int) (g [3]float64, hs [3][3]float64) {
	img, prev, next := dogs[layer], dogs[layer-1], dogs[layer+1]
	v2 := img.at(c, r) * 2

	g[0] = (img.at(c+1, r) - img.at(c-1, r)) * derivScale
	g[1] = (img.at(c, r+1) - img.at(c, r-1)) * derivScale
	g[2] = (next.at(c, r) - prev.at(c, r)) * derivScale

	dxx := (img.at(c+1, r) + img.at(c-1, r) - v2) * secondDerivScale
	dyy := (img.at(c, r+1) + img.at(c, r-1) - v2) * secondDerivScale
	dss := (next.at(c, r) + prev.at(c, r) - v2) * secondDerivScale
	dxy := (img.at(c+1, r+1) - img.at(c-1, r+1) - img.at(c+1, r-1) + img.at(c-1, r-1)) * crossDerivScale
	dxs := (next.at(c+1, r) - next.at(c-1, r) - prev.at(c+1, r) + prev.at(c-1, r)) * crossDerivScale
	dys := (next.at(c, r+1) - next.at(c, r-1) - prev.at(c, r+1) + prev.at(c, r-1)) * crossDerivScale

	hs = [3][3]float64{
		{dxx, dxy, dxs},
		{dxy, dyy, dys},
		{dxs, dys, dss},
	}
	return g, hs
}

// solve3 solves a·x = b by Cramer's rule.
func solve3(a [3][3]float64, b [3]float64) ([3]float64, bool) {
	det := a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
	if math.Abs(det) < 1e-300 {
		return [3]float64{}, false
	}
	var x [3]float64
	for i := range x {
		m := a
		for j := 0; j < 3; j++ {
			m[j][i] = b[j]
		}
		x[i] = (m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
			m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
			m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])) / det
	}
	return x, true
}

// localize refines an extremum by fitting a quadratic to the DoG function
// and rejects it if it is unstable, low contrast or lies on an edge.
func (e *Extractor) localize(dogs []*plane, o, layer, r, c int) (Keypoint, bool) {
	w, h := dogs[0].w, dogs[0].h
	var xc, xr, xi float64

	i := 0
	for ; i < maxInterpSteps; i++ {
		g, hs := derivatives(dogs, layer, r, c)
		x, ok := solve3(hs, g)
		if !ok {
			return Keypoint{}, false
		}
		xc, xr, xi = -x[0], -x[1], -x[2]
		if math.Abs(xc) < 0.5 && math.Abs(xr) < 0.5 && math.Abs(xi) < 0.5 {
			break
		}
		const limit = float64(math.MaxInt32 / 3)
		if math.Abs(xc) > limit || math.Abs(xr) > limit || math.Abs(xi) > limit {
			return Keypoint{}, false
		}

		c += int(math.Round(xc))
		r += int(math.Round(xr))
		layer += int(math.Round(xi))
		if layer < 1 || layer > e.Layers || c < imgBorder || c >= w-imgBorder || r < imgBorder || r >= h-imgBorder {
			return Keypoint{}, false
		}
	}
	if i >= maxInterpSteps {
		return Keypoint{}, false
	}

	g, hs := derivatives(dogs, layer, r, c)
	t := g[0]*xc + g[1]*xr + g[2]*xi
	contr := dogs[layer].at(c, r)*imgScale + t*0.5
	if math.Abs(contr)*float64(e.Layers) < e.ContrastThreshold {
		return Keypoint{}, false
	}

	// Principal curvature ratio test on the 2D spatial Hessian.
	tr := hs[0][0] + hs[1][1]
	det := hs[0][0]*hs[1][1] - hs[0][1]*hs[0][1]
	if det <= 0 || tr*tr*e.EdgeThreshold >= (e.EdgeThreshold+1)*(e.EdgeThreshold+1)*det {
		return Keypoint{}, false
	}

	octScale := float64(int(1) << o)
	return Keypoint{
		X:        (float64(c) + xc) * octScale,
		Y:        (float64(r) + xr) * octScale,
		Size:     e.Sigma * math.Pow(2, (float64(layer)+xi)/float64(e.Layers)) * octScale * 2,
		Response: math.Abs(contr),
		Octave:   o,
		Layer:    layer,
	}, true
}

// orient returns a copy of kp for each dominant gradient orientation in
// its neighbourhood of img.
func (e *Extractor) orient(img *plane, kp Keypoint) []Keypoint {
	octScale := float64(int(1) << kp.Octave)
	scl := kp.Size * 0.5 / octScale
	px := int(math.Round(kp.X / octScale))
	py := int(math.Round(kp.Y / octScale))
	hist := orientationHist(img, px, py, int(math.Round(oriRadius*scl)), oriSigFactor*scl)

	var peak float64
	for _, v := range hist {
		peak = math.Max(peak, v)
	}
	thr := peak * oriPeakRatio

	var out []Keypoint
	for j := 0; j < oriBins; j++ {
		l := (j + oriBins - 1) % oriBins
		r := (j + 1) % oriBins
		if hist[j] <= hist[l] || hist[j] <= hist[r] || hist[j] < thr {
			continue
		}
		bin := float64(j) + 0.5*(hist[l]-hist[r])/(hist[l]-2*hist[j]+hist[r])
		switch {
		case bin < 0:
			bin += oriBins
		case bin >= oriBins:
			bin -= oriBins
		}
		k := kp
		k.Angle = 360 - 360/float64(oriBins)*bin
		if math.Abs(k.Angle-360) < angleEps {
			k.Angle = 0
		}
		out = append(out, k)
	}
	return out
}

// orientationHist returns a smoothed histogram of gradient orientations
// around (px, py), weighted by magnitude and a Gaussian window.
func orientationHist(img *plane, px, py, radius int, sigma float64) []float64 {
	raw := make([]float64, oriBins)
	expf := -1 / (2 * sigma * sigma)
	for i := -radius; i <= radius; i++ {
		y := py + i
		if y <= 0 || y >= img.h-1 {
			continue
		}
		for j := -radius; j <= radius; j++ {
			x := px + j
			if x <= 0 || x >= img.w-1 {
				continue
			}
			dx := img.at(x+1, y) - img.at(x-1, y)
			dy := img.at(x, y-1) - img.at(x, y+1)
			wgt := math.Exp(float64(i*i+j*j) * expf)
			bin := int(math.Round(oriBins / 360.0 * atan2Deg(dy, dx)))
			if bin >= oriBins {
				bin -= oriBins
			}
			if bin < 0 {
				bin += oriBins
			}
			raw[bin] += wgt * math.Hypot(dx, dy)
		}
	}

	hist := make([]float64, oriBins)
	for i := range hist {
		at := func(k int) float64 { return raw[(i+k+oriBins)%oriBins] }
		hist[i] = (at(-2)+at(2))*(1.0/16) + (at(-1)+at(1))*(4.0/16) + at(0)*(6.0/16)
	}
	return hist
}

// atan2Deg returns atan2(y, x) in degrees in [0, 360).
func atan2Deg(y, x float64) float64 {
	a := math.Atan2(y, x) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}
