/*
DESCRIPTION
  descriptor.go computes the 4x4x8 gradient orientation histogram
  descriptor for a keypoint.

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

	"gonum.org/v1/gonum/floats"
)

const (
	descWidth    = 4   // Spatial histogram cells per side.
	descBins     = 8   // Orientation bins per cell.
	descSclFctr  = 3.0 // Cell width relative to keypoint scale.
	descMagThr   = 0.2 // Clip threshold applied to the normalised vector.
	descMinNorm  = 1e-7
	descRowWidth = descWidth + 2 // Histogram rows include a border for interpolation.
	descBinWidth = descBins + 2
)

// describe returns the descriptor of kp computed on img, the Gaussian
// image kp was detected in.
func describe(img *plane, kp Keypoint) []float32 {
	octScale := float64(int(1) << kp.Octave)
	ptx := int(math.Round(kp.X / octScale))
	pty := int(math.Round(kp.Y / octScale))
	scl := kp.Size * 0.5 / octScale

	angle := 360 - kp.Angle
	if math.Abs(angle-360) < angleEps {
		angle = 0
	}
	rad := angle * math.Pi / 180
	histWidth := descSclFctr * scl
	cosT := math.Cos(rad) / histWidth
	sinT := math.Sin(rad) / histWidth
	binsPerDeg := descBins / 360.0
	expScale := -1 / (descWidth * descWidth * 0.5)

	radius := int(math.Round(histWidth * math.Sqrt2 * (descWidth + 1) * 0.5))
	radius = min(radius, int(math.Sqrt(float64(img.w*img.w+img.h*img.h))))

	hist := make([]float64, descRowWidth*descRowWidth*descBinWidth)
	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			cRot := float64(j)*cosT - float64(i)*sinT
			rRot := float64(j)*sinT + float64(i)*cosT
			rbin := rRot + descWidth/2 - 0.5
			cbin := cRot + descWidth/2 - 0.5
			r := pty + i
			c := ptx + j
			if rbin <= -1 || rbin >= descWidth || cbin <= -1 || cbin >= descWidth ||
				r <= 0 || r >= img.h-1 || c <= 0 || c >= img.w-1 {
				continue
			}

			dx := img.at(c+1, r) - img.at(c-1, r)
			dy := img.at(c, r-1) - img.at(c, r+1)
			mag := math.Hypot(dx, dy) * math.Exp((cRot*cRot+rRot*rRot)*expScale)
			obin := (atan2Deg(dy, dx) - angle) * binsPerDeg

			r0 := math.Floor(rbin)
			c0 := math.Floor(cbin)
			o0 := math.Floor(obin)
			rbin -= r0
			cbin -= c0
			obin -= o0
			oi := int(o0)
			if oi < 0 {
				oi += descBins
			}
			if oi >= descBins {
				oi -= descBins
			}

			// Trilinear distribution over the 8 neighbouring bins.
			vR1 := mag * rbin
			vR0 := mag - vR1
			vRC11 := vR1 * cbin
			vRC10 := vR1 - vRC11
			vRC01 := vR0 * cbin
			vRC00 := vR0 - vRC01
			vRCO111 := vRC11 * obin
			vRCO110 := vRC11 - vRCO111
			vRCO101 := vRC10 * obin
			vRCO100 := vRC10 - vRCO101
			vRCO011 := vRC01 * obin
			vRCO010 := vRC01 - vRCO011
			vRCO001 := vRC00 * obin
			vRCO000 := vRC00 - vRCO001

			idx := ((int(r0)+1)*descRowWidth+int(c0)+1)*descBinWidth + oi
			hist[idx] += vRCO000
			hist[idx+1] += vRCO001
			hist[idx+descBinWidth] += vRCO010
			hist[idx+descBinWidth+1] += vRCO011
			hist[idx+descRowWidth*descBinWidth] += vRCO100
			hist[idx+descRowWidth*descBinWidth+1] += vRCO101
			hist[idx+(descRowWidth+1)*descBinWidth] += vRCO110
			hist[idx+(descRowWidth+1)*descBinWidth+1] += vRCO111
		}
	}

	// Fold the circular orientation overflow and drop the border cells.
	d := make([]float64, DescriptorSize)
	for i := 0; i < descWidth; i++ {
		for j := 0; j < descWidth; j++ {
			idx := ((i+1)*descRowWidth + (j + 1)) * descBinWidth
			hist[idx] += hist[idx+descBins]
			hist[idx+1] += hist[idx+descBins+1]
			copy(d[(i*descWidth+j)*descBins:], hist[idx:idx+descBins])
		}
	}

	// Clip large gradients to reduce the influence of illumination
	// changes, then renormalise.
	thr := floats.Norm(d, 2) * descMagThr
	for i, v := range d {
		d[i] = math.Min(v, thr)
	}
	if n := floats.Norm(d, 2); n > descMinNorm {
		floats.Scale(1/n, d)
	}

	out := make([]float32, len(d))
	for i, v := range d {
		out[i] = float32(v)
	}
	return out
}
