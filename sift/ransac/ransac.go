/*
DESCRIPTION
  ransac.go provides robust homography estimation by random sample
  consensus, separating geometrically consistent correspondences from
  spurious ones.

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

// Package ransac fits planar homographies to noisy point correspondences.
package ransac

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	DefaultThreshold          = 3.0   // Maximum allowed reprojection error to treat a point pair as an inlier.
	DefaultMaxIterations      = 2000  // The maximum number of RANSAC iterations.
	DefaultConfidence         = 0.995 // Confidence level, between 0 and 1.
	DefaultMinCorrespondences = 6     // Fewer correspondences than this are not verified.

	modelPoints       = 4    // Correspondences in a minimal sample.
	maxSampleAttempts = 1000 // Attempts at drawing a non-degenerate sample per iteration.
	flt32Epsilon      = 1.1920929e-07
	dblMin            = 0x1p-1022
)

// Errors returned by Verify.
var (
	ErrNoRand = errors.New("no random source")
	ErrParams = errors.New("invalid RANSAC parameters")
)

// Correspondence is a point in image A paired with a point in image B.
type Correspondence struct {
	A, B r2.Vec
}

// Params holds the estimation parameters.
type Params struct {
	Threshold          float64 // Inlier reprojection distance in pixels.
	MaxIterations      int
	Confidence         float64
	MinCorrespondences int
}

// DefaultParams returns the default estimation parameters.
func DefaultParams() Params {
	return Params{
		Threshold:          DefaultThreshold,
		MaxIterations:      DefaultMaxIterations,
		Confidence:         DefaultConfidence,
		MinCorrespondences: DefaultMinCorrespondences,
	}
}

func (p Params) validate() error {
	switch {
	case !(p.Threshold > 0):
		return fmt.Errorf("%w: threshold %v must be positive", ErrParams, p.Threshold)
	case p.MaxIterations <= 0:
		return fmt.Errorf("%w: max iterations %d must be positive", ErrParams, p.MaxIterations)
	case !(p.Confidence > 0 && p.Confidence < 1):
		return fmt.Errorf("%w: confidence %v must be in (0, 1)", ErrParams, p.Confidence)
	case p.MinCorrespondences < modelPoints:
		return fmt.Errorf("%w: min correspondences %d must be at least %d", ErrParams, p.MinCorrespondences, modelPoints)
	}
	return nil
}

// Model is the outcome of an estimation. Inliers is aligned with the
// input correspondences. Fitted is false when no model was found, in
// which case H is the zero value and Count is 0.
type Model struct {
	H          Homography
	Inliers    []bool
	Count      int
	Iterations int
	Fitted     bool
}

// Estimator is the pure Go homography verifier.
type Estimator struct {
	// SkipRefine disables the least squares refit of the best model on
	// its inliers.
	SkipRefine bool
}

// Estimate runs a default Estimator.
func Estimate(corrs []Correspondence, p Params, rng *rand.Rand) (*Model, error) {
	return Estimator{}.Verify(corrs, p, rng)
}

// Verify fits a homography to corrs by random sample consensus, drawing
// samples from rng. Fewer than p.MinCorrespondences correspondences give
// an unfitted model without consuming rng. The model with the most
// inliers wins, the first found on ties. The iteration bound adapts to
// the best inlier ratio so that an all-inlier sample has been drawn with
// probability p.Confidence.
func (e Estimator) Verify(corrs []Correspondence, p Params, rng *rand.Rand) (*Model, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, ErrNoRand
	}

	n := len(corrs)
	m := &Model{Inliers: make([]bool, n)}
	if n < p.MinCorrespondences {
		return m, nil
	}

	thr2 := p.Threshold * p.Threshold
	mask := make([]bool, n)
	var (
		idx      [modelPoints]int
		src, dst [modelPoints]r2.Vec
	)
	niters := p.MaxIterations
	for iter := 0; iter < niters; iter++ {
		if !sample(rng, corrs, &idx) {
			break
		}
		m.Iterations++
		for k, i := range idx {
			src[k], dst[k] = corrs[i].A, corrs[i].B
		}
		h, err := Fit(src[:], dst[:])
		if err != nil {
			continue
		}

		count := 0
		for i, c := range corrs {
			mask[i] = h.sqErr(c) <= thr2
			if mask[i] {
				count++
			}
		}
		if count > m.Count {
			m.Count = count
			m.H = h
			m.Fitted = true
			copy(m.Inliers, mask)
			niters = UpdateNumIters(p.Confidence, float64(n-count)/float64(n), modelPoints, niters)
		}
	}

	if !e.SkipRefine {
		Refine(corrs, m)
	}
	return m, nil
}

// Refine refits m.H by least squares to every correspondence flagged in
// m.Inliers. The inlier flags are left as they are. m is unchanged if it
// has too few inliers or the refit is degenerate.
func Refine(corrs []Correspondence, m *Model) {
	if !m.Fitted || m.Count < modelPoints {
		return
	}
	in, out := make([]r2.Vec, 0, m.Count), make([]r2.Vec, 0, m.Count)
	for i, ok := range m.Inliers {
		if ok {
			in = append(in, corrs[i].A)
			out = append(out, corrs[i].B)
		}
	}
	if h, err := Fit(in, out); err == nil {
		m.H = h
	}
}

// sample draws modelPoints distinct indices into idx such that no three
// of the chosen points are collinear in either image. It reports false if
// no such sample was found within maxSampleAttempts draws.
func sample(rng *rand.Rand, corrs []Correspondence, idx *[modelPoints]int) bool {
	n := len(corrs)
	var a, b [modelPoints]r2.Vec
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		for i := range idx {
		draw:
			for {
				idx[i] = rng.IntN(n)
				for j := 0; j < i; j++ {
					if idx[j] == idx[i] {
						continue draw
					}
				}
				break
			}
			a[i], b[i] = corrs[idx[i]].A, corrs[idx[i]].B
		}
		if !collinear(a[:]) && !collinear(b[:]) {
			return true
		}
	}
	return false
}

// collinear reports whether any three of pts lie on a line, to within
// single precision.
func collinear(pts []r2.Vec) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			d1 := r2.Sub(pts[j], pts[i])
			for k := j + 1; k < len(pts); k++ {
				d2 := r2.Sub(pts[k], pts[i])
				tol := flt32Epsilon * (math.Abs(d1.X) + math.Abs(d1.Y) + math.Abs(d2.X) + math.Abs(d2.Y))
				if math.Abs(r2.Cross(d2, d1)) <= tol {
					return true
				}
			}
		}
	}
	return false
}

// UpdateNumIters returns the number of iterations needed to draw at
// least one outlier free sample of modelPoints points with probability
// p, given an outlier ratio ep, never exceeding maxIters.
func UpdateNumIters(p, ep float64, modelPoints, maxIters int) int {
	p = math.Max(math.Min(p, 1), 0)
	ep = math.Max(math.Min(ep, 1), 0)

	num := math.Max(1-p, dblMin)
	denom := 1 - math.Pow(1-ep, float64(modelPoints))
	if denom < dblMin {
		return 0
	}
	num = math.Log(num)
	denom = math.Log(denom)
	if denom >= 0 || -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}
