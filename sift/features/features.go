/*
DESCRIPTION
  features.go provides a scale and rotation invariant keypoint detector
  and 128 dimension gradient histogram descriptor built on a
  difference-of-Gaussian scale space.

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

// Package features detects keypoints in a normalized raster and computes
// a descriptor for each of them.
package features

import (
	"errors"
	"sort"

	"github.com/ausocean/photoid/sift/raster"
)

// Defaults.
const (
	DefaultFeatures          = 4000 // Keypoints retained per image.
	DefaultLayers            = 3    // Scale layers per octave.
	DefaultSigma             = 1.6  // Blur of the first layer of each octave.
	DefaultContrastThreshold = 0.04 // Minimum DoG response, scaled by layers.
	DefaultEdgeThreshold     = 10   // Maximum ratio of principal curvatures.

	initSigma = 0.5 // Assumed blur of the input image.
	imgBorder = 5   // Keypoints are not detected this close to an edge.
)

// DescriptorSize is the length of each descriptor.
const DescriptorSize = descWidth * descWidth * descBins

// ErrNoImage is returned when asked to extract from an empty raster.
var ErrNoImage = errors.New("no image to extract features from")

// Keypoint is a detected feature location in image coordinates. Octave
// and Layer identify the scale space image it was found in.
type Keypoint struct {
	X, Y     float64
	Size     float64 // Diameter of the meaningful neighbourhood.
	Angle    float64 // Dominant orientation in degrees, [0, 360).
	Response float64 // Absolute interpolated DoG contrast.
	Octave   int
	Layer    int
}

// Set is a list of keypoints and their descriptors, index aligned.
type Set struct {
	Keypoints   []Keypoint
	Descriptors [][]float32
}

// Len returns the number of keypoints in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Keypoints)
}

// Extractor detects and describes keypoints. The zero value is not
// usable; use NewExtractor. An Extractor is not modified by Extract and
// may be shared between goroutines.
type Extractor struct {
	Layers            int
	Sigma             float64
	ContrastThreshold float64
	EdgeThreshold     float64
}

// NewExtractor returns an Extractor with the default parameters.
func NewExtractor() *Extractor {
	return &Extractor{
		Layers:            DefaultLayers,
		Sigma:             DefaultSigma,
		ContrastThreshold: DefaultContrastThreshold,
		EdgeThreshold:     DefaultEdgeThreshold,
	}
}

// Extract detects keypoints in r, keeps the nFeatures with the strongest
// response and describes them. An nFeatures of zero keeps every keypoint.
func (e *Extractor) Extract(r *raster.Raster, nFeatures int) (*Set, error) {
	if r == nil || r.W == 0 || r.H == 0 {
		return nil, ErrNoImage
	}
	pyr := e.buildPyramid(r)
	kps := retainBest(dedupe(e.detect(pyr)), nFeatures)

	set := &Set{Keypoints: kps, Descriptors: make([][]float32, len(kps))}
	for i, kp := range kps {
		set.Descriptors[i] = describe(pyr.gauss[kp.Octave][kp.Layer], kp)
	}
	return set, nil
}

// dedupe removes keypoints that share location, size and angle.
func dedupe(kps []Keypoint) []Keypoint {
	if len(kps) < 2 {
		return kps
	}
	sort.SliceStable(kps, func(i, j int) bool {
		a, b := kps[i], kps[j]
		switch {
		case a.X != b.X:
			return a.X < b.X
		case a.Y != b.Y:
			return a.Y < b.Y
		case a.Size != b.Size:
			return a.Size > b.Size
		case a.Angle != b.Angle:
			return a.Angle < b.Angle
		}
		return false
	})
	out := kps[:1]
	for _, kp := range kps[1:] {
		last := out[len(out)-1]
		if kp.X == last.X && kp.Y == last.Y && kp.Size == last.Size && kp.Angle == last.Angle {
			continue
		}
		out = append(out, kp)
	}
	return out
}

// retainBest orders keypoints by descending response and keeps the first
// n of them. Equal responses keep their existing relative order.
func retainBest(kps []Keypoint, n int) []Keypoint {
	sort.SliceStable(kps, func(i, j int) bool { return kps[i].Response > kps[j].Response })
	if n > 0 && len(kps) > n {
		kps = kps[:n]
	}
	return kps
}
