//go:build withcv
// +build withcv

/*
DESCRIPTION
  opencv.go provides OpenCV backed implementations of the matching
  pipeline's normalizer, extractor and verifier.

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

// Package opencv implements the matching pipeline stages with gocv.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"sort"

	"gocv.io/x/gocv"

	"github.com/ausocean/photoid/sift/features"
	"github.com/ausocean/photoid/sift/match"
	"github.com/ausocean/photoid/sift/ransac"
	"github.com/ausocean/photoid/sift/raster"
)

// Options returns the match options selecting every OpenCV stage.
func Options() []match.Option {
	return []match.Option{
		match.WithNormalizer(Normalizer{}),
		match.WithExtractor(Extractor{}),
		match.WithVerifier(Verifier{}),
	}
}

// Normalizer decodes, equalizes and bounds images with OpenCV.
type Normalizer struct{}

// Normalize decodes b as grayscale, equalizes its histogram and area
// downsamples it so its longer side is at most maxLongEdge.
func (Normalizer) Normalize(b []byte, maxLongEdge int) (*raster.Raster, error) {
	if len(b) == 0 {
		return nil, raster.ErrEmpty
	}
	img, err := gocv.IMDecode(b, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("image could not be decoded")
	}

	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(img, &eq)

	out := eq
	if w, h, ok := raster.Bound(eq.Cols(), eq.Rows(), maxLongEdge); ok {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(eq, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		out = resized
	}
	return &raster.Raster{W: out.Cols(), H: out.Rows(), Pix: out.ToBytes()}, nil
}

// Extractor detects and describes keypoints with OpenCV's SIFT.
type Extractor struct{}

// Extract returns up to nFeatures keypoints of r with the strongest
// response, or all of them when nFeatures is zero.
func (Extractor) Extract(r *raster.Raster, nFeatures int) (*features.Set, error) {
	if r == nil || r.W == 0 || r.H == 0 {
		return nil, features.ErrNoImage
	}
	img, err := gocv.NewMatFromBytes(r.H, r.W, gocv.MatTypeCV8U, r.Pix)
	if err != nil {
		return nil, fmt.Errorf("could not create image matrix: %w", err)
	}
	defer img.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	sift := gocv.NewSIFT()
	defer sift.Close()
	kps, desc := sift.DetectAndCompute(img, mask)
	defer desc.Close()

	order := make([]int, len(kps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return kps[order[i]].Response > kps[order[j]].Response })
	if nFeatures > 0 && len(order) > nFeatures {
		order = order[:nFeatures]
	}

	set := &features.Set{
		Keypoints:   make([]features.Keypoint, len(order)),
		Descriptors: make([][]float32, len(order)),
	}
	for i, k := range order {
		kp := kps[k]
		set.Keypoints[i] = features.Keypoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave & 0xff,
			Layer:    (kp.Octave >> 8) & 0xff,
		}
		d := make([]float32, desc.Cols())
		for j := range d {
			d[j] = desc.GetFloatAt(k, j)
		}
		set.Descriptors[i] = d
	}
	return set, nil
}

// Verifier fits homographies with OpenCV's RANSAC. OpenCV draws samples
// from its own generator, so the rng passed to Verify is not used and
// results are only as reproducible as OpenCV makes them.
type Verifier struct{}

// Verify fits a homography to corrs. Model.Iterations is not reported by
// OpenCV and is left at zero.
func (Verifier) Verify(corrs []ransac.Correspondence, p ransac.Params, rng *rand.Rand) (*ransac.Model, error) {
	m := &ransac.Model{Inliers: make([]bool, len(corrs))}
	if len(corrs) < p.MinCorrespondences {
		return m, nil
	}

	src := gocv.NewMatWithSize(len(corrs), 1, gocv.MatTypeCV32FC2)
	defer src.Close()
	dst := gocv.NewMatWithSize(len(corrs), 1, gocv.MatTypeCV32FC2)
	defer dst.Close()
	for i, c := range corrs {
		src.SetFloatAt(i, 0, float32(c.A.X))
		src.SetFloatAt(i, 1, float32(c.A.Y))
		dst.SetFloatAt(i, 0, float32(c.B.X))
		dst.SetFloatAt(i, 1, float32(c.B.Y))
	}

	mask := gocv.NewMat()
	defer mask.Close()
	h := gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC, p.Threshold, &mask, p.MaxIterations, p.Confidence)
	defer h.Close()
	if h.Empty() {
		return m, nil
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.H[i*3+j] = h.GetDoubleAt(i, j)
		}
	}
	for i := range m.Inliers {
		if mask.GetUCharAt(i, 0) != 0 {
			m.Inliers[i] = true
			m.Count++
		}
	}
	m.Fitted = true
	return m, nil
}
