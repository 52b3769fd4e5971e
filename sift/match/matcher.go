/*
DESCRIPTION
  matcher.go provides the matching pipeline, which decides whether two
  photographs show the same subject by matching local features and
  verifying that the matches agree on a single planar homography.

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

// Package match scores a pair of images by the number of feature matches
// consistent with a homography between them.
package match

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ausocean/utils/logging"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ausocean/photoid/sift/features"
	"github.com/ausocean/photoid/sift/knn"
	"github.com/ausocean/photoid/sift/ransac"
	"github.com/ausocean/photoid/sift/raster"
)

// seedStream is the PCG stream used for RANSAC sampling.
const seedStream = 0x9e3779b97f4a7c15

// Normalizer decodes image bytes into a bounded grayscale raster.
type Normalizer interface {
	Normalize(b []byte, maxLongEdge int) (*raster.Raster, error)
}

// Extractor detects and describes up to nFeatures keypoints.
type Extractor interface {
	Extract(r *raster.Raster, nFeatures int) (*features.Set, error)
}

// Verifier fits a homography to correspondences, drawing samples from rng.
type Verifier interface {
	Verify(corrs []ransac.Correspondence, p ransac.Params, rng *rand.Rand) (*ransac.Model, error)
}

// Matcher runs the pipeline. It holds no per-match state and may be used
// from multiple goroutines as long as its components may.
type Matcher struct {
	log  logging.Logger
	norm Normalizer
	ext  Extractor
	ver  Verifier
}

// NewMatcher returns a Matcher using the pure Go components unless
// replaced by options.
func NewMatcher(log logging.Logger, opts ...Option) (*Matcher, error) {
	m := &Matcher{
		log:  log,
		norm: raster.Normalizer{},
		ext:  features.NewExtractor(),
		ver:  ransac.Estimator{},
	}
	for i, opt := range opts {
		err := opt(m)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	return m, nil
}

// Match scores image a against image b. Image a is decoded first and a
// failure there is returned without decoding b. Finding no keypoints or
// too few candidates is not an error; the result then has no inliers.
// Match returns early with the context's error if ctx is done between
// stages.
func (m *Matcher) Match(ctx context.Context, a, b []byte, cfg Config) (*Result, error) {
	start := time.Now()
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	ra, err := m.norm.Normalize(a, cfg.MaxLongEdge)
	if err != nil {
		return nil, &DecodeError{Side: SideA, Err: err}
	}
	rb, err := m.norm.Normalize(b, cfg.MaxLongEdge)
	if err != nil {
		return nil, &DecodeError{Side: SideB, Err: err}
	}
	m.log.Debug("normalized images", "a", fmt.Sprintf("%dx%d", ra.W, ra.H), "b", fmt.Sprintf("%dx%d", rb.W, rb.H))

	var sa, sb *features.Set
	g, gctx := errgroup.WithContext(ctx)
	extract := func(r *raster.Raster, dst **features.Set, side Side) func() error {
		return func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}
			s, err := m.ext.Extract(r, cfg.NFeatures)
			if err != nil {
				return fmt.Errorf("could not extract features from image %s: %w", side, err)
			}
			*dst = s
			return nil
		}
	}
	g.Go(extract(ra, &sa, SideA))
	g.Go(extract(rb, &sb, SideB))
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	m.log.Debug("extracted features", "a", sa.Len(), "b", sb.Len())

	err = ctx.Err()
	if err != nil {
		return nil, err
	}
	cands := knn.Match(sa.Descriptors, sb.Descriptors, cfg.RatioThreshold)
	m.log.Debug("matched descriptors", "candidates", len(cands))

	err = ctx.Err()
	if err != nil {
		return nil, err
	}
	corrs := make([]ransac.Correspondence, len(cands))
	for i, c := range cands {
		ka, kb := sa.Keypoints[c.A], sb.Keypoints[c.B]
		corrs[i] = ransac.Correspondence{A: r2.Vec{X: ka.X, Y: ka.Y}, B: r2.Vec{X: kb.X, Y: kb.Y}}
	}

	seed := uint64(time.Now().UnixNano())
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}
	model, err := m.ver.Verify(corrs, cfg.params(), rand.New(rand.NewPCG(seed, seedStream)))
	if err != nil {
		return nil, fmt.Errorf("could not verify correspondences: %w", err)
	}

	res := Score(sa.Len(), sb.Len(), len(cands), model.Count, time.Since(start))
	res.Seed = seed
	if model.Fitted {
		h := model.H
		res.Homography = &h
	}
	m.log.Debug("verified correspondences", "inliers", res.Inliers, "iterations", model.Iterations, "ratio", res.InlierRatio)
	return &res, nil
}
