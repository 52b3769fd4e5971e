/*
DESCRIPTION
  config.go provides the matching pipeline configuration and its
  validation.

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

package match

import (
	"math"

	"github.com/ausocean/photoid/sift/features"
	"github.com/ausocean/photoid/sift/knn"
	"github.com/ausocean/photoid/sift/ransac"
	"github.com/ausocean/photoid/sift/raster"
)

// Config holds the parameters of a single match.
type Config struct {
	NFeatures          int     // Keypoints retained per image, 0 for all.
	RatioThreshold     float64 // Ratio test threshold in (0, 1].
	InlierThreshold    float64 // RANSAC reprojection threshold in pixels.
	MaxIterations      int     // RANSAC iteration bound.
	Confidence         float64 // RANSAC confidence in (0, 1).
	MaxLongEdge        int     // Longer image side after normalization.
	RandomSeed         *uint64 // RANSAC seed, nil to seed from the clock.
	MinCorrespondences int     // Fewer candidates than this are not verified.
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		NFeatures:          features.DefaultFeatures,
		RatioThreshold:     knn.DefaultRatio,
		InlierThreshold:    ransac.DefaultThreshold,
		MaxIterations:      ransac.DefaultMaxIterations,
		Confidence:         ransac.DefaultConfidence,
		MaxLongEdge:        raster.DefaultMaxLongEdge,
		MinCorrespondences: ransac.DefaultMinCorrespondences,
	}
}

// Validate returns a *ConfigError for the first field outside its domain.
func (c Config) Validate() error {
	switch {
	case c.NFeatures < 0:
		return &ConfigError{"NFeatures", c.NFeatures, "must not be negative"}
	case !(c.RatioThreshold > 0 && c.RatioThreshold <= 1):
		return &ConfigError{"RatioThreshold", c.RatioThreshold, "must be in (0, 1]"}
	case !(c.InlierThreshold > 0) || math.IsInf(c.InlierThreshold, 1):
		return &ConfigError{"InlierThreshold", c.InlierThreshold, "must be positive and finite"}
	case c.MaxIterations <= 0:
		return &ConfigError{"MaxIterations", c.MaxIterations, "must be positive"}
	case !(c.Confidence > 0 && c.Confidence < 1):
		return &ConfigError{"Confidence", c.Confidence, "must be in (0, 1)"}
	case c.MaxLongEdge <= 0:
		return &ConfigError{"MaxLongEdge", c.MaxLongEdge, "must be positive"}
	case c.MinCorrespondences < 4:
		return &ConfigError{"MinCorrespondences", c.MinCorrespondences, "must be at least 4"}
	}
	return nil
}

// params returns the RANSAC parameters of c.
func (c Config) params() ransac.Params {
	return ransac.Params{
		Threshold:          c.InlierThreshold,
		MaxIterations:      c.MaxIterations,
		Confidence:         c.Confidence,
		MinCorrespondences: c.MinCorrespondences,
	}
}
