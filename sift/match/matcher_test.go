/*
DESCRIPTION
  matcher_test.go tests the matching pipeline end to end on synthetic
  scenes.

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
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ausocean/photoid/sift/internal/synth"
	"github.com/ausocean/photoid/sift/raster"
)

const sceneSize = 320

// scene returns a PNG of the sceneSize square window at (x0, y0) of the
// synthetic scene generated from seed.
func scene(seed uint64, x0, y0 float64) []byte {
	s := synth.NewScene(seed, 90, sceneSize+64, sceneSize+64)
	return synth.PNG(s.Render(sceneSize, sceneSize, x0, y0))
}

func seeded(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.RandomSeed = &seed
	return cfg
}

func newMatcher(t *testing.T, opts ...Option) *Matcher {
	t.Helper()
	m, err := NewMatcher((*logging.TestLogger)(t), opts...)
	if err != nil {
		t.Fatalf("could not create matcher: %v", err)
	}
	return m
}

// countingNormalizer counts calls to the default normalizer.
type countingNormalizer struct {
	calls int
}

func (n *countingNormalizer) Normalize(b []byte, maxLongEdge int) (*raster.Raster, error) {
	n.calls++
	return raster.Normalize(b, maxLongEdge)
}

func TestMatchIdentity(t *testing.T) {
	img := scene(1, 0, 0)
	res, err := newMatcher(t).Match(context.Background(), img, img, seeded(1))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if res.KeypointsA == 0 || res.KeypointsA != res.KeypointsB {
		t.Errorf("expected equal non-zero keypoint counts, got %d and %d", res.KeypointsA, res.KeypointsB)
	}
	if res.InlierRatio <= 0.95 {
		t.Errorf("expected identical images to give a ratio above 0.95, got %f (%d/%d)", res.InlierRatio, res.Inliers, res.Candidates)
	}
	if res.Homography == nil {
		t.Fatal("expected a homography")
	}
	p := r2.Vec{X: 100, Y: 200}
	q, ok := res.Homography.Apply(p)
	if !ok || r2.Norm(r2.Sub(p, q)) > 0.5 {
		t.Errorf("expected near identity homography, mapped %v to %v", p, q)
	}
}

func TestMatchTranslated(t *testing.T) {
	const dx, dy = 16, 32
	a := scene(2, 0, 0)
	b := scene(2, dx, dy)
	res, err := newMatcher(t).Match(context.Background(), a, b, seeded(2))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if res.Inliers < 10 || res.InlierRatio <= 0.3 {
		t.Fatalf("expected overlapping crops to match, got %d inliers of %d candidates", res.Inliers, res.Candidates)
	}
	if res.Homography == nil {
		t.Fatal("expected a homography")
	}
	p := r2.Vec{X: 150, Y: 150}
	q, ok := res.Homography.Apply(p)
	want := r2.Vec{X: p.X - dx, Y: p.Y - dy}
	if !ok || r2.Norm(r2.Sub(q, want)) > 3 {
		t.Errorf("homography mapped %v to %v, want near %v", p, q, want)
	}
}

func TestMatchUnrelated(t *testing.T) {
	m := newMatcher(t)
	a := scene(3, 0, 0)
	same, err := m.Match(context.Background(), a, a, seeded(3))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	diff, err := m.Match(context.Background(), a, scene(4, 0, 0), seeded(3))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if diff.InlierRatio >= same.InlierRatio {
		t.Errorf("unrelated images scored %f, not below identical images at %f", diff.InlierRatio, same.InlierRatio)
	}
}

func TestMatchUniform(t *testing.T) {
	blank := synth.PNG(synth.Uniform(200, 150, 90))
	res, err := newMatcher(t).Match(context.Background(), blank, scene(5, 0, 0), seeded(5))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if res.KeypointsA != 0 {
		t.Errorf("expected no keypoints in blank image, got %d", res.KeypointsA)
	}
	if res.Candidates != 0 || res.Inliers != 0 || res.InlierRatio != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.Homography != nil {
		t.Errorf("expected no homography, got %v", res.Homography)
	}
}

func TestMatchDecodeError(t *testing.T) {
	garbage := []byte{0x13, 0x37, 0x00, 0xff, 0x42, 0x10, 0x99, 0x01, 0x02, 0x03}
	img := scene(6, 0, 0)

	tests := []struct {
		a, b  []byte
		side  Side
		calls int
	}{
		{a: garbage, b: img, side: SideA, calls: 1},
		{a: garbage, b: garbage, side: SideA, calls: 1},
		{a: img, b: garbage, side: SideB, calls: 2},
		{a: nil, b: img, side: SideA, calls: 1},
		{a: img, b: synth.HeaderPNG(40000, 40000), side: SideB, calls: 2},
	}

	for i, test := range tests {
		n := &countingNormalizer{}
		m := newMatcher(t, WithNormalizer(n))
		_, err := m.Match(context.Background(), test.a, test.b, seeded(6))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("test %d: expected decode error, got %v", i, err)
			continue
		}
		if de.Side != test.side {
			t.Errorf("test %d: did not get expected side. Want: %s, Got: %s", i, test.side, de.Side)
		}
		if n.calls != test.calls {
			t.Errorf("test %d: did not get expected normalize calls. Want: %d, Got: %d", i, test.calls, n.calls)
		}
	}
}

func TestMatchConfigError(t *testing.T) {
	img := scene(7, 0, 0)
	tests := []struct {
		mod   func(*Config)
		field string
	}{
		{mod: func(c *Config) { c.NFeatures = -1 }, field: "NFeatures"},
		{mod: func(c *Config) { c.RatioThreshold = 0 }, field: "RatioThreshold"},
		{mod: func(c *Config) { c.RatioThreshold = 1.5 }, field: "RatioThreshold"},
		{mod: func(c *Config) { c.InlierThreshold = -3 }, field: "InlierThreshold"},
		{mod: func(c *Config) { c.InlierThreshold = math.Inf(1) }, field: "InlierThreshold"},
		{mod: func(c *Config) { c.MaxIterations = 0 }, field: "MaxIterations"},
		{mod: func(c *Config) { c.Confidence = 1 }, field: "Confidence"},
		{mod: func(c *Config) { c.MaxLongEdge = 0 }, field: "MaxLongEdge"},
		{mod: func(c *Config) { c.MinCorrespondences = 2 }, field: "MinCorrespondences"},
	}

	for i, test := range tests {
		n := &countingNormalizer{}
		cfg := DefaultConfig()
		test.mod(&cfg)
		_, err := newMatcher(t, WithNormalizer(n)).Match(context.Background(), img, img, cfg)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("test %d: expected config error, got %v", i, err)
			continue
		}
		if ce.Field != test.field {
			t.Errorf("test %d: did not get expected field. Want: %s, Got: %s", i, test.field, ce.Field)
		}
		if n.calls != 0 {
			t.Errorf("test %d: images were decoded despite invalid config", i)
		}
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestMatchDeterministic(t *testing.T) {
	m := newMatcher(t)
	a, b := scene(8, 0, 0), scene(8, 8, 24)
	first, err := m.Match(context.Background(), a, b, seeded(42))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	for i := 0; i < 3; i++ {
		res, err := m.Match(context.Background(), a, b, seeded(42))
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		if res.Inliers != first.Inliers || res.InlierRatio != first.InlierRatio || res.Candidates != first.Candidates {
			t.Errorf("run %d differs: got %d/%d, first %d/%d", i, res.Inliers, res.Candidates, first.Inliers, first.Candidates)
		}
		if res.Seed != 42 {
			t.Errorf("did not get expected seed. Want: 42, Got: %d", res.Seed)
		}
	}
}

func TestMatchBounds(t *testing.T) {
	m := newMatcher(t)
	a, b := scene(9, 0, 0), scene(9, 30, 10)
	prev := -1
	for _, ratio := range []float64{1, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4} {
		cfg := seeded(9)
		cfg.RatioThreshold = ratio
		res, err := m.Match(context.Background(), a, b, cfg)
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		if res.Candidates > min(res.KeypointsA, res.KeypointsB) {
			t.Errorf("ratio %f: %d candidates exceed keypoints %d, %d", ratio, res.Candidates, res.KeypointsA, res.KeypointsB)
		}
		if res.Inliers > res.Candidates {
			t.Errorf("ratio %f: %d inliers exceed %d candidates", ratio, res.Inliers, res.Candidates)
		}
		if res.InlierRatio < 0 || res.InlierRatio > 1 {
			t.Errorf("ratio %f: inlier ratio out of range: %f", ratio, res.InlierRatio)
		}
		if prev >= 0 && res.Candidates > prev {
			t.Errorf("ratio %f gave %d candidates, more than %d from a looser ratio", ratio, res.Candidates, prev)
		}
		prev = res.Candidates
	}
}

func TestMatchCancelled(t *testing.T) {
	img := scene(10, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newMatcher(t).Match(ctx, img, img, seeded(10))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("did not get expected error. Want: %v, Got: %v", context.Canceled, err)
	}
}

func TestNewMatcherOptions(t *testing.T) {
	_, err := NewMatcher((*logging.TestLogger)(t), WithExtractor(nil))
	if err == nil {
		t.Error("expected error for nil extractor")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		cands, inliers int
		want           float64
	}{
		{cands: 0, inliers: 0, want: 0},
		{cands: 10, inliers: 5, want: 0.5},
		{cands: 1, inliers: 0, want: 0},
		{cands: 8, inliers: 8, want: 1},
	}
	for i, test := range tests {
		got := Score(100, 90, test.cands, test.inliers, 1500*time.Microsecond)
		if got.InlierRatio != test.want {
			t.Errorf("unexpected result for test %d. Want: %f, Got: %f", i, test.want, got.InlierRatio)
		}
		if got.ElapsedMillis() != 1 {
			t.Errorf("test %d: did not get expected elapsed millis. Want: 1, Got: %d", i, got.ElapsedMillis())
		}
	}
}
