/*
DESCRIPTION
  features_test.go tests keypoint detection and description.

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
	"reflect"
	"testing"

	"github.com/ausocean/photoid/sift/internal/synth"
	"github.com/ausocean/photoid/sift/raster"
)

func sceneRaster(t *testing.T, seed uint64) *raster.Raster {
	t.Helper()
	img := synth.NewScene(seed, 60, 256, 256).Render(256, 256, 0, 0)
	return raster.Equalize(raster.FromGray(img))
}

func TestExtract(t *testing.T) {
	r := sceneRaster(t, 1)
	set, err := NewExtractor().Extract(r, DefaultFeatures)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if set.Len() < 20 {
		t.Fatalf("expected a textured scene to give at least 20 keypoints, got %d", set.Len())
	}
	if len(set.Descriptors) != set.Len() {
		t.Fatalf("descriptor count %d does not match keypoint count %d", len(set.Descriptors), set.Len())
	}

	for i, kp := range set.Keypoints {
		if kp.X < 0 || kp.X >= float64(r.W) || kp.Y < 0 || kp.Y >= float64(r.H) {
			t.Errorf("keypoint %d outside image: (%f, %f)", i, kp.X, kp.Y)
		}
		if kp.Angle < 0 || kp.Angle >= 360 {
			t.Errorf("keypoint %d has angle out of range: %f", i, kp.Angle)
		}
		if kp.Size <= 0 {
			t.Errorf("keypoint %d has non-positive size: %f", i, kp.Size)
		}
		if i > 0 && kp.Response > set.Keypoints[i-1].Response {
			t.Errorf("keypoints not ordered by response at %d", i)
		}

		d := set.Descriptors[i]
		if len(d) != DescriptorSize {
			t.Fatalf("descriptor %d has length %d, want %d", i, len(d), DescriptorSize)
		}
		var n float64
		for _, v := range d {
			if v < 0 {
				t.Errorf("descriptor %d has negative component", i)
			}
			n += float64(v) * float64(v)
		}
		if math.Abs(math.Sqrt(n)-1) > 1e-3 {
			t.Errorf("descriptor %d not unit length: %f", i, math.Sqrt(n))
		}
	}
}

func TestExtractLimit(t *testing.T) {
	r := sceneRaster(t, 2)
	e := NewExtractor()
	all, err := e.Extract(r, 0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if all.Len() < 10 {
		t.Fatalf("expected at least 10 keypoints, got %d", all.Len())
	}

	const n = 10
	some, err := e.Extract(r, n)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if some.Len() != n {
		t.Fatalf("did not get expected keypoint count. Want: %d, Got: %d", n, some.Len())
	}
	if !reflect.DeepEqual(some.Keypoints, all.Keypoints[:n]) {
		t.Errorf("limited extraction did not keep the strongest keypoints")
	}
}

func TestExtractDeterministic(t *testing.T) {
	r := sceneRaster(t, 3)
	e := NewExtractor()
	a, err := e.Extract(r, DefaultFeatures)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	b, err := e.Extract(r, DefaultFeatures)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated extraction gave different results")
	}
}

func TestExtractUniform(t *testing.T) {
	r := raster.FromGray(synth.Uniform(200, 150, 90))
	set, err := NewExtractor().Extract(r, DefaultFeatures)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected no keypoints for uniform image, got %d", set.Len())
	}
}

func TestExtractEmpty(t *testing.T) {
	_, err := NewExtractor().Extract(&raster.Raster{}, DefaultFeatures)
	if err != ErrNoImage {
		t.Errorf("did not get expected error. Want: %v, Got: %v", ErrNoImage, err)
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct {
		i, n int
		want int
	}{
		{i: 0, n: 5, want: 0},
		{i: -1, n: 5, want: 1},
		{i: -2, n: 5, want: 2},
		{i: 5, n: 5, want: 3},
		{i: 6, n: 5, want: 2},
		{i: -7, n: 3, want: 1},
		{i: 4, n: 1, want: 0},
	}
	for i, test := range tests {
		got := reflect101(test.i, test.n)
		if got != test.want {
			t.Errorf("unexpected result for test %d. Want: %d, Got: %d", i, test.want, got)
		}
	}
}

func TestKernel(t *testing.T) {
	for _, sigma := range []float64{0.5, 1.2, 1.6, 3.1} {
		k := kernel(sigma)
		if len(k)%2 != 1 {
			t.Errorf("kernel for sigma %f has even length %d", sigma, len(k))
		}
		var sum float64
		for i, v := range k {
			sum += float64(v)
			if v != k[len(k)-1-i] {
				t.Errorf("kernel for sigma %f not symmetric", sigma)
				break
			}
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("kernel for sigma %f sums to %f", sigma, sum)
		}
	}
}

func TestOctaves(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{w: 900, h: 600, want: 7},
		{w: 256, h: 256, want: 6},
		{w: 32, h: 300, want: 3},
		{w: 4, h: 4, want: 1},
	}
	for i, test := range tests {
		got := octaves(test.w, test.h)
		if got != test.want {
			t.Errorf("unexpected result for test %d. Want: %d, Got: %d", i, test.want, got)
		}
	}
}

func TestDedupeAndRetain(t *testing.T) {
	kps := []Keypoint{
		{X: 1, Y: 1, Size: 2, Angle: 10, Response: 0.1},
		{X: 5, Y: 5, Size: 2, Angle: 10, Response: 0.5},
		{X: 1, Y: 1, Size: 2, Angle: 10, Response: 0.1},
		{X: 1, Y: 1, Size: 2, Angle: 20, Response: 0.3},
	}
	got := retainBest(dedupe(kps), 2)
	want := []Keypoint{
		{X: 5, Y: 5, Size: 2, Angle: 10, Response: 0.5},
		{X: 1, Y: 1, Size: 2, Angle: 20, Response: 0.3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("did not get expected keypoints. Want: %v, Got: %v", want, got)
	}
}

func TestSolve3(t *testing.T) {
	a := [3][3]float64{{2, 1, 0}, {1, 3, 1}, {0, 1, 4}}
	want := [3]float64{1, -2, 3}
	var b [3]float64
	for i := range b {
		for j := range want {
			b[i] += a[i][j] * want[j]
		}
	}
	got, ok := solve3(a, b)
	if !ok {
		t.Fatal("expected system to be solvable")
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("did not get expected solution. Want: %v, Got: %v", want, got)
			break
		}
	}
	if _, ok := solve3([3][3]float64{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}, b); ok {
		t.Error("expected singular system to be rejected")
	}
}
