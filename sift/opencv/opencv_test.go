//go:build withcv
// +build withcv

/*
DESCRIPTION
  opencv_test.go tests the OpenCV pipeline stages.

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

package opencv

import (
	"context"
	"errors"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/photoid/sift/internal/synth"
	"github.com/ausocean/photoid/sift/match"
)

func TestNormalize(t *testing.T) {
	img := synth.PNG(synth.NewScene(1, 40, 1800, 600).Render(1800, 600, 0, 0))
	r, err := Normalizer{}.Normalize(img, 900)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if r.W != 900 || r.H != 300 || len(r.Pix) != r.W*r.H {
		t.Errorf("did not get expected size. Want: 900x300, Got: %dx%d (%d bytes)", r.W, r.H, len(r.Pix))
	}
}

func TestMatchIdentity(t *testing.T) {
	m, err := match.NewMatcher((*logging.TestLogger)(t), Options()...)
	if err != nil {
		t.Fatalf("could not create matcher: %v", err)
	}
	img := synth.PNG(synth.NewScene(2, 90, 320, 320).Render(320, 320, 0, 0))
	res, err := m.Match(context.Background(), img, img, match.DefaultConfig())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if res.InlierRatio <= 0.95 {
		t.Errorf("expected identical images to give a ratio above 0.95, got %f", res.InlierRatio)
	}
}

func TestMatchDecodeError(t *testing.T) {
	m, err := match.NewMatcher((*logging.TestLogger)(t), Options()...)
	if err != nil {
		t.Fatalf("could not create matcher: %v", err)
	}
	img := synth.PNG(synth.Uniform(64, 64, 10))
	_, err = m.Match(context.Background(), []byte("not an image"), img, match.DefaultConfig())
	var de *match.DecodeError
	if !errors.As(err, &de) || de.Side != match.SideA {
		t.Errorf("expected decode error for side A, got %v", err)
	}
}
