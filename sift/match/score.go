/*
DESCRIPTION
  score.go aggregates the counts of a match into a result.

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
	"time"

	"github.com/ausocean/photoid/sift/ransac"
)

// Result is the outcome of matching two images.
type Result struct {
	KeypointsA  int
	KeypointsB  int
	Candidates  int // Matches surviving the ratio test.
	Inliers     int // Candidates consistent with the homography.
	InlierRatio float64
	Elapsed     time.Duration

	// Homography maps image A onto image B in normalized pixel
	// coordinates. It is nil when no model was fitted.
	Homography *ransac.Homography

	// Seed is the RANSAC seed used, so that a clock seeded match can be
	// replayed.
	Seed uint64
}

// ElapsedMillis returns the elapsed time in whole milliseconds.
func (r *Result) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// Score packages the counts of a match, guarding the ratio against an
// empty candidate set.
func Score(kpA, kpB, candidates, inliers int, elapsed time.Duration) Result {
	return Result{
		KeypointsA:  kpA,
		KeypointsB:  kpB,
		Candidates:  candidates,
		Inliers:     inliers,
		InlierRatio: float64(inliers) / float64(max(1, candidates)),
		Elapsed:     elapsed,
	}
}
