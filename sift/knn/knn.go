/*
DESCRIPTION
  knn.go provides brute force two nearest neighbour descriptor matching
  with Lowe's ratio test.

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

// Package knn matches descriptor sets by Euclidean nearest neighbour.
package knn

import "math"

// DefaultRatio is the default ratio test threshold.
const DefaultRatio = 0.75

// Candidate is an unambiguous nearest neighbour match of descriptor A in
// the first set to descriptor B in the second.
type Candidate struct {
	A, B     int
	Distance float64 // Distance to the nearest neighbour.
	Second   float64 // Distance to the second nearest neighbour.
}

// Match finds the two nearest descriptors in b for every descriptor in a
// and keeps the match when the nearest is closer than ratio times the
// second nearest. Candidates are returned in order of their index in a.
// Equal distances resolve to the lower index in b. A descriptor with no
// second neighbour, as when b holds a single descriptor, is never kept.
// When several descriptors in a claim the same descriptor in b only the
// closest is kept, so no more candidates are returned than either set
// holds descriptors.
func Match(a, b [][]float32, ratio float64) []Candidate {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	var cands []Candidate
	for i, da := range a {
		best, second := math.Inf(1), math.Inf(1)
		bi := -1
		for j, db := range b {
			d := sqDist(da, db)
			switch {
			case d < best:
				second = best
				best = d
				bi = j
			case d < second:
				second = d
			}
		}
		if bi < 0 || math.IsInf(second, 1) {
			continue
		}
		d1, d2 := math.Sqrt(best), math.Sqrt(second)
		if d1 < ratio*d2 {
			cands = append(cands, Candidate{A: i, B: bi, Distance: d1, Second: d2})
		}
	}
	return unique(cands)
}

// unique drops candidates whose b descriptor is claimed by a closer
// candidate, keeping the earlier candidate on equal distance.
func unique(cands []Candidate) []Candidate {
	owner := make(map[int]int, len(cands))
	for i, c := range cands {
		j, ok := owner[c.B]
		if !ok || c.Distance < cands[j].Distance {
			owner[c.B] = i
		}
	}
	if len(owner) == len(cands) {
		return cands
	}
	out := cands[:0]
	for i, c := range cands {
		if owner[c.B] == i {
			out = append(out, c)
		}
	}
	return out
}

// sqDist returns the squared Euclidean distance between a and b, which
// must be of equal length.
func sqDist(a, b []float32) float64 {
	var s float64
	for i, v := range a {
		d := float64(v) - float64(b[i])
		s += d * d
	}
	return s
}
