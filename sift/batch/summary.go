/*
DESCRIPTION
  summary.go provides summary statistics and plots of pair scores.

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

package batch

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ausocean/photoid/sift/ledger"
)

// histBins is the number of inlier ratio histogram bins.
const histBins = 20

// Summary describes the distribution of inlier ratios over pairs.
type Summary struct {
	Pairs         int
	Mean, StdDev  float64
	P50, P90, P99 float64
	Top           []ledger.Pair // Highest scoring pairs first.
}

// Summarize returns the summary of pairs, keeping the top best pairs.
func Summarize(pairs []ledger.Pair, top int) Summary {
	s := Summary{Pairs: len(pairs)}
	if len(pairs) == 0 {
		return s
	}

	ratios := make([]float64, len(pairs))
	for i, p := range pairs {
		ratios[i] = p.InlierRatio
	}
	sort.Float64s(ratios)
	s.Mean = stat.Mean(ratios, nil)
	if len(ratios) > 1 {
		s.StdDev = stat.StdDev(ratios, nil)
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, ratios, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, ratios, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, ratios, nil)

	best := make([]ledger.Pair, len(pairs))
	copy(best, pairs)
	sort.SliceStable(best, func(i, j int) bool { return best[i].InlierRatio > best[j].InlierRatio })
	if len(best) > max(0, top) {
		best = best[:max(0, top)]
	}
	s.Top = best
	return s
}

// Write writes a plain text report of s to w.
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "pairs %d\nmean %.4f\nstddev %.4f\np50 %.4f\np90 %.4f\np99 %.4f\n",
		s.Pairs, s.Mean, s.StdDev, s.P50, s.P90, s.P99)
	if err != nil {
		return err
	}
	for i, p := range s.Top {
		_, err = fmt.Fprintf(w, "%d %s %s %d/%d %.4f\n", i+1, p.A, p.B, p.Inliers, p.Candidates, p.InlierRatio)
		if err != nil {
			return err
		}
	}
	return nil
}

// Histogram saves a histogram of the inlier ratios of pairs as a PNG
// at path.
func Histogram(pairs []ledger.Pair, path string) error {
	if len(pairs) == 0 {
		return fmt.Errorf("no pairs to plot")
	}
	vals := make(plotter.Values, len(pairs))
	for i, p := range pairs {
		vals[i] = p.InlierRatio
	}
	return plotToFile(path, "Inlier ratio", "inlier ratio", "pairs", func(p *plot.Plot) error {
		h, err := plotter.NewHist(vals, histBins)
		if err != nil {
			return fmt.Errorf("could not create histogram: %w", err)
		}
		p.Add(h)
		return nil
	})
}

// plotToFile creates a plot with a specified title and x&y titles using the
// provided draw function, and then saves it to path.
func plotToFile(path, title, xTitle, yTitle string, draw func(*plot.Plot) error) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xTitle
	p.Y.Label.Text = yTitle
	err := draw(p)
	if err != nil {
		return fmt.Errorf("could not draw plot contents: %w", err)
	}
	if err := p.Save(15*vg.Centimeter, 15*vg.Centimeter, path); err != nil {
		return fmt.Errorf("could not save plot: %w", err)
	}
	return nil
}
