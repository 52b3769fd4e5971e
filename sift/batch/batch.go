/*
DESCRIPTION
  batch.go provides scoring of every pair of images in a directory,
  recording the scores in a ledger.

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

// Package batch scores all pairs of images in a directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/sliceutils"
	"golang.org/x/sync/errgroup"

	"github.com/ausocean/photoid/sift/ledger"
	"github.com/ausocean/photoid/sift/match"
)

// Extensions lists the file extensions treated as images.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// List returns the names of the image files in dir in lexical order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read image directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sliceutils.ContainsString(Extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stats counts the outcomes of a run.
type Stats struct {
	Scored  int
	Skipped int // Already in the ledger.
	Failed  int // Could not be read or decoded.
}

// Runner scores image pairs.
type Runner struct {
	Matcher *match.Matcher
	Ledger  *ledger.Ledger
	Config  match.Config
	Workers int  // Pairs scored concurrently.
	Force   bool // Rescore pairs already in the ledger.

	log logging.Logger
}

// NewRunner returns a Runner scoring with m and recording into l.
func NewRunner(log logging.Logger, m *match.Matcher, l *ledger.Ledger, cfg match.Config, workers int) *Runner {
	return &Runner{Matcher: m, Ledger: l, Config: cfg, Workers: workers, log: log}
}

// Run scores every unordered pair of images in dir. A pair whose image
// cannot be read or decoded is logged and counted as failed without
// stopping the run. Any other error stops the run.
func (r *Runner) Run(ctx context.Context, dir string) (Stats, error) {
	names, err := List(dir)
	if err != nil {
		return Stats{}, err
	}
	r.log.Info("scoring pairs", "images", len(names), "pairs", len(names)*(len(names)-1)/2)

	var scored, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.Workers))
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if !r.Force {
					ok, err := r.Ledger.Has(gctx, a, b)
					if err != nil {
						return err
					}
					if ok {
						skipped.Add(1)
						return nil
					}
				}
				p, err := r.score(gctx, dir, a, b)
				var de *match.DecodeError
				var pe *os.PathError
				switch {
				case errors.As(err, &de), errors.As(err, &pe):
					r.log.Warning("could not score pair", "a", a, "b", b, "error", err)
					failed.Add(1)
					return nil
				case err != nil:
					return err
				}
				err = r.Ledger.Put(gctx, p)
				if err != nil {
					return err
				}
				scored.Add(1)
				return nil
			})
		}
	}
	err = g.Wait()
	st := Stats{Scored: int(scored.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	if err == nil {
		err = ctx.Err()
	}
	r.log.Info("scored pairs", "scored", st.Scored, "skipped", st.Skipped, "failed", st.Failed)
	return st, err
}

// score matches the images a and b of dir.
func (r *Runner) score(ctx context.Context, dir, a, b string) (ledger.Pair, error) {
	ia, err := os.ReadFile(filepath.Join(dir, a))
	if err != nil {
		return ledger.Pair{}, err
	}
	ib, err := os.ReadFile(filepath.Join(dir, b))
	if err != nil {
		return ledger.Pair{}, err
	}
	res, err := r.Matcher.Match(ctx, ia, ib, r.Config)
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("could not match %s with %s: %w", a, b, err)
	}
	r.log.Debug("scored pair", "a", a, "b", b, "inliers", res.Inliers, "ratio", res.InlierRatio)
	return ledger.Pair{
		A:             a,
		B:             b,
		KeypointsA:    res.KeypointsA,
		KeypointsB:    res.KeypointsB,
		Candidates:    res.Candidates,
		Inliers:       res.Inliers,
		InlierRatio:   res.InlierRatio,
		ElapsedMillis: res.ElapsedMillis(),
	}, nil
}
