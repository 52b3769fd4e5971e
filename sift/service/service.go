/*
DESCRIPTION
  service.go provides the HTTP interface to the photo matcher.

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

// Package service serves image pair matching over HTTP.
//
// Endpoints:
//
//	GET  /health      active configuration
//	POST /match/sift  score two images given by URL
//	POST /match       as /match/sift, also accepting inline images
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ausocean/utils/logging"
	"golang.org/x/sync/semaphore"

	"github.com/ausocean/photoid/sift/config"
	"github.com/ausocean/photoid/sift/fetch"
	"github.com/ausocean/photoid/sift/match"
)

const (
	shutdownTimeout = 10 * time.Second
	bodyOverhead    = 1 << 20 // Allowance for JSON around inline images.
)

type ransacParams struct {
	Thr   float64 `json:"thr"`
	Iters int     `json:"iters"`
	Conf  float64 `json:"conf"`
}

type health struct {
	OK          bool         `json:"ok"`
	NFeatures   int          `json:"sift_nfeatures"`
	Ratio       float64      `json:"ratio"`
	Ransac      ransacParams `json:"ransac"`
	MaxLongEdge int          `json:"max_long_edge"`
	Backend     string       `json:"backend"`
}

type params struct {
	NFeatures   int          `json:"nfeatures"`
	Ratio       float64      `json:"ratio"`
	Ransac      ransacParams `json:"ransac"`
	MaxLongEdge int          `json:"max_long_edge"`
}

// matchRequest names two images by URL or carries them inline. Inline
// images take precedence.
type matchRequest struct {
	ImageURLA string   `json:"image_url_a"`
	ImageURLB string   `json:"image_url_b"`
	ImageA    []byte   `json:"image_a"`
	ImageB    []byte   `json:"image_b"`
	Ratio     *float64 `json:"ratio"`
	Seed      *uint64  `json:"seed"`
}

type matchResponse struct {
	OK          bool    `json:"ok"`
	KP1         int     `json:"kp1"`
	KP2         int     `json:"kp2"`
	Good        int     `json:"good"`
	Inliers     int     `json:"inliers"`
	InlierRatio float64 `json:"inlier_ratio"`
	ElapsedMS   int64   `json:"elapsed_ms"`
	Params      params  `json:"params"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Service handles match requests.
type Service struct {
	log     logging.Logger
	cfg     config.Config
	matcher *match.Matcher
	fetcher *fetch.Fetcher
	sem     *semaphore.Weighted
}

// New returns a Service matching with m, fetching with f and admitting
// at most cfg.Workers concurrent matches.
func New(log logging.Logger, cfg config.Config, m *match.Matcher, f *fetch.Fetcher) *Service {
	return &Service{
		log:     log,
		cfg:     cfg,
		matcher: m,
		fetcher: f,
		sem:     semaphore.NewWeighted(int64(max(1, cfg.Workers))),
	}
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/match/sift", s.handleMatch(false))
	mux.HandleFunc("/match", s.handleMatch(true))
	return cors(mux)
}

// ListenAndServe serves on the configured address until ctx is done,
// then shuts down gracefully.
func (s *Service) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("could not listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("serving", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(sctx)
	if err != nil {
		return fmt.Errorf("could not shut down: %w", err)
	}
	err = <-errc
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// cors allows requests from any origin and answers preflight requests.
func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			hdr.Set("Access-Control-Allow-Headers", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Service) params() params {
	c := s.cfg.Match
	return params{
		NFeatures:   c.NFeatures,
		Ratio:       c.RatioThreshold,
		Ransac:      ransacParams{Thr: c.InlierThreshold, Iters: c.MaxIterations, Conf: c.Confidence},
		MaxLongEdge: c.MaxLongEdge,
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p := s.params()
	s.writeJSON(w, http.StatusOK, health{
		OK:          true,
		NFeatures:   p.NFeatures,
		Ratio:       p.Ratio,
		Ransac:      p.Ransac,
		MaxLongEdge: p.MaxLongEdge,
		Backend:     s.cfg.Backend,
	})
}

func (s *Service) handleMatch(inline bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := int64(bodyOverhead)
		if inline && s.cfg.MaxImageBytes > 0 {
			// Base64 expands by four thirds.
			limit += 2 * (s.cfg.MaxImageBytes*4/3 + 4)
		}
		var req matchRequest
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(&req)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if !inline {
			req.ImageA, req.ImageB = nil, nil
		}
		if (req.ImageA == nil && req.ImageURLA == "") || (req.ImageB == nil && req.ImageURLB == "") {
			s.writeError(w, http.StatusUnprocessableEntity, "two images are required")
			return
		}

		cfg := s.cfg.Match
		if req.Ratio != nil {
			cfg.RatioThreshold = *req.Ratio
		}
		if req.Seed != nil {
			cfg.RandomSeed = req.Seed
		}
		err = cfg.Validate()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := s.match(r.Context(), &req, cfg)
		if err != nil {
			s.log.Warning("match failed", "error", err.Error())
			s.writeMatchError(w, err)
			return
		}

		p := s.params()
		p.Ratio = cfg.RatioThreshold
		s.writeJSON(w, http.StatusOK, matchResponse{
			OK:          true,
			KP1:         res.KeypointsA,
			KP2:         res.KeypointsB,
			Good:        res.Candidates,
			Inliers:     res.Inliers,
			InlierRatio: res.InlierRatio,
			ElapsedMS:   res.ElapsedMillis(),
			Params:      p,
		})
	}
}

// fetchError marks a failure to retrieve an image.
type fetchError struct {
	side match.Side
	err  error
}

func (e *fetchError) Error() string { return fmt.Sprintf("image %s: %v", e.side, e.err) }
func (e *fetchError) Unwrap() error { return e.err }

// errBusy is returned when no worker slot became free before the
// request ended.
var errBusy = errors.New("server busy")

// match retrieves the images of req, A first, then waits for a worker
// slot and matches them. Retrieval does not hold a slot. The elapsed time
// includes retrieval.
func (s *Service) match(ctx context.Context, req *matchRequest, cfg match.Config) (*match.Result, error) {
	start := time.Now()
	a, err := s.image(ctx, req.ImageA, req.ImageURLA)
	if err != nil {
		return nil, &fetchError{side: match.SideA, err: err}
	}
	b, err := s.image(ctx, req.ImageB, req.ImageURLB)
	if err != nil {
		return nil, &fetchError{side: match.SideB, err: err}
	}

	err = s.sem.Acquire(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBusy, err)
	}
	defer s.sem.Release(1)

	res, err := s.matcher.Match(ctx, a, b, cfg)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	s.log.Info("matched", "kp1", res.KeypointsA, "kp2", res.KeypointsB, "good", res.Candidates, "inliers", res.Inliers, "ms", res.ElapsedMillis())
	return res, nil
}

func (s *Service) image(ctx context.Context, inline []byte, url string) ([]byte, error) {
	if inline != nil {
		if s.cfg.MaxImageBytes > 0 && int64(len(inline)) > s.cfg.MaxImageBytes {
			return nil, fetch.ErrTooLarge
		}
		return inline, nil
	}
	return s.fetcher.Fetch(ctx, url)
}

func (s *Service) writeMatchError(w http.ResponseWriter, err error) {
	var (
		fe *fetchError
		de *match.DecodeError
		ce *match.ConfigError
	)
	switch {
	case errors.As(err, &fe), errors.As(err, &de):
		s.writeError(w, http.StatusBadRequest, "failed to fetch/decode image: "+err.Error())
	case errors.As(err, &ce):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errBusy):
		s.writeError(w, http.StatusServiceUnavailable, errBusy.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Service) writeError(w http.ResponseWriter, code int, detail string) {
	s.writeJSON(w, code, errorResponse{Detail: detail})
}

func (s *Service) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.log.Error("could not write response", "error", err)
	}
}
