//go:build withcv
// +build withcv

/*
DESCRIPTION
  backend_cv.go selects the pipeline stages for builds with OpenCV.

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

// Package backend maps backend names to matcher options.
package backend

import (
	"fmt"

	"github.com/ausocean/photoid/sift/config"
	"github.com/ausocean/photoid/sift/match"
	"github.com/ausocean/photoid/sift/opencv"
)

// Options returns the matcher options for the named backend.
func Options(name string) ([]match.Option, error) {
	switch name {
	case config.BackendGo:
		return nil, nil
	case config.BackendOpenCV:
		return opencv.Options(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
