/*
DESCRIPTION
  backend_test.go tests backend selection.

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

package backend

import (
	"testing"

	"github.com/ausocean/photoid/sift/config"
)

func TestOptions(t *testing.T) {
	opts, err := Options(config.BackendGo)
	if err != nil || len(opts) != 0 {
		t.Errorf("expected no options for the Go backend, got %d, %v", len(opts), err)
	}
	_, err = Options("cuda")
	if err == nil {
		t.Error("expected error for unknown backend")
	}
}
