/*
DESCRIPTION
  errors.go defines the errors returned by the matching pipeline.

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

import "fmt"

// Side identifies one of the two images of a pair.
type Side string

// Sides.
const (
	SideA Side = "A"
	SideB Side = "B"
)

// DecodeError is returned when the bytes of one image could not be
// decoded.
type DecodeError struct {
	Side Side
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode image %s: %v", e.Side, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigError is returned when a configuration value is outside its
// valid domain.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
