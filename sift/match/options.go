/*
DESCRIPTION
  options.go provides Matcher initialisation options.

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

import "errors"

// Option is the function signature returned by option functions below for
// use in NewMatcher.
type Option func(*Matcher) error

// WithNormalizer returns an Option that replaces the image normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(m *Matcher) error {
		if n == nil {
			return errors.New("nil normalizer")
		}
		m.norm = n
		return nil
	}
}

// WithExtractor returns an Option that replaces the feature extractor.
func WithExtractor(e Extractor) Option {
	return func(m *Matcher) error {
		if e == nil {
			return errors.New("nil extractor")
		}
		m.ext = e
		return nil
	}
}

// WithVerifier returns an Option that replaces the geometric verifier.
func WithVerifier(v Verifier) Option {
	return func(m *Matcher) error {
		if v == nil {
			return errors.New("nil verifier")
		}
		m.ver = v
		return nil
	}
}
