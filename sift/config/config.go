/*
DESCRIPTION
  config.go provides the configuration of the photo matching tools,
  loaded from defaults, an optional config file and the environment.

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

// Package config loads matcher and service settings.
//
// Settings are read in increasing order of precedence from defaults, a
// config file of space separated name value lines, and environment
// variables of the same names.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/filemap"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/sliceutils"

	"github.com/ausocean/photoid/sift/fetch"
	"github.com/ausocean/photoid/sift/match"
)

// Backends.
const (
	BackendGo     = "go"
	BackendOpenCV = "opencv"
)

// DefaultAddr is the default service listen address.
const DefaultAddr = "127.0.0.1:5051"

// Config holds all settings.
type Config struct {
	Match         match.Config
	Addr          string
	FetchTimeout  time.Duration
	MaxImageBytes int64 // Largest fetched or inline image, 0 for no limit.
	Workers       int
	Backend       string
	LogLevel      int8
}

// Default returns the default settings.
func Default() Config {
	return Config{
		Match:         match.DefaultConfig(),
		Addr:          DefaultAddr,
		FetchTimeout:  fetch.DefaultTimeout,
		MaxImageBytes: fetch.DefaultMaxBytes,
		Workers:       runtime.NumCPU(),
		Backend:       BackendGo,
		LogLevel:      int8(logging.Info),
	}
}

// variable describes one setting, named as it is in the environment and
// in config files.
type variable struct {
	name   string
	update func(c *Config, v string) error
	value  func(c *Config) string
}

var levels = map[string]int8{
	"debug":   int8(logging.Debug),
	"info":    int8(logging.Info),
	"warning": int8(logging.Warning),
	"error":   int8(logging.Error),
	"fatal":   int8(logging.Fatal),
}

var variables = []variable{
	{
		name:   "SIFT_NFEATURES",
		update: func(c *Config, v string) error { return parseInt(v, &c.Match.NFeatures) },
		value:  func(c *Config) string { return strconv.Itoa(c.Match.NFeatures) },
	},
	{
		name:   "SIFT_RATIO",
		update: func(c *Config, v string) error { return parseFloat(v, &c.Match.RatioThreshold) },
		value:  func(c *Config) string { return formatFloat(c.Match.RatioThreshold) },
	},
	{
		name:   "RANSAC_THRESH",
		update: func(c *Config, v string) error { return parseFloat(v, &c.Match.InlierThreshold) },
		value:  func(c *Config) string { return formatFloat(c.Match.InlierThreshold) },
	},
	{
		name:   "RANSAC_ITERS",
		update: func(c *Config, v string) error { return parseInt(v, &c.Match.MaxIterations) },
		value:  func(c *Config) string { return strconv.Itoa(c.Match.MaxIterations) },
	},
	{
		name:   "RANSAC_CONF",
		update: func(c *Config, v string) error { return parseFloat(v, &c.Match.Confidence) },
		value:  func(c *Config) string { return formatFloat(c.Match.Confidence) },
	},
	{
		name:   "SIFT_MAX_LONG_EDGE",
		update: func(c *Config, v string) error { return parseInt(v, &c.Match.MaxLongEdge) },
		value:  func(c *Config) string { return strconv.Itoa(c.Match.MaxLongEdge) },
	},
	{
		name: "SIFT_SEED",
		update: func(c *Config, v string) error {
			if v == "" {
				c.Match.RandomSeed = nil
				return nil
			}
			s, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return err
			}
			c.Match.RandomSeed = &s
			return nil
		},
		value: func(c *Config) string {
			if c.Match.RandomSeed == nil {
				return ""
			}
			return strconv.FormatUint(*c.Match.RandomSeed, 10)
		},
	},
	{
		name:   "SIFT_MIN_MATCHES",
		update: func(c *Config, v string) error { return parseInt(v, &c.Match.MinCorrespondences) },
		value:  func(c *Config) string { return strconv.Itoa(c.Match.MinCorrespondences) },
	},
	{
		name:   "SIFT_ADDR",
		update: func(c *Config, v string) error { c.Addr = v; return nil },
		value:  func(c *Config) string { return c.Addr },
	},
	{
		name: "SIFT_FETCH_TIMEOUT",
		update: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				// Bare numbers are seconds.
				s, ferr := strconv.ParseFloat(v, 64)
				if ferr != nil {
					return err
				}
				d = time.Duration(s * float64(time.Second))
			}
			c.FetchTimeout = d
			return nil
		},
		value: func(c *Config) string { return c.FetchTimeout.String() },
	},
	{
		name: "SIFT_MAX_IMAGE_BYTES",
		update: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			c.MaxImageBytes = n
			return err
		},
		value: func(c *Config) string { return strconv.FormatInt(c.MaxImageBytes, 10) },
	},
	{
		name:   "SIFT_WORKERS",
		update: func(c *Config, v string) error { return parseInt(v, &c.Workers) },
		value:  func(c *Config) string { return strconv.Itoa(c.Workers) },
	},
	{
		name:   "SIFT_BACKEND",
		update: func(c *Config, v string) error { c.Backend = strings.ToLower(v); return nil },
		value:  func(c *Config) string { return c.Backend },
	},
	{
		name: "SIFT_LOG_LEVEL",
		update: func(c *Config, v string) error {
			l, ok := levels[strings.ToLower(v)]
			if !ok {
				return errors.New("unknown log level")
			}
			c.LogLevel = l
			return nil
		},
		value: func(c *Config) string {
			for name, l := range levels {
				if l == c.LogLevel {
					return name
				}
			}
			return strconv.Itoa(int(c.LogLevel))
		},
	},
}

// Names returns the setting names in table order.
func Names() []string {
	names := make([]string, len(variables))
	for i, v := range variables {
		names[i] = v.name
	}
	return names
}

// Load returns the default settings overridden by the config file at
// path, if path is not empty, and then by any variable that getenv
// reports as set. Unknown names in the file are an error.
func Load(path string, getenv func(string) string) (Config, error) {
	c := Default()
	if path != "" {
		m, err := filemap.ReadFrom(path, "\n", " ")
		if err != nil {
			return c, fmt.Errorf("could not read config file: %w", err)
		}
		err = c.apply(m)
		if err != nil {
			return c, fmt.Errorf("could not load %s: %w", path, err)
		}
	}

	env := make(map[string]string)
	for _, v := range variables {
		val := getenv(v.name)
		if val != "" {
			env[v.name] = val
		}
	}
	err := c.apply(env)
	if err != nil {
		return c, fmt.Errorf("could not load environment: %w", err)
	}
	return c, c.Validate()
}

// apply updates c from the name value pairs of m.
func (c *Config) apply(m map[string]string) error {
	names := Names()
	for name := range m {
		if name == "" {
			continue
		}
		if !sliceutils.ContainsString(names, name) {
			return fmt.Errorf("unknown setting %q", name)
		}
	}
	for _, v := range variables {
		val, ok := m[v.name]
		if !ok {
			continue
		}
		err := v.update(c, strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", v.name, val, err)
		}
	}
	return nil
}

// Validate checks the settings, returning a *match.ConfigError for an
// invalid match setting.
func (c *Config) Validate() error {
	err := c.Match.Validate()
	if err != nil {
		return err
	}
	switch {
	case c.Addr == "":
		return errors.New("no listen address")
	case c.MaxImageBytes < 0:
		return fmt.Errorf("max image bytes %d must not be negative", c.MaxImageBytes)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("fetch timeout %v must be positive", c.FetchTimeout)
	case c.Workers <= 0:
		return fmt.Errorf("workers %d must be positive", c.Workers)
	case c.Backend != BackendGo && c.Backend != BackendOpenCV:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// Map returns the settings as name value pairs.
func (c *Config) Map() map[string]string {
	m := make(map[string]string, len(variables))
	for _, v := range variables {
		m[v.name] = v.value(c)
	}
	return m
}

// Write writes the settings to the config file at path in table order.
func (c *Config) Write(path string) error {
	return filemap.WriteTo(path, "\n", " ", c.Map(), Names())
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
