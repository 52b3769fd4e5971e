/*
DESCRIPTION
  sift-server serves photo pair matching over HTTP.

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

// sift-server is an HTTP service scoring whether two photographs show the
// same subject. It is configured by environment variables and an
// optional config file; see package config for the settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/photoid/sift/backend"
	"github.com/ausocean/photoid/sift/config"
	"github.com/ausocean/photoid/sift/fetch"
	"github.com/ausocean/photoid/sift/match"
	"github.com/ausocean/photoid/sift/service"
	"github.com/ausocean/photoid/sift/smartlogger"
)

const (
	progName    = "sift-server"
	logSuppress = true
)

func main() {
	var (
		configPath  string
		logDir      string
		writeConfig string
		debug       bool
	)
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.StringVar(&logDir, "logdir", "/var/log/photoid", "Log directory")
	flag.StringVar(&writeConfig, "write-config", "", "Write the effective config to this path and exit")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		os.Exit(2)
	}
	if debug {
		cfg.LogLevel = int8(logging.Debug)
	}
	if writeConfig != "" {
		err = cfg.Write(writeConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: could not write config: %v\n", progName, err)
			os.Exit(1)
		}
		return
	}

	sl := smartlogger.New(logDir, progName)
	defer sl.Close()
	log := logging.New(cfg.LogLevel, io.MultiWriter(&sl.LogRoller, os.Stderr), logSuppress)

	opts, err := backend.Options(cfg.Backend)
	if err != nil {
		log.Fatal("could not select backend", "error", err.Error())
	}
	m, err := match.NewMatcher(log, opts...)
	if err != nil {
		log.Fatal("could not create matcher", "error", err.Error())
	}
	f := fetch.New(log, cfg.FetchTimeout, cfg.MaxImageBytes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sl.Watch(ctx, log)

	log.Info("starting", "addr", cfg.Addr, "backend", cfg.Backend, "workers", cfg.Workers)
	err = service.New(log, cfg, m, f).ListenAndServe(ctx)
	if err != nil {
		log.Error("server failed", "error", err.Error())
		os.Exit(1)
	}
	log.Info("stopped")
}
