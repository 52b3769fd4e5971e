/*
DESCRIPTION
  sift-pairs scores every pair of photographs in a directory and reports
  the distribution of scores.

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

// sift-pairs scores all pairs of images in a directory, recording scores
// in a SQLite ledger so that interrupted runs resume where they stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/photoid/sift/backend"
	"github.com/ausocean/photoid/sift/batch"
	"github.com/ausocean/photoid/sift/config"
	"github.com/ausocean/photoid/sift/ledger"
	"github.com/ausocean/photoid/sift/match"
)

const progName = "sift-pairs"

// Logging configuration.
const (
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

func main() {
	var (
		configPath string
		dbPath     string
		histPath   string
		top        int
		force      bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.StringVar(&dbPath, "db", "", "Ledger database path (default <dir>/pairs.db)")
	flag.StringVar(&histPath, "hist", "", "Write an inlier ratio histogram PNG to this path")
	flag.IntVar(&top, "top", 10, "Number of best pairs to report")
	flag.BoolVar(&force, "force", false, "Rescore pairs already in the ledger")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <image dir>\n", progName)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	dir := flag.Arg(0)

	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		os.Exit(2)
	}
	if debug {
		cfg.LogLevel = int8(logging.Debug)
	}
	if dbPath == "" {
		dbPath = filepath.Join(dir, "pairs.db")
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   filepath.Join(dir, progName+".log"),
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	defer fileLog.Close()
	log := logging.New(cfg.LogLevel, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	opts, err := backend.Options(cfg.Backend)
	if err != nil {
		log.Fatal("could not select backend", "error", err.Error())
	}
	m, err := match.NewMatcher(log, opts...)
	if err != nil {
		log.Fatal("could not create matcher", "error", err.Error())
	}
	l, err := ledger.Open(dbPath)
	if err != nil {
		log.Fatal("could not open ledger", "error", err.Error())
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := batch.NewRunner(log, m, l, cfg.Match, cfg.Workers)
	r.Force = force
	_, err = r.Run(ctx, dir)
	if err != nil {
		log.Error("run failed", "error", err.Error())
		os.Exit(1)
	}

	pairs, err := l.All(ctx)
	if err != nil {
		log.Fatal("could not read ledger", "error", err.Error())
	}
	err = batch.Summarize(pairs, top).Write(os.Stdout)
	if err != nil {
		log.Fatal("could not write summary", "error", err.Error())
	}
	if histPath != "" && len(pairs) != 0 {
		err = batch.Histogram(pairs, histPath)
		if err != nil {
			log.Fatal("could not plot histogram", "error", err.Error())
		}
	}
}
