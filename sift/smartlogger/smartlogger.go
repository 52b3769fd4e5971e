/*
DESCRIPTION
  smartlogger.go implements log file rotation and archiving of rotated
  log files.

LICENSE
  Copyright (C) 2017-2025 the Australian Ocean Lab (AusOcean)

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

// Package smartlogger provides a rotating log file whose rotated files
// can be archived, and rotation on SIGHUP.
package smartlogger

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// backupDir is the directory, relative to the log directory, that
// archived log files are moved to.
const backupDir = "backups"

type Smartlogger struct {
	path      string
	name      string
	LogRoller lumberjack.Logger
}

// New returns a Smartlogger writing to name.log in the directory path.
func New(path, name string) *Smartlogger {
	return &Smartlogger{
		path: path,
		name: name,
		LogRoller: lumberjack.Logger{
			Filename:   filepath.Join(path, name+".log"),
			MaxSize:    500, // megabytes
			MaxBackups: 10,
			MaxAge:     28, // days
		},
	}
}

// Rotate closes the current log file and dates it, followed by opening a new log file
func (s *Smartlogger) Rotate() error {
	return s.LogRoller.Rotate()
}

// Close closes the current log file.
func (s *Smartlogger) Close() error {
	return s.LogRoller.Close()
}

// Archive moves all rotated log files into the backups directory and
// returns the paths they were moved to. The current log file is not
// moved; a call to Archive should be preceded by a call to Rotate if the
// most recent log messages are to be archived.
func (s *Smartlogger) Archive() ([]string, error) {
	logFiles, err := s.rotated()
	if err != nil {
		return nil, err
	}
	if len(logFiles) == 0 {
		return nil, nil
	}

	dir := filepath.Join(s.path, backupDir)
	err = os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("could not create backup directory: %w", err)
	}
	var moved []string
	for _, ff := range logFiles {
		dst := filepath.Join(dir, filepath.Base(ff))
		err = os.Rename(ff, dst)
		if err != nil {
			return moved, fmt.Errorf("could not move log file %s: %w", filepath.Base(ff), err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// rotated returns the rotated log files still in the log directory.
func (s *Smartlogger) rotated() ([]string, error) {
	logFiles, err := filepath.Glob(filepath.Join(s.path, s.name+"-*"))
	if err != nil {
		return nil, fmt.Errorf("could not glob log files: %w", err)
	}
	var out []string
	for _, ff := range logFiles {
		if strings.HasSuffix(ff, ".log") || strings.HasSuffix(ff, ".log.gz") {
			out = append(out, ff)
		}
	}
	return out, nil
}

// Watch rotates and archives the log on every SIGHUP until ctx is done.
func (s *Smartlogger) Watch(ctx context.Context, log logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			s.rotateAndArchive(log)
		}
	}
}

func (s *Smartlogger) rotateAndArchive(log logging.Logger) {
	err := s.Rotate()
	if err != nil {
		log.Error("could not rotate log", "error", err)
		return
	}
	moved, err := s.Archive()
	if err != nil {
		log.Error("could not archive logs", "error", err)
		return
	}
	log.Info("rotated log", "archived", len(moved))
}
