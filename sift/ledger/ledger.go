/*
DESCRIPTION
  ledger.go provides a SQLite record of scored image pairs.

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

// Package ledger stores pair scores so that batch runs can resume.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS pairs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	a TEXT NOT NULL,
	b TEXT NOT NULL,
	kp_a INTEGER NOT NULL,
	kp_b INTEGER NOT NULL,
	good INTEGER NOT NULL,
	inliers INTEGER NOT NULL,
	inlier_ratio REAL NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	scored_at TEXT NOT NULL,
	UNIQUE(a, b)
);
CREATE INDEX IF NOT EXISTS idx_inlier_ratio ON pairs(inlier_ratio);`

// Pair is the score of one unordered pair of images. A is ordered
// before B.
type Pair struct {
	A, B          string
	KeypointsA    int
	KeypointsB    int
	Candidates    int
	Inliers       int
	InlierRatio   float64
	ElapsedMillis int64
	ScoredAt      time.Time
}

// Ledger is a pair score store. It is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open ledger: %w", err)
	}
	// SQLite allows a single writer, and each connection to an in-memory
	// database sees its own database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// order returns a and b in canonical order.
func order(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Has reports whether the pair a, b has been scored, in either order.
func (l *Ledger) Has(ctx context.Context, a, b string) (bool, error) {
	a, b = order(a, b)
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pairs WHERE a = ? AND b = ?", a, b).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("could not query pair %s, %s: %w", a, b, err)
	}
	return n > 0, nil
}

// Put records p, replacing any earlier score of the same pair. The
// pair is stored with its images in canonical order.
func (l *Ledger) Put(ctx context.Context, p Pair) error {
	if p.B < p.A {
		p.A, p.B = p.B, p.A
		p.KeypointsA, p.KeypointsB = p.KeypointsB, p.KeypointsA
	}
	if p.ScoredAt.IsZero() {
		p.ScoredAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pairs (
			a, b, kp_a, kp_b, good, inliers, inlier_ratio, elapsed_ms, scored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.A, p.B, p.KeypointsA, p.KeypointsB, p.Candidates, p.Inliers, p.InlierRatio, p.ElapsedMillis,
		p.ScoredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("could not store pair %s, %s: %w", p.A, p.B, err)
	}
	return nil
}

// All returns every recorded pair ordered by descending inlier ratio,
// then by name.
func (l *Ledger) All(ctx context.Context) ([]Pair, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT a, b, kp_a, kp_b, good, inliers, inlier_ratio, elapsed_ms, scored_at
		FROM pairs ORDER BY inlier_ratio DESC, a, b`)
	if err != nil {
		return nil, fmt.Errorf("could not query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var (
			p  Pair
			at string
		)
		err = rows.Scan(&p.A, &p.B, &p.KeypointsA, &p.KeypointsB, &p.Candidates, &p.Inliers, &p.InlierRatio, &p.ElapsedMillis, &at)
		if err != nil {
			return nil, fmt.Errorf("could not scan pair: %w", err)
		}
		p.ScoredAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("invalid score time for %s, %s: %w", p.A, p.B, err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
