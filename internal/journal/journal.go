// Package journal keeps a local SQLite record of the notices and snapshots
// a dashboard has seen, so crawl history survives a restart.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hos-care/console/internal/live"
)

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SnapshotSummary is the stored form of an applied snapshot.
type SnapshotSummary struct {
	Seq         uint64
	Trigger     string
	TotalLogs   int
	SuccessRate float64
	FetchedAt   time.Time
}

// Journal is a SQLite-backed store.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Journal{db: db}, nil
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS notices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  level TEXT NOT NULL,
  text TEXT NOT NULL,
  at TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_notices_at ON notices(at);`,
	`
CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  seq INTEGER NOT NULL,
  cause TEXT NOT NULL,
  total_logs INTEGER NOT NULL,
  success_rate REAL NOT NULL,
  fetched_at TEXT NOT NULL
);`,
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) RecordNotice(ctx context.Context, n live.Notice) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO notices (level, text, at) VALUES (?, ?, ?);`,
		string(n.Level), n.Text, n.At.UTC().Format(timeLayout))
	return err
}

func (j *Journal) RecordSnapshot(ctx context.Context, snap live.Snapshot) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO snapshots (seq, cause, total_logs, success_rate, fetched_at) VALUES (?, ?, ?, ?, ?);`,
		int64(snap.Seq), snap.Trigger.String(), snap.Stats.TotalLogs, snap.Stats.SuccessRate,
		snap.FetchedAt.UTC().Format(timeLayout))
	return err
}

// RecentNotices returns up to limit notices, oldest first.
func (j *Journal) RecentNotices(ctx context.Context, limit int) ([]live.Notice, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT level, text, at FROM (
  SELECT id, level, text, at FROM notices ORDER BY id DESC LIMIT ?
) ORDER BY id ASC;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]live.Notice, 0, limit)
	for rows.Next() {
		var level, text, at string
		if err := rows.Scan(&level, &text, &at); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timeLayout, at)
		if err != nil {
			return nil, err
		}
		out = append(out, live.Notice{Level: live.NoticeLevel(level), Text: text, At: ts})
	}
	return out, rows.Err()
}

// RecentSnapshots returns up to limit snapshot summaries, newest first.
func (j *Journal) RecentSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, cause, total_logs, success_rate, fetched_at
FROM snapshots
ORDER BY id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SnapshotSummary, 0, limit)
	for rows.Next() {
		var (
			s   SnapshotSummary
			seq int64
			at  string
		)
		if err := rows.Scan(&seq, &s.Trigger, &s.TotalLogs, &s.SuccessRate, &at); err != nil {
			return nil, err
		}
		s.Seq = uint64(seq)
		if s.FetchedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes entries recorded before cutoff and reports how many rows
// went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(timeLayout)
	var total int64
	for _, q := range []string{
		`DELETE FROM notices WHERE at < ?;`,
		`DELETE FROM snapshots WHERE fetched_at < ?;`,
	} {
		res, err := j.db.ExecContext(ctx, q, ts)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
