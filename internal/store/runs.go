package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gramkeeper/internal/logging"
)

// CreateRun inserts a new run in the running state and returns its id.
func (s *Store) CreateRun(startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"INSERT INTO runs (started_at, status) VALUES (?, ?)",
		startedAt.UnixMilli(), RunStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return res.LastInsertId()
}

// CompleteRun marks a run terminal with the given status and message.
func (s *Store) CompleteRun(id int64, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, status = ?, message = ? WHERE id = ?",
		time.Now().UnixMilli(), status, message, id,
	)
	if err != nil {
		return fmt.Errorf("complete run %d: %w", id, err)
	}
	return nil
}

// LatestRun returns the most recent run, or ErrNotFound if none exists.
func (s *Store) LatestRun() (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT id, started_at, finished_at, status, message FROM runs ORDER BY id DESC LIMIT 1")
	return scanRun(row)
}

// LatestSuccessfulRun returns the most recent successful run, or
// ErrNotFound if none exists.
func (s *Store) LatestSuccessfulRun() (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT id, started_at, finished_at, status, message FROM runs WHERE status = ? ORDER BY id DESC LIMIT 1",
		RunStatusSuccess)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	err := row.Scan(&r.ID, &started, &finished, &r.Status, &r.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		r.FinishedAt = &t
	}
	return &r, nil
}

// FailStuckRuns marks any run still in the running state as failed.
// Called at boot: a run that survived a process restart is dead.
func (s *Store) FailStuckRuns() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ?, message = ? WHERE status = ?",
		RunStatusFailed, time.Now().UnixMilli(), "Server restarted", RunStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail stuck runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("Marked %d stuck runs as failed", n)
	}
	return int(n), nil
}
