// Package sqlite provides a SQLite-backed game repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/storage"
	"github.com/asfreeas-aatto/aatto/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists game sessions, poems and votes in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.Reader     = (*Store)(nil)
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) CreateSession(ctx context.Context, rec storage.SessionRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return "", fmt.Errorf("session id is required")
	}
	status := rec.Status
	if status == "" {
		status = storage.StatusActive
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO game_sessions (
		   id, mode, theme, player_one_id, player_two_id, status, time_limit_seconds, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Mode, rec.Theme, rec.PlayerIDs[0], rec.PlayerIDs[1], status,
		int64(rec.TimeLimit/time.Second), toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrAlreadyExists
		}
		return "", fmt.Errorf("create session: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) AppendSubmission(ctx context.Context, rec storage.SubmissionRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.ID == "" || rec.SessionID == "" || rec.ParticipantID == "" {
		return "", fmt.Errorf("poem id, session id and participant id are required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO poems (
		   id, session_id, participant_id, theme, line1, line2, line3, votes, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.ID, rec.SessionID, rec.ParticipantID, rec.Theme,
		rec.Lines[0], rec.Lines[1], rec.Lines[2], toMillis(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrAlreadyExists
		}
		return "", fmt.Errorf("append poem: %w", err)
	}
	return rec.ID, nil
}

// AppendVote records the vote and bumps the poem's tally in one transaction.
func (s *Store) AppendVote(ctx context.Context, rec storage.VoteRecord) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.SessionID == "" || rec.VoterID == "" || rec.SubmissionID == "" {
		return fmt.Errorf("session id, voter id and poem id are required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vote: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO poem_votes (session_id, voter_id, poem_id, created_at) VALUES (?, ?, ?, ?)`,
		rec.SessionID, rec.VoterID, rec.SubmissionID, toMillis(rec.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("append vote: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE poems SET votes = votes + 1 WHERE id = ? AND session_id = ?`,
		rec.SubmissionID, rec.SessionID,
	)
	if err != nil {
		return fmt.Errorf("count vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit vote: %w", err)
	}
	return nil
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID, winnerID string, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE game_sessions SET status = ?, winner_id = ?, ended_at = ? WHERE id = ?`,
		storage.StatusFinished, winnerID, toMillis(endedAt), sessionID,
	)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	var (
		rec                       storage.SessionRecord
		limit, createdAt, endedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, mode, theme, player_one_id, player_two_id, status, time_limit_seconds,
		        winner_id, created_at, ended_at
		   FROM game_sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Mode, &rec.Theme, &rec.PlayerIDs[0], &rec.PlayerIDs[1], &rec.Status,
		&limit, &rec.WinnerID, &createdAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	rec.TimeLimit = time.Duration(limit) * time.Second
	rec.CreatedAt = fromMillis(createdAt)
	rec.EndedAt = fromMillis(endedAt)
	return rec, nil
}

// ListSubmissions returns the session's poems, most voted first.
func (s *Store) ListSubmissions(ctx context.Context, sessionID string) ([]storage.SubmissionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, session_id, participant_id, theme, line1, line2, line3, votes, created_at
		   FROM poems WHERE session_id = ?
		  ORDER BY votes DESC, created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list poems: %w", err)
	}
	defer rows.Close()
	var out []storage.SubmissionRecord
	for rows.Next() {
		var (
			rec       storage.SubmissionRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ParticipantID, &rec.Theme,
			&rec.Lines[0], &rec.Lines[1], &rec.Lines[2], &rec.Votes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan poem: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
