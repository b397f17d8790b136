package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"capturepair/internal/pairing"
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ListOptions filters List results.
type ListOptions struct {
	DeviceID string
	Limit    int
}

// Record stores a finished session. Recording the same session twice is a no-op.
func (s *Store) Record(ctx context.Context, session pairing.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id required")
	}
	finished := session.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	_, err := s.execWithRetry(ctx, `INSERT OR IGNORE INTO sessions (
			id, operation, device_id, device_name, state, dev_mode,
			error_kind, error_message, pairing_file, pairing_bytes, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		string(session.Operation),
		session.DeviceID,
		session.DeviceName,
		string(session.State),
		string(session.DevMode),
		session.ErrorKind,
		session.ErrorMessage,
		session.PairingFile,
		session.PairingBytes,
		session.StartedAt.UTC().Format(timeLayout),
		finished.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", session.ID, err)
	}
	return nil
}

// List returns finished sessions, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]pairing.Session, error) {
	query := `SELECT id, operation, device_id, device_name, state, dev_mode,
		error_kind, error_message, pairing_file, pairing_bytes, started_at, finished_at
		FROM sessions`
	var args []any
	if id := strings.TrimSpace(opts.DeviceID); id != "" {
		query += " WHERE device_id = ?"
		args = append(args, id)
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []pairing.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Get returns one session by id.
func (s *Store) Get(ctx context.Context, id string) (pairing.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, operation, device_id, device_name, state, dev_mode,
		error_kind, error_message, pairing_file, pairing_bytes, started_at, finished_at
		FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pairing.Session{}, false, nil
	}
	if err != nil {
		return pairing.Session{}, false, err
	}
	return session, true, nil
}

// Stats counts recorded sessions by final state.
func (s *Store) Stats(ctx context.Context) (map[pairing.SessionState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM sessions GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[pairing.SessionState]int)
	for rows.Next() {
		var state pairing.SessionState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Prune deletes sessions finished more than retentionDays ago. A
// non-positive retention keeps everything.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour).UTC().Format(timeLayout)
	res, err := s.execWithRetry(ctx, `DELETE FROM sessions WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (pairing.Session, error) {
	var (
		session           pairing.Session
		operation         string
		state             string
		devMode           string
		started, finished string
	)
	if err := row.Scan(
		&session.ID,
		&operation,
		&session.DeviceID,
		&session.DeviceName,
		&state,
		&devMode,
		&session.ErrorKind,
		&session.ErrorMessage,
		&session.PairingFile,
		&session.PairingBytes,
		&started,
		&finished,
	); err != nil {
		return pairing.Session{}, err
	}
	session.Operation = pairing.Operation(operation)
	session.State = pairing.SessionState(state)
	session.DevMode = pairing.DevModeState(devMode)
	session.StartedAt = parseTime(started)
	session.FinishedAt = parseTime(finished)
	return session, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ pairing.Recorder = (*Store)(nil)
