// Package store persists operational state: the exchange holiday
// calendar and the supervisor's restart/escalation audit trail.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "orderflow-signals/internal/errors"
)

const dateLayout = "2006-01-02"

// SQLiteStore is a SQLite-backed store opened in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// SupervisorEvent is one recorded supervisor action.
type SupervisorEvent struct {
	Timestamp time.Time
	Symbol    string
	Event     string
	Detail    string
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.NewStoreError("open", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.NewStoreError("init_schema", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS supervisor_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_supervisor_events_ts ON supervisor_events(ts);
	CREATE INDEX IF NOT EXISTS idx_supervisor_events_symbol ON supervisor_events(symbol);
	`
	_, err := s.db.Exec(schema)
	return err
}

// HolidayDates returns all holiday dates in "2006-01-02" form, for
// seeding the session clock at startup.
func (s *SQLiteStore) HolidayDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM holidays ORDER BY date`)
	if err != nil {
		return nil, apperrors.NewStoreError("holiday_dates", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, apperrors.NewStoreError("holiday_dates", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("holiday_dates", err)
	}
	return dates, nil
}

// AddHoliday records an exchange holiday. Re-adding a date updates its
// name rather than failing.
func (s *SQLiteStore) AddHoliday(ctx context.Context, date time.Time, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (date, name) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name`,
		date.Format(dateLayout), name)
	if err != nil {
		return apperrors.NewStoreError("add_holiday", err)
	}
	return nil
}

// RemoveHoliday deletes a holiday date.
func (s *SQLiteStore) RemoveHoliday(ctx context.Context, date time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM holidays WHERE date = ?`, date.Format(dateLayout))
	if err != nil {
		return apperrors.NewStoreError("remove_holiday", err)
	}
	return nil
}

// RecordEvent appends one supervisor event to the audit trail.
func (s *SQLiteStore) RecordEvent(ctx context.Context, symbol, event, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supervisor_events (ts, symbol, event, detail)
		VALUES (?, ?, ?, ?)`,
		time.Now().UTC(), symbol, event, detail)
	if err != nil {
		return apperrors.NewStoreError("record_event", err)
	}
	return nil
}

// RecentEvents returns the newest events first, up to limit.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]SupervisorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, symbol, event, detail
		FROM supervisor_events
		ORDER BY ts DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("recent_events", err)
	}
	defer rows.Close()

	var events []SupervisorEvent
	for rows.Next() {
		var ev SupervisorEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.Timestamp, &ev.Symbol, &ev.Event, &detail); err != nil {
			return nil, apperrors.NewStoreError("recent_events", err)
		}
		ev.Detail = detail.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("recent_events", err)
	}
	return events, nil
}

// EventsForSymbol returns the newest events for one instrument.
func (s *SQLiteStore) EventsForSymbol(ctx context.Context, symbol string, limit int) ([]SupervisorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, symbol, event, detail
		FROM supervisor_events
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("events_for_symbol", err)
	}
	defer rows.Close()

	var events []SupervisorEvent
	for rows.Next() {
		var ev SupervisorEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.Timestamp, &ev.Symbol, &ev.Event, &detail); err != nil {
			return nil, apperrors.NewStoreError("events_for_symbol", err)
		}
		ev.Detail = detail.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("events_for_symbol", err)
	}
	return events, nil
}

// PruneEvents deletes events older than the cutoff and reports how many
// rows were removed.
func (s *SQLiteStore) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM supervisor_events WHERE ts < ?`, olderThan.UTC())
	if err != nil {
		return 0, apperrors.NewStoreError("prune_events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreError("prune_events", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
