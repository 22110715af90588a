package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/korjavin/studybot/models"
	_ "github.com/mattn/go-sqlite3"
)

// DB handles all database operations
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err = createTables(db); err != nil {
		return nil, err
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	// Sessions, one per participant run
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			variant TEXT NOT NULL,
			condition INTEGER NOT NULL,
			counterbalance INTEGER NOT NULL,
			status TEXT NOT NULL,
			completion_code TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return err
	}

	// Append-only trial responses
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trial_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			trial_index INTEGER NOT NULL,
			stimulus_ref TEXT NOT NULL,
			presentation_order TEXT NOT NULL,
			condition INTEGER NOT NULL,
			response TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Session-level key/value data (condition, demographics, feedback)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS session_data (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (session_id, key)
		)
	`)
	return err
}

// CreateSession stores a newly started session
func (db *DB) CreateSession(ctx context.Context, s models.SessionSummary) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (id, chat_id, variant, condition, counterbalance, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.ChatID, s.Variant, int(s.Condition), s.Counterbalance, models.StatusStarted, s.CreatedAt.Unix(),
	)
	return err
}

// CountSessions returns how many sessions an experiment has started
func (db *DB) CountSessions(ctx context.Context, variant string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE variant = ?",
		variant,
	).Scan(&n)
	return n, err
}

// NextAssignment picks condition and counterbalance for the next session of an
// experiment, cycling through every condition before flipping counterbalance.
func (db *DB) NextAssignment(ctx context.Context, variant string, conditions []models.Condition) (models.Condition, int, error) {
	if len(conditions) == 0 {
		return 0, 0, fmt.Errorf("no conditions for %s", variant)
	}
	n, err := db.CountSessions(ctx, variant)
	if err != nil {
		return 0, 0, err
	}
	return conditions[n%len(conditions)], (n / len(conditions)) % 2, nil
}

// GetSession retrieves one session with its trial count
func (db *DB) GetSession(ctx context.Context, id string) (models.SessionSummary, error) {
	row := db.conn.QueryRowContext(ctx, sessionQuery+" WHERE s.id = ? GROUP BY s.id", id)
	return scanSession(row)
}

// CompletedSession returns the chat's completed session for variant, if any
func (db *DB) CompletedSession(ctx context.Context, chatID int64, variant string) (models.SessionSummary, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		sessionQuery+" WHERE s.chat_id = ? AND s.variant = ? AND s.status = ? GROUP BY s.id ORDER BY s.completed_at DESC LIMIT 1",
		chatID, variant, models.StatusComplete)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionSummary{}, false, nil
	}
	if err != nil {
		return models.SessionSummary{}, false, err
	}
	return s, true, nil
}

// ListSessions returns every session, newest first
func (db *DB) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	rows, err := db.conn.QueryContext(ctx, sessionQuery+" GROUP BY s.id ORDER BY s.created_at DESC, s.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.SessionSummary
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

const sessionQuery = `
	SELECT s.id, s.chat_id, s.variant, s.condition, s.counterbalance, s.status,
		s.completion_code, s.created_at, s.completed_at, COUNT(t.id)
	FROM sessions s
	LEFT JOIN trial_data t ON t.session_id = s.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (models.SessionSummary, error) {
	var (
		s                  models.SessionSummary
		condition          int
		created, completed int64
	)
	err := row.Scan(&s.ID, &s.ChatID, &s.Variant, &condition, &s.Counterbalance, &s.Status,
		&s.CompletionCode, &created, &completed, &s.Trials)
	if err != nil {
		return models.SessionSummary{}, err
	}
	s.Condition = models.Condition(condition)
	s.CreatedAt = time.Unix(created, 0).UTC()
	if completed > 0 {
		s.CompletedAt = time.Unix(completed, 0).UTC()
	}
	return s, nil
}

// GetTrialData returns the persisted responses of a session in trial order
func (db *DB) GetTrialData(ctx context.Context, sessionID string) ([]models.ResponseRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT trial_index, stimulus_ref, presentation_order, condition, response, recorded_at
		FROM trial_data
		WHERE session_id = ?
		ORDER BY trial_index, id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ResponseRecord
	for rows.Next() {
		var (
			rec       models.ResponseRecord
			condition int
			recorded  int64
		)
		if err := rows.Scan(&rec.TrialIndex, &rec.StimulusRef, &rec.PresentationOrder, &condition, &rec.Response, &recorded); err != nil {
			return nil, err
		}
		rec.SessionID = sessionID
		rec.Condition = models.Condition(condition)
		rec.RecordedAt = time.Unix(recorded, 0).UTC()
		result = append(result, rec)
	}
	return result, rows.Err()
}

// GetSessionData returns the key/value data of a session
func (db *DB) GetSessionData(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT key, value FROM session_data WHERE session_id = ?",
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		data[key] = value
	}
	return data, rows.Err()
}

// saveSession writes buffered responses and data in one transaction
func (db *DB) saveSession(ctx context.Context, sessionID string, records []models.ResponseRecord, data map[string]string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO trial_data (session_id, trial_index, stimulus_ref, presentation_order, condition, response, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			sessionID, rec.TrialIndex, rec.StimulusRef, rec.PresentationOrder, int(rec.Condition), rec.Response, rec.RecordedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert trial %d: %w", rec.TrialIndex, err)
		}
	}

	for key, value := range data {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO session_data (session_id, key, value) VALUES (?, ?, ?)",
			sessionID, key, value,
		)
		if err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET status = ? WHERE id = ? AND status = ?",
		models.StatusSubmitted, sessionID, models.StatusStarted,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return tx.Commit()
}

// completeSession marks a session complete. It returns the code already stored
// when the session was completed before.
func (db *DB) completeSession(ctx context.Context, sessionID, code string, at time.Time) (string, error) {
	var status, existing string
	err := db.conn.QueryRowContext(ctx,
		"SELECT status, completion_code FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&status, &existing)
	if err != nil {
		return "", err
	}
	if status == models.StatusComplete {
		return existing, nil
	}

	_, err = db.conn.ExecContext(ctx,
		"UPDATE sessions SET status = ?, completion_code = ?, completed_at = ? WHERE id = ?",
		models.StatusComplete, code, at.Unix(), sessionID,
	)
	if err != nil {
		return "", err
	}
	return code, nil
}
