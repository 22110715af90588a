package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/korjavin/studybot/models"
	"github.com/mazen160/go-random"
)

// CompletionCodeLength is the length of generated completion codes
const CompletionCodeLength = 8

var errUnknownSession = errors.New("unknown session")

// Notifier is told when a participant finishes
type Notifier interface {
	NotifyComplete(ctx context.Context, sessionID, completionCode string) error
}

type sessionBuffer struct {
	records []models.ResponseRecord
	data    map[string]string
}

// SessionLog buffers responses per session and writes them to the database on
// PersistSession. Nothing reaches the database before that call.
type SessionLog struct {
	db       *DB
	notifier Notifier
	now      func() time.Time

	mu      sync.Mutex
	buffers map[string]*sessionBuffer
}

// NewSessionLog creates a recorder backed by db. notifier may be nil.
func NewSessionLog(db *DB, notifier Notifier) *SessionLog {
	return &SessionLog{
		db:       db,
		notifier: notifier,
		now:      time.Now,
		buffers:  make(map[string]*sessionBuffer),
	}
}

// StartSession registers a session in the database and opens its buffer
func (l *SessionLog) StartSession(ctx context.Context, s models.SessionSummary) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = l.now()
	}
	if err := l.db.CreateSession(ctx, s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	l.mu.Lock()
	l.buffers[s.ID] = &sessionBuffer{data: make(map[string]string)}
	l.mu.Unlock()
	return nil
}

// Discard drops whatever is still buffered for a session
func (l *SessionLog) Discard(sessionID string) {
	l.mu.Lock()
	delete(l.buffers, sessionID)
	l.mu.Unlock()
}

// Record buffers one trial response
func (l *SessionLog) Record(_ context.Context, rec models.ResponseRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf, ok := l.buffers[rec.SessionID]
	if !ok {
		return fmt.Errorf("record %s: %w", rec.SessionID, errUnknownSession)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.now()
	}
	buf.records = append(buf.records, rec)
	return nil
}

// RecordUnstructured buffers a session-level value. A later value for the same key wins.
func (l *SessionLog) RecordUnstructured(_ context.Context, sessionID, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty key")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buf, ok := l.buffers[sessionID]
	if !ok {
		return fmt.Errorf("record %s: %w", sessionID, errUnknownSession)
	}
	buf.data[key] = value
	return nil
}

// PersistSession writes the buffer in one transaction. The buffer is kept on
// failure so a retry writes the same data again.
func (l *SessionLog) PersistSession(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	buf, ok := l.buffers[sessionID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("persist %s: %w", sessionID, errUnknownSession)
	}
	records := append([]models.ResponseRecord(nil), buf.records...)
	data := make(map[string]string, len(buf.data))
	for k, v := range buf.data {
		data[k] = v
	}
	l.mu.Unlock()

	if err := l.db.saveSession(ctx, sessionID, records, data); err != nil {
		return err
	}

	l.mu.Lock()
	if cur, ok := l.buffers[sessionID]; ok {
		// Keep anything recorded while the transaction ran.
		cur.records = cur.records[len(records):]
		for k, v := range data {
			if cur.data[k] == v {
				delete(cur.data, k)
			}
		}
	}
	l.mu.Unlock()
	return nil
}

// Finalize marks the session complete and notifies the platform. Calling it
// again returns the code issued the first time.
func (l *SessionLog) Finalize(ctx context.Context, sessionID string) (string, error) {
	code, err := random.String(CompletionCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate completion code: %w", err)
	}

	code, err = l.db.completeSession(ctx, sessionID, code, l.now())
	if err != nil {
		return "", fmt.Errorf("complete session: %w", err)
	}

	if l.notifier != nil {
		if err := l.notifier.NotifyComplete(ctx, sessionID, code); err != nil {
			return "", fmt.Errorf("notify platform: %w", err)
		}
	}

	l.Discard(sessionID)
	return code, nil
}
