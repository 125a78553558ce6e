package history

import (
	"context"
	"time"

	"codeberg.org/mutker/camvitals/internal/session"
	"github.com/google/uuid"
)

// Store persists finished sessions and their readings.
type Store interface {
	RecordReading(ctx context.Context, sessionID string, reading session.Reading) error
	SaveReport(ctx context.Context, record *SessionRecord) error
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Readings(ctx context.Context, sessionID string) ([]session.Reading, error)
	Close() error
}

// Repository is the storage backend behind a Store.
type Repository interface {
	Record(row *ReadingRow) error
	SaveSession(ctx context.Context, record *SessionRecord) error
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Readings(ctx context.Context, sessionID string) ([]session.Reading, error)
	Close() error
}

// SessionRecord is one finished measurement session.
type SessionRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Report     session.Report
}

// ReadingRow is a reading tagged with its session.
type ReadingRow struct {
	SessionID string
	Reading   session.Reading
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
