// Package history persists finished measurement sessions and their
// readings in SQLite.
package history

import (
	"context"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/logger"
	"codeberg.org/mutker/camvitals/internal/session"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopStore struct{}

func NewService(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Session history disabled, using no-op store")
		return Noop(), nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) RecordReading(ctx context.Context, sessionID string, reading session.Reading) error {
	errFactory := errors.New()

	if sessionID == "" {
		return errFactory.WithMessage(ErrInvalidRecord, "empty session id")
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		return s.repo.Record(&ReadingRow{SessionID: sessionID, Reading: reading})
	}
}

func (s *service) SaveReport(ctx context.Context, record *SessionRecord) error {
	errFactory := errors.New()

	if record == nil || record.ID == "" {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		return s.repo.SaveSession(ctx, record)
	}
}

func (s *service) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	return s.repo.ListSessions(ctx, limit)
}

func (s *service) Readings(ctx context.Context, sessionID string) ([]session.Reading, error) {
	return s.repo.Readings(ctx, sessionID)
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}

// Noop returns a store that keeps nothing.
func Noop() Store { return noopStore{} }

func (noopStore) RecordReading(context.Context, string, session.Reading) error { return nil }
func (noopStore) SaveReport(context.Context, *SessionRecord) error            { return nil }
func (noopStore) ListSessions(context.Context, int) ([]SessionRecord, error)  { return nil, nil }
func (noopStore) Readings(context.Context, string) ([]session.Reading, error) { return nil, nil }
func (noopStore) Close() error                                                { return nil }
