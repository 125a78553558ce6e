package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/logger"
	"codeberg.org/mutker/camvitals/internal/session"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*ReadingRow
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*ReadingRow, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(row *ReadingRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, row)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush(context.Background())
	}

	return nil
}

// SaveSession writes the session row together with any buffered readings.
func (r *repository) SaveSession(ctx context.Context, record *SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.flush(ctx); err != nil {
		return err
	}

	rep := record.Report
	_, err := r.db.ExecContext(ctx, insertSessionSQL,
		record.ID,
		record.StartedAt.UnixMilli(),
		record.FinishedAt.UnixMilli(),
		int64(rep.AverageHeartRate),
		rep.AverageBloodPressure,
		rep.AverageHRV,
		int64(rep.AverageBloodGlucose),
		int64(rep.Confidence),
		int64(rep.TotalReadings),
	)
	if err != nil {
		return errors.New().WithData(ErrStorageAccess, struct {
			Phase string
			ID    string
			Error string
		}{
			Phase: "insert_session",
			ID:    record.ID,
			Error: err.Error(),
		})
	}

	r.logger.Debug().Str("session_id", record.ID).Msg("Saved session report")

	return nil
}

func (r *repository) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectSessionsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec            SessionRecord
			started, ended int64
		)
		if err := rows.Scan(
			&rec.ID, &started, &ended,
			&rec.Report.AverageHeartRate,
			&rec.Report.AverageBloodPressure,
			&rec.Report.AverageHRV,
			&rec.Report.AverageBloodGlucose,
			&rec.Report.Confidence,
			&rec.Report.TotalReadings,
		); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(ended)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

func (r *repository) Readings(ctx context.Context, sessionID string) ([]session.Reading, error) {
	errFactory := errors.New()

	r.mu.Lock()
	err := r.flush(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, selectReadingsSQL, sessionID)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []session.Reading
	for rows.Next() {
		var (
			rd session.Reading
			ts int64
		)
		if err := rows.Scan(&ts, &rd.HeartRate, &rd.BloodPressure, &rd.HRV, &rd.BloodGlucose); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		rd.Timestamp = time.UnixMilli(ts)
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

// Close flushes and closes the database. Calls after the first return nil.
func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() { err = r.close() })

	return err
}

func (r *repository) close() error {
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for the flusher to finish its final flush
	<-r.flushDoneChan

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.flush(context.Background()); err != nil {
		r.logger.Error().Err(err).Msg("Failed to flush readings on close")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History repository closed")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes buffered readings in one transaction. Callers hold r.mu.
func (r *repository) flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, row := range r.buffer {
		rd := row.Reading
		if _, err := stmt.ExecContext(ctx,
			row.SessionID,
			rd.Timestamp.UnixMilli(),
			rd.HeartRate,
			rd.BloodPressure,
			rd.HRV,
			rd.BloodGlucose,
		); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed readings to database")
	r.buffer = r.buffer[:0]

	return nil
}
