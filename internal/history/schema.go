package history

import (
	"database/sql"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id                 TEXT PRIMARY KEY,
	       started_at         INTEGER NOT NULL,
	       finished_at        INTEGER NOT NULL,
	       avg_heart_rate     INTEGER NOT NULL,
	       avg_blood_pressure TEXT NOT NULL,
	       avg_hrv            REAL NOT NULL,
	       avg_glucose        INTEGER NOT NULL,
	       confidence         INTEGER NOT NULL CHECK (confidence BETWEEN 0 AND 100),
	       total_readings     INTEGER NOT NULL CHECK (total_readings >= 0)
	   );
	   CREATE TABLE IF NOT EXISTS readings (
	       session_id     TEXT NOT NULL,
	       timestamp      INTEGER NOT NULL,
	       heart_rate     REAL NOT NULL,
	       blood_pressure TEXT NOT NULL,
	       hrv            REAL NOT NULL,
	       blood_glucose  REAL NOT NULL,
	       PRIMARY KEY (session_id, timestamp)
	   );`

	insertReadingSQL = `
    INSERT OR REPLACE INTO readings (
        session_id, timestamp,
        heart_rate, blood_pressure, hrv, blood_glucose
    ) VALUES (?, ?, ?, ?, ?, ?)`

	insertSessionSQL = `
    INSERT OR REPLACE INTO sessions (
        id, started_at, finished_at,
        avg_heart_rate, avg_blood_pressure, avg_hrv, avg_glucose,
        confidence, total_readings
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSessionsSQL = `
    SELECT id, started_at, finished_at,
           avg_heart_rate, avg_blood_pressure, avg_hrv, avg_glucose,
           confidence, total_readings
    FROM sessions
    ORDER BY started_at DESC
    LIMIT ?`

	selectReadingsSQL = `
    SELECT timestamp, heart_rate, blood_pressure, hrv, blood_glucose
    FROM readings
    WHERE session_id = ?
    ORDER BY timestamp`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating history database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("History schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for a new database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
