package history

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "camvitals.db"
)

type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	// BackupDir receives a copy of the database before a schema change.
	// Empty means a "backups" directory next to the database.
	BackupDir    string        `mapstructure:"backup_dir"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false, // Disabled by default
		DBPath:       defaultDBPath,
		BatchSize:    20,
		BatchTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate paths if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "history: batch_size and batch_timeout must not be negative")
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
