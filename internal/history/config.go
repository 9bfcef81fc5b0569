package history

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/envirod/history.db"
)

type Config struct {
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    10,
		BatchTimeout: 5 * time.Minute,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize    int
			BatchTimeout time.Duration
		}{c.BatchSize, c.BatchTimeout})
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
