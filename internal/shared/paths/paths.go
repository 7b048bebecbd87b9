package paths

import (
	"os"
	"path/filepath"
)

const dataDirEnv = "SPINWHEEL_DATA_DIR"

// GetDataDir returns the data directory ($SPINWHEEL_DATA_DIR or ~/.spinwheel).
func GetDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spinwheel"
	}
	return filepath.Join(home, ".spinwheel")
}

// GetDBPath returns the sqlite database path.
func GetDBPath() string {
	return filepath.Join(GetDataDir(), "local.db")
}

// GetLogDir returns the directory used for rotated log files.
func GetLogDir() string {
	return filepath.Join(GetDataDir(), "logs")
}

// EnsureDataDirs creates the data and log directories.
func EnsureDataDirs() error {
	for _, dir := range []string{GetDataDir(), GetLogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
