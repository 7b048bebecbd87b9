package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDataDirs_UsesEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv(dataDirEnv, dir)

	if err := EnsureDataDirs(); err != nil {
		t.Fatalf("EnsureDataDirs failed: %v", err)
	}
	if got := GetDBPath(); got != filepath.Join(dir, "local.db") {
		t.Fatalf("unexpected db path: got=%q", got)
	}
	if _, err := os.Stat(GetLogDir()); err != nil {
		t.Fatalf("log dir was not created: %v", err)
	}
}
