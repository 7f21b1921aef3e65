package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// tempPaths returns unique, per-run JSONL and CSV paths under dir.
func tempPaths(dir string) (jsonlPath, csvPath string) {
	name := fmt.Sprintf("vtagger-run-%s", uuid.NewString())
	return filepath.Join(dir, name+".jsonl"), filepath.Join(dir, name+".csv")
}

// cleanupFiles unconditionally removes the given paths, ignoring
// not-exist errors; called on every run-end code path.
func cleanupFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("path", p).Err(err).Msg("failed to remove temp file")
		}
	}
}
