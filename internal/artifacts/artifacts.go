// Package artifacts manages the shared chart directory. The directory is a
// shared mutable resource across concurrent runs, so every run gets a
// collision-free file name; the presentation layer identifies the freshest
// chart either by the per-run path it was handed or by modification time.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	dir string
}

// NewStore creates the artifact directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// ChartPath returns a unique chart location for the given run. Successive
// calls within one run also differ, so a re-dispatched plot never overwrites
// an earlier artifact.
func (s *Store) ChartPath(runID string) string {
	short := runID
	if i := strings.IndexByte(short, '-'); i > 0 {
		short = short[:i]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(s.dir, fmt.Sprintf("chart_%s_%s.png", short, suffix))
}

// Exists reports whether a non-empty artifact is present at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Latest returns the most recently modified chart in the directory.
func (s *Store) Latest() (string, time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read artifact directory: %w", err)
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest = filepath.Join(s.dir, e.Name())
			latestAt = info.ModTime()
		}
	}
	if latest == "" {
		return "", time.Time{}, os.ErrNotExist
	}
	return latest, latestAt, nil
}
