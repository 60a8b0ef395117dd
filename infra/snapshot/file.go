// Package snapshot mirrors the latest power readings to a file in the
// runtime directory for local consumers.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qetesh/bratwurstpower/core/model"
)

// FileName is the name of the mirrored document.
const FileName = "powerstats.json"

// FileSink writes the powerstats document on every snapshot.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing into dir. The directory is not created;
// while it is missing snapshots are skipped.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Path returns the file the sink writes.
func (s *FileSink) Path() string { return filepath.Join(s.dir, FileName) }

// HandleSnapshot replaces the file with the current readings. The write goes
// through a temporary file so readers never see a partial document.
func (s *FileSink) HandleSnapshot(_ context.Context, snap model.Snapshot) error {
	if s.dir == "" {
		return nil
	}
	if fi, err := os.Stat(s.dir); err != nil || !fi.IsDir() {
		return nil
	}
	data, err := json.Marshal(snap.Power)
	if err != nil {
		return fmt.Errorf("encode powerstats: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".powerstats-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("replace %s: %w", s.Path(), err)
	}
	return nil
}
