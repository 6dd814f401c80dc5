package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// FileSink persists the history state as a single JSON file, with rotated
// archives written gzip-compressed into a sibling archive directory.
type FileSink struct {
	path       string
	archiveDir string
}

// NewFileSink creates a file-backed sink. Nothing is touched on disk until
// the first Store or Archive call.
func NewFileSink(path, archiveDir string) *FileSink {
	return &FileSink{path: path, archiveDir: archiveDir}
}

// Load reads the persisted state. A missing file is not an error.
func (s *FileSink) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return &st, nil
}

// Store writes the state atomically (temp file + rename) so a crash mid-write
// never leaves a truncated live file.
func (s *FileSink) Store(st *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// Size returns the on-disk size of the live history file.
func (s *FileSink) Size() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// Archive compresses the current history file into archiveDir/name.
// A missing live file is a no-op.
func (s *FileSink) Archive(name string) error {
	src, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open history file for archival: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(s.archiveDir, name))
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		return fmt.Errorf("failed to compress archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return dst.Close()
}

// Close is a no-op for the file sink.
func (s *FileSink) Close() error {
	return nil
}
