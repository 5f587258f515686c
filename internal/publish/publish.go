// Package publish writes a run's output files as one all-or-nothing set.
package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrDuplicatePath is returned when two files in a set share a path.
var ErrDuplicatePath = errors.New("duplicate output path")

const (
	tmpSuffix    = ".tmp"
	backupSuffix = ".bak"
)

type file struct {
	path string
	data []byte
}

// Set is an ordered group of files published together. Files are renamed
// into place in the order they were added, so the manifest goes last.
type Set struct {
	files []file
	seen  map[string]bool
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[string]bool)}
}

// Add queues data for path.
func (s *Set) Add(path string, data []byte) error {
	clean := filepath.Clean(path)
	if s.seen[clean] {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, path)
	}

	s.seen[clean] = true
	s.files = append(s.files, file{path: clean, data: data})

	return nil
}

// Len returns the number of queued files.
func (s *Set) Len() int {
	return len(s.files)
}

// Commit writes every file to "<path>.tmp" and fsyncs it. Only when all
// temp files are staged are they renamed into place. On a staging failure
// every temp file is removed and no final path is touched.
//
// An existing regular file at a final path is moved to "<path>.bak" before
// its replacement lands. If any rename fails, files already placed are
// removed and their backups restored, so the previous set stays intact.
// Backups are removed once every file is in place.
func (s *Set) Commit() ([]string, error) {
	staged := make([]string, 0, len(s.files))

	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}

	for _, f := range s.files {
		tmp, err := stage(f)
		if err != nil {
			cleanup()
			return nil, err
		}

		staged = append(staged, tmp)
	}

	placed := make([]placement, 0, len(s.files))

	for i, f := range s.files {
		p, err := place(staged[i], f.path)
		if err != nil {
			staged = staged[i:]
			cleanup()
			rollback(placed)

			return nil, err
		}

		placed = append(placed, p)
	}

	written := make([]string, 0, len(placed))

	for _, p := range placed {
		if p.backup != "" {
			os.Remove(p.backup)
		}

		written = append(written, p.path)
	}

	return written, nil
}

// placement records a file renamed into place and the backup of what it
// replaced, if anything.
type placement struct {
	path   string
	backup string
}

func place(tmp, path string) (placement, error) {
	p := placement{path: path}

	if info, err := os.Lstat(path); err == nil && info.Mode().IsRegular() {
		p.backup = path + backupSuffix
		if err := os.Rename(path, p.backup); err != nil {
			return placement{}, fmt.Errorf("backing up %s: %w", path, err)
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		if p.backup != "" {
			os.Rename(p.backup, path)
		}

		return placement{}, fmt.Errorf("renaming %s into place: %w", path, err)
	}

	return p, nil
}

// rollback undoes placements newest first.
func rollback(placed []placement) {
	for i := len(placed) - 1; i >= 0; i-- {
		p := placed[i]

		if p.backup != "" {
			os.Rename(p.backup, p.path)
			continue
		}

		os.Remove(p.path)
	}
}

func stage(f file) (string, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", f.path, err)
	}

	tmp := f.path + tmpSuffix

	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}

	if _, err := out.Write(f.data); err != nil {
		out.Close()
		os.Remove(tmp)

		return "", fmt.Errorf("writing temporary file: %w", err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)

		return "", fmt.Errorf("syncing temporary file: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("closing temporary file: %w", err)
	}

	return tmp, nil
}
