package publish

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSet_Commit(t *testing.T) {
	dir := t.TempDir()

	s := NewSet()
	for _, name := range []string{"out/firms.jsonld", "out/dataset.jsonld", "out/manifest.json"} {
		if err := s.Add(filepath.Join(dir, name), []byte(name)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	written, err := s.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(written) != 3 || filepath.Base(written[2]) != "manifest.json" {
		t.Errorf("written = %v, want manifest last", written)
	}

	for _, path := range written {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}

		if _, err := os.Stat(path + tmpSuffix); !os.IsNotExist(err) {
			t.Errorf("temp file left behind for %s", path)
		}

		if len(data) == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}

func TestSet_CommitFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()

	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	good := filepath.Join(dir, "firms.jsonld")

	s := NewSet()
	_ = s.Add(good, []byte("{}"))
	_ = s.Add(filepath.Join(blocker, "manifest.json"), []byte("{}"))

	if _, err := s.Commit(); err == nil {
		t.Fatal("expected Commit to fail")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range entries {
		if e.Name() != "blocker" {
			t.Errorf("unexpected file left after failed commit: %s", e.Name())
		}
	}
}

func TestSet_RenameFailureRestoresPreviousSet(t *testing.T) {
	dir := t.TempDir()

	firms := filepath.Join(dir, "firms.jsonld")
	if err := os.WriteFile(firms, []byte("previous"), 0o600); err != nil {
		t.Fatal(err)
	}

	// A non-empty directory at the manifest path makes its rename fail
	// after the other files have landed.
	manifestDir := filepath.Join(dir, "manifest.jsonld")
	if err := os.MkdirAll(filepath.Join(manifestDir, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	dataset := filepath.Join(dir, "dataset.jsonld")

	s := NewSet()
	_ = s.Add(firms, []byte("next"))
	_ = s.Add(dataset, []byte("next"))
	_ = s.Add(manifestDir, []byte("{}"))

	written, err := s.Commit()
	if err == nil {
		t.Fatal("expected Commit to fail")
	}

	if len(written) != 0 {
		t.Errorf("written = %v, want nothing reported after rollback", written)
	}

	data, err := os.ReadFile(firms)
	if err != nil {
		t.Fatalf("previous firms file missing: %v", err)
	}

	if string(data) != "previous" {
		t.Errorf("firms content = %q, want the previous content", data)
	}

	if _, err := os.Stat(dataset); !os.IsNotExist(err) {
		t.Error("newly placed dataset should be removed on rollback")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range entries {
		switch e.Name() {
		case "firms.jsonld", "manifest.jsonld":
		default:
			t.Errorf("unexpected file left after failed commit: %s", e.Name())
		}
	}
}

func TestSet_CommitReplacesAndDropsBackups(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "firms.jsonld")
	if err := os.WriteFile(path, []byte("previous"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewSet()
	_ = s.Add(path, []byte("next"))

	if _, err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "next" {
		t.Errorf("content = %q, want %q", data, "next")
	}

	if _, err := os.Stat(path + backupSuffix); !os.IsNotExist(err) {
		t.Error("backup left behind after a successful commit")
	}
}

func TestSet_DuplicatePath(t *testing.T) {
	s := NewSet()
	_ = s.Add("out/a.json", nil)

	if err := s.Add("out/./a.json", nil); !errors.Is(err, ErrDuplicatePath) {
		t.Errorf("error = %v, want ErrDuplicatePath", err)
	}

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
