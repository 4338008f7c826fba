package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_TempAndRename(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()
	target := filepath.Join(dir, "target.log")

	if err := os.WriteFile(target, []byte("old"), 0644); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	tmp, err := fs.CreateTemp(dir, ".target-*")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	if _, err := tmp.Write([]byte("new")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := fs.Rename(tmp.Name(), target); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	data, err := fs.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("expected %q, got %q", "new", data)
	}
	if fs.Exists(tmp.Name()) {
		t.Error("temp file should be gone after rename")
	}
}

func TestOSFileSystem_GlobAndOpen(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	if err := fs.MkdirAll(filepath.Join(dir, "a", "b"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	w, err := fs.Create(filepath.Join(dir, "a", "b", "x.log"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Write([]byte("content"))
	w.Close()

	matches, err := fs.Glob(filepath.Join(dir, "*", "*", "*.log"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %v", matches)
	}

	r, err := fs.Open(matches[0])
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "content" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/created.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Write([]byte("hello"))

	data, _ := mfs.ReadFile("/created.txt")
	if len(data) != 0 {
		t.Errorf("expected empty content before close, got %q", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, _ = mfs.ReadFile("/created.txt")
	if string(data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", data)
	}
	if err := w.Close(); err == nil {
		t.Error("expected error on double close")
	}
}

func TestMemoryFileSystem_CreateTempUnique(t *testing.T) {
	mfs := NewMemoryFileSystem()

	a, _ := mfs.CreateTemp("/dir", ".scan-*.tmp")
	b, _ := mfs.CreateTemp("/dir", ".scan-*.tmp")
	if a.Name() == b.Name() {
		t.Fatalf("temp names should differ: %s", a.Name())
	}
	if filepath.Dir(a.Name()) != "/dir" {
		t.Errorf("temp file created outside dir: %s", a.Name())
	}
	if filepath.Ext(a.Name()) != ".tmp" {
		t.Errorf("pattern suffix not kept: %s", a.Name())
	}
}

func TestMemoryFileSystem_RenameReplaces(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/old", []byte("old"))
	mfs.WriteFile("/new", []byte("new"))

	if err := mfs.Rename("/new", "/old"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	data, _ := mfs.ReadFile("/old")
	if string(data) != "new" {
		t.Errorf("expected replaced content, got %q", data)
	}
	if mfs.Exists("/new") {
		t.Error("source should not exist after rename")
	}
	if err := mfs.Rename("/missing", "/old"); err == nil {
		t.Error("expected error renaming missing file")
	}
}

func TestMemoryFileSystem_RemoveAndExists(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.MkdirAll("/a/b/c", 0755)
	mfs.WriteFile("/a/b/c/file", []byte("x"))

	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/b/c/file"} {
		if !mfs.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if err := mfs.Remove("/a/b/c/file"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/a/b/c/file") {
		t.Error("file should be removed")
	}
	if err := mfs.Remove("/nope"); err == nil {
		t.Error("expected error removing missing path")
	}
}

func TestMemoryFileSystem_Glob(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("logs/d1/a.log", nil)
	mfs.WriteFile("logs/d2/b.log", nil)
	mfs.WriteFile("other/c.log", nil)

	matches, err := mfs.Glob("logs/*/*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 || matches[0] != "logs/d1/a.log" || matches[1] != "logs/d2/b.log" {
		t.Errorf("unexpected matches %v", matches)
	}
}

func TestMemoryFileSystem_DataIsolation(t *testing.T) {
	mfs := NewMemoryFileSystem()
	original := []byte("original")
	mfs.WriteFile("/f", original)
	original[0] = 'X'

	data, _ := mfs.ReadFile("/f")
	if string(data) != "original" {
		t.Errorf("stored data was aliased: %q", data)
	}
	data[0] = 'Y'
	again, _ := mfs.ReadFile("/f")
	if string(again) != "original" {
		t.Errorf("returned data was aliased: %q", again)
	}
}
