package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	content := []byte("hello world")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestMoveFileCreatesParent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "1.jpg")
	dst := filepath.Join(dir, "covers", "42.jpg")
	if err := os.WriteFile(src, []byte("cover"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, stat err=%v", err)
	}
	if got, err := os.ReadFile(dst); err != nil || string(got) != "cover" {
		t.Fatalf("unexpected destination content %q err=%v", got, err)
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "3.png")

	n, err := WriteAtomic(path, strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if n != int64(len("pixels")) {
		t.Fatalf("unexpected byte count %d", n)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected no partial file left, stat err=%v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteAtomicRemovesPartialOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "4.jpg")

	if _, err := WriteAtomic(path, failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}
}
