package filestore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_SaveOpenDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	ctx := context.Background()

	path, err := store.Save(ctx, "user/../1", "idProof", "Passport.PDF", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if !strings.HasPrefix(path, "user____1/idProof-") || !strings.HasSuffix(path, ".pdf") {
		t.Fatalf("unexpected stored path %q", path)
	}

	f, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil || string(content) != "%PDF-1.7" {
		t.Fatalf("unexpected content %q (err=%v)", content, err)
	}

	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(path))); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file to be removed, got %v", err)
	}
	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("deleting a missing file should succeed, got %v", err)
	}
}

func TestLocal_RejectsUnsupportedExtensions(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	_, err = store.Save(context.Background(), "user-1", "idProof", "script.exe", strings.NewReader("MZ"))
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestLocal_RefusesPathsOutsideRoot(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	if _, err := store.Open("../../etc/passwd"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := store.Delete(context.Background(), "../outside.pdf"); err == nil {
		t.Fatal("expected delete outside the root to fail")
	}
}

func TestLocal_StopsOnCancelledContext(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Save(ctx, "user-1", "idProof", "id.png", strings.NewReader("png")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
