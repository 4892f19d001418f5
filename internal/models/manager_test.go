package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxlay/whisperbridge/internal/assets"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func writeStoreFile(t *testing.T, m *Manager, name string, content []byte) {
	t.Helper()

	if err := os.WriteFile(m.Path(name), content, 0o644); err != nil {
		t.Fatalf("write store file %s: %v", name, err)
	}
}

func TestNewManager(t *testing.T) {
	manager := newTestManager(t)

	info, err := os.Stat(manager.ModelsDir())
	if err != nil || !info.IsDir() {
		t.Fatalf("expected store directory at %s: %v", manager.ModelsDir(), err)
	}

	if _, err := NewManager("  ", discardLogger()); err == nil {
		t.Fatalf("expected error for blank base directory")
	}
}

func TestResolve(t *testing.T) {
	manager := newTestManager(t)
	manifest := Manifest{
		SchemaVersion: 1,
		Variants: map[string]Variant{
			"base": {File: "ggml-base.en.bin"},
		},
	}

	if _, err := manager.Resolve(manifest, "base", ""); err == nil {
		t.Fatalf("expected error for variant that was never downloaded")
	}

	writeStoreFile(t, manager, "ggml-base.en.bin", []byte("weights"))
	path, err := manager.Resolve(manifest, "base", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != manager.Path("ggml-base.en.bin") {
		t.Fatalf("unexpected resolved path: %s", path)
	}

	if _, err := manager.Resolve(manifest, "huge", ""); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}

	override := filepath.Join(t.TempDir(), "custom.bin")
	if err := os.WriteFile(override, []byte("custom"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	path, err = manager.Resolve(manifest, "base", override)
	if err != nil {
		t.Fatalf("Resolve with override: %v", err)
	}
	if path != override {
		t.Fatalf("expected override to win, got %s", path)
	}

	if _, err := manager.Resolve(manifest, "base", filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatalf("expected error for unreadable override")
	}
}

func TestEnsureVariantDownloads(t *testing.T) {
	payload := []byte("fake ggml weights for download tests")
	sum := sha256.Sum256(payload)

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(payload)
	}))
	defer server.Close()

	manager := newTestManager(t)
	manifest := Manifest{
		SchemaVersion: 1,
		Variants: map[string]Variant{
			"base": {
				File:      "ggml-base.en.bin",
				URL:       server.URL + "/ggml-base.en.bin",
				SHA256:    hex.EncodeToString(sum[:]),
				SizeBytes: int64(len(payload)),
			},
		},
	}

	path, err := manager.EnsureVariant(context.Background(), "base", EnsureOptions{Manifest: manifest})
	if err != nil {
		t.Fatalf("EnsureVariant: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded model: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("downloaded content mismatch")
	}

	if _, err := manager.EnsureVariant(context.Background(), "base", EnsureOptions{Manifest: manifest}); err != nil {
		t.Fatalf("EnsureVariant on present file: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single download, server saw %d", hits.Load())
	}

	if _, err := manager.EnsureVariant(context.Background(), "huge", EnsureOptions{Manifest: manifest}); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestEnsureVariantChecksumMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered payload"))
	}))
	defer server.Close()

	manager := newTestManager(t)
	manifest := Manifest{
		SchemaVersion: 1,
		Variants: map[string]Variant{
			"base": {
				File:   "ggml-base.en.bin",
				URL:    server.URL,
				SHA256: "deadbeef",
			},
		},
	}

	if _, err := manager.EnsureVariant(context.Background(), "base", EnsureOptions{Manifest: manifest}); err == nil {
		t.Fatalf("expected checksum error")
	}

	files, err := manager.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty store after failed download, got %v", files)
	}
	entries, err := os.ReadDir(manager.ModelsDir())
	if err != nil {
		t.Fatalf("read store dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover temp files, got %v", entries)
	}
}

func TestEnsureVariantHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	manager := newTestManager(t)
	manifest := Manifest{
		SchemaVersion: 1,
		Variants: map[string]Variant{
			"base": {File: "ggml-base.en.bin", URL: server.URL},
		},
	}

	if _, err := manager.EnsureVariant(context.Background(), "base", EnsureOptions{Manifest: manifest}); err == nil {
		t.Fatalf("expected error for HTTP 404")
	}
}

func TestImportAsset(t *testing.T) {
	assetDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(assetDir, "models"), 0o755); err != nil {
		t.Fatalf("mkdir assets: %v", err)
	}
	assetPath := filepath.Join(assetDir, "models", "ggml-tiny.en.bin")
	if err := os.WriteFile(assetPath, []byte("bundled weights"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	manager := newTestManager(t)
	src := assets.Dir(assetDir)

	path, err := manager.ImportAsset(src, "models/ggml-tiny.en.bin")
	if err != nil {
		t.Fatalf("ImportAsset: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read imported model: %v", err)
	}
	if string(got) != "bundled weights" {
		t.Fatalf("imported content mismatch: %q", got)
	}

	// A second import must skip the copy and keep the stored bytes.
	if err := os.WriteFile(assetPath, []byte("changed upstream"), 0o644); err != nil {
		t.Fatalf("rewrite asset: %v", err)
	}
	if _, err := manager.ImportAsset(src, "models/ggml-tiny.en.bin"); err != nil {
		t.Fatalf("ImportAsset skip: %v", err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("re-read imported model: %v", err)
	}
	if string(got) != "bundled weights" {
		t.Fatalf("expected existing model to be kept, got %q", got)
	}
}

func TestImportAssetFailures(t *testing.T) {
	manager := newTestManager(t)
	src := assets.Dir(t.TempDir())

	if _, err := manager.ImportAsset(nil, "models/ggml-tiny.en.bin"); err == nil {
		t.Fatalf("expected error for nil source")
	}
	if _, err := manager.ImportAsset(src, "models/absent.bin"); err == nil {
		t.Fatalf("expected error for missing asset")
	}

	empty := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty asset: %v", err)
	}
	if _, err := manager.ImportAsset(assets.Dir(filepath.Dir(empty)), "empty.bin"); err == nil {
		t.Fatalf("expected error for empty asset")
	}

	entries, err := os.ReadDir(manager.ModelsDir())
	if err != nil {
		t.Fatalf("read store dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no partial files after failures, got %v", entries)
	}
}

func TestListDeleteAndSize(t *testing.T) {
	manager := newTestManager(t)
	writeStoreFile(t, manager, "ggml-base.en.bin", make([]byte, 2<<20))
	writeStoreFile(t, manager, "ggml-tiny.en.bin", []byte("tiny"))
	writeStoreFile(t, manager, "notes.txt", []byte("ignore me"))

	files, err := manager.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 || files[0] != "ggml-base.en.bin" || files[1] != "ggml-tiny.en.bin" {
		t.Fatalf("unexpected listing: %v", files)
	}

	size, err := manager.SizeMB("ggml-base.en.bin")
	if err != nil {
		t.Fatalf("SizeMB: %v", err)
	}
	if size != 2 {
		t.Fatalf("unexpected size: %v", size)
	}

	if !manager.Exists("ggml-tiny.en.bin") {
		t.Fatalf("expected tiny model to exist")
	}
	if err := manager.Delete("ggml-tiny.en.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if manager.Exists("ggml-tiny.en.bin") {
		t.Fatalf("expected tiny model to be gone")
	}
	if err := manager.Delete("ggml-tiny.en.bin"); err == nil {
		t.Fatalf("expected error deleting missing model")
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	manager := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- manager.Watch(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	writeStoreFile(t, manager, "ggml-base.en.bin", []byte("weights"))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop after cancel")
	}
}
