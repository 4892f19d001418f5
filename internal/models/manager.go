package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// progressStep is how much downloaded data accumulates between progress logs.
const progressStep int64 = 10 << 20

// ErrUnknownVariant is returned when a variant name is not in the manifest.
var ErrUnknownVariant = errors.New("models: unknown variant")

// Manager owns the on-disk model store under <base>/models.
type Manager struct {
	log     *slog.Logger
	baseDir string
	client  *http.Client
}

// NewManager creates the store directory when missing and returns a manager
// rooted at baseDir.
func NewManager(baseDir string, logger *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("models: base directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	manager := &Manager{
		log:     logger.With("component", "models.Manager"),
		baseDir: filepath.Clean(baseDir),
		client:  &http.Client{},
	}
	if err := os.MkdirAll(manager.ModelsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("models: create store: %w", err)
	}
	return manager, nil
}

// ModelsDir returns the directory holding model files.
func (m *Manager) ModelsDir() string {
	return filepath.Join(m.baseDir, "models")
}

// Path returns the store path for a model file name.
func (m *Manager) Path(file string) string {
	return filepath.Join(m.ModelsDir(), file)
}

// Exists reports whether the named model file is present in the store.
func (m *Manager) Exists(file string) bool {
	info, err := os.Stat(m.Path(file))
	return err == nil && !info.IsDir()
}

// Delete removes the named model file from the store.
func (m *Manager) Delete(file string) error {
	if err := os.Remove(m.Path(file)); err != nil {
		return fmt.Errorf("models: delete %s: %w", file, err)
	}
	m.log.Info("model deleted", "file", file)
	return nil
}

// SizeMB returns the size of a stored model file in mebibytes.
func (m *Manager) SizeMB(file string) (float64, error) {
	info, err := os.Stat(m.Path(file))
	if err != nil {
		return 0, fmt.Errorf("models: stat %s: %w", file, err)
	}
	return float64(info.Size()) / (1 << 20), nil
}

// List returns the model files currently in the store, sorted by name.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.ModelsDir())
	if err != nil {
		return nil, fmt.Errorf("models: list store: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".bin") {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

// Resolve picks the model path to load: an explicit override wins, otherwise
// the manifest maps the variant to a store file. The resolved file must
// already exist; Resolve never downloads.
func (m *Manager) Resolve(manifest Manifest, variant, override string) (string, error) {
	if override != "" {
		if info, err := os.Stat(override); err != nil || info.IsDir() {
			return "", fmt.Errorf("models: model override %s not readable", override)
		}
		return override, nil
	}

	v, ok := manifest.Variant(variant)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	if !m.Exists(v.File) {
		return "", fmt.Errorf("models: variant %q not downloaded (expected %s)", variant, m.Path(v.File))
	}
	return m.Path(v.File), nil
}

// EnsureOptions tunes EnsureVariant.
type EnsureOptions struct {
	// Manifest to resolve the variant in. When zero, the embedded manifest
	// is used.
	Manifest Manifest

	// Force re-downloads the file even when it is already present.
	Force bool
}

// EnsureVariant downloads the named variant into the store unless it is
// already present. The file lands via a temp file and rename, and the
// checksum and size are verified when the manifest carries them. Returns the
// final model path.
func (m *Manager) EnsureVariant(ctx context.Context, variant string, opts EnsureOptions) (string, error) {
	manifest := opts.Manifest
	if len(manifest.Variants) == 0 {
		var err error
		if manifest, err = DefaultManifest(); err != nil {
			return "", err
		}
	}

	v, ok := manifest.Variant(variant)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	dest := m.Path(v.File)
	if m.Exists(v.File) && !opts.Force {
		m.log.Info("model already present", "variant", variant, "path", dest)
		return dest, nil
	}
	if v.URL == "" {
		return "", fmt.Errorf("models: variant %q has no download URL", variant)
	}

	m.log.Info("downloading model",
		"variant", variant,
		"url", v.URL,
		"path", dest,
	)
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return "", fmt.Errorf("models: build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: download %q: %w", variant, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models: download %q: unexpected status %s", variant, resp.Status)
	}

	tmp, err := os.CreateTemp(m.ModelsDir(), v.File+".download-*")
	if err != nil {
		return "", fmt.Errorf("models: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher := sha256.New()
	progress := &progressWriter{
		log:     m.log,
		variant: variant,
		total:   resp.ContentLength,
	}
	written, err := io.Copy(io.MultiWriter(tmp, hasher, progress), resp.Body)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("models: download %q: %w", variant, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: finalize download: %w", err)
	}

	if v.SizeBytes > 0 && written != v.SizeBytes {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: download %q: size %d does not match manifest %d", variant, written, v.SizeBytes)
	}
	if v.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, v.SHA256) {
			os.Remove(tmpPath)
			return "", fmt.Errorf("models: download %q: checksum %s does not match manifest %s", variant, sum, v.SHA256)
		}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: move download into store: %w", err)
	}

	m.log.Info("model ready",
		"variant", variant,
		"path", dest,
		"size_mb", written>>20,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return dest, nil
}

// AssetOpener is the slice of the asset source contract the manager needs.
type AssetOpener interface {
	Open(name string) ([]byte, error)
}

// ImportAsset copies a model bundled with the application package into the
// store. Import is skipped when the file already exists; partial files are
// removed on failure. Returns the store path.
func (m *Manager) ImportAsset(src AssetOpener, assetPath string) (string, error) {
	if src == nil {
		return "", errors.New("models: asset source must not be nil")
	}

	file := path.Base(assetPath)
	if file == "." || file == "/" || file == "" {
		return "", fmt.Errorf("models: invalid asset path %q", assetPath)
	}

	dest := m.Path(file)
	if m.Exists(file) {
		m.log.Info("model already imported", "file", file, "path", dest)
		return dest, nil
	}

	data, err := src.Open(assetPath)
	if err != nil {
		return "", fmt.Errorf("models: read asset %s: %w", assetPath, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("models: asset %s is empty", assetPath)
	}

	tmp, err := os.CreateTemp(m.ModelsDir(), file+".import-*")
	if err != nil {
		return "", fmt.Errorf("models: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: write asset %s: %w", assetPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: finalize asset %s: %w", assetPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: move asset into store: %w", err)
	}

	m.log.Info("model imported from asset",
		"asset_path", assetPath,
		"path", dest,
		"bytes", len(data),
	)
	return dest, nil
}

type progressWriter struct {
	log     *slog.Logger
	variant string
	total   int64

	written  int64
	lastMark int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.written-w.lastMark >= progressStep {
		w.lastMark = w.written
		args := []any{
			"variant", w.variant,
			"written_mb", w.written >> 20,
		}
		if w.total > 0 {
			args = append(args, "total_mb", w.total>>20)
		}
		w.log.Info("model download progress", args...)
	}
	return len(p), nil
}
