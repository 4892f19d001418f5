package models

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch logs model files appearing in and disappearing from the store until
// the context ends. Temp files from in-flight downloads and imports are
// ignored.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("models: start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.ModelsDir()); err != nil {
		return fmt.Errorf("models: watch %s: %w", m.ModelsDir(), err)
	}
	m.log.Info("watching model store", "dir", m.ModelsDir())

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			file := filepath.Base(event.Name)
			if !strings.HasSuffix(file, ".bin") {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Create):
				m.log.Info("model added", "file", file)
			case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
				m.log.Info("model removed", "file", file)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("model watcher error", "error", err)
		}
	}
}
