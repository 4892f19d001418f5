// Command download_model fetches a whisper.cpp model variant into a local
// model store so the daemon can load it without network access.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxlay/whisperbridge/internal/models"
)

func main() {
	var (
		variant      = flag.String("variant", "base", "model variant defined in the manifest")
		output       = flag.String("dir", "data", "base directory where models/<file> will be stored")
		manifestPath = flag.String("manifest", "", "manifest JSON overriding the embedded one")
		force        = flag.Bool("force", false, "re-download even when the model is already present")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	manager, err := models.NewManager(filepath.Clean(*output), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: init manager: %v\n", err)
		os.Exit(1)
	}

	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: %v\n", err)
		os.Exit(1)
	}

	path, err := manager.EnsureVariant(ctx, *variant, models.EnsureOptions{
		Manifest: manifest,
		Force:    *force,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: ensure variant %q: %v\n", *variant, err)
		os.Exit(1)
	}

	fmt.Printf("Model %q ready at %s\n", *variant, path)
}

// loadManifest reads the manifest from the given path, or falls back to the
// manifest embedded into the binary.
func loadManifest(path string) (models.Manifest, error) {
	if path == "" {
		manifest, err := models.DefaultManifest()
		if err != nil {
			return models.Manifest{}, fmt.Errorf("load embedded manifest: %w", err)
		}
		return manifest, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return models.Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	manifest, err := models.LoadManifest(file)
	if err != nil {
		return models.Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return manifest, nil
}
