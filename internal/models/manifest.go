// Package models manages ggml model weights on disk: a manifest of known
// variants, a store under <base>/models with download and asset-import
// paths, and a directory watcher.
package models

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
)

// manifestSchemaVersion is the only schema this build understands.
const manifestSchemaVersion = 1

//go:embed embedded_manifest.json
var embeddedManifest []byte

// Variant describes one downloadable model build.
type Variant struct {
	File      string `json:"file"`
	URL       string `json:"url"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// Manifest maps variant names (tiny, base, ...) to model builds.
type Manifest struct {
	SchemaVersion int                `json:"schema_version"`
	Variants      map[string]Variant `json:"variants"`
}

// Variant looks up a variant by name.
func (m Manifest) Variant(name string) (Variant, bool) {
	variant, ok := m.Variants[name]
	return variant, ok
}

// LoadManifest parses and validates a manifest document.
func LoadManifest(r io.Reader) (Manifest, error) {
	var manifest Manifest

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("models: parse manifest: %w", err)
	}

	if manifest.SchemaVersion != manifestSchemaVersion {
		return Manifest{}, fmt.Errorf("models: unsupported manifest schema %d", manifest.SchemaVersion)
	}
	if len(manifest.Variants) == 0 {
		return Manifest{}, fmt.Errorf("models: manifest defines no variants")
	}
	for name, variant := range manifest.Variants {
		if variant.File == "" {
			return Manifest{}, fmt.Errorf("models: variant %q has no file name", name)
		}
	}
	return manifest, nil
}

// DefaultManifest returns the manifest embedded into the binary.
func DefaultManifest() (Manifest, error) {
	return LoadManifest(bytes.NewReader(embeddedManifest))
}
