// Command update_manifest downloads every model referenced by a manifest and
// rewrites the manifest with the measured sizes and SHA-256 checksums. Run it
// after changing model URLs so the daemon can verify downloads.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/voxlay/whisperbridge/internal/models"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "internal/models/embedded_manifest.json", "manifest JSON to update in place")
		only         = flag.String("variant", "", "update a single variant instead of all of them")
	)
	flag.Parse()

	manifest, err := readManifest(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "update_manifest: %v\n", err)
		os.Exit(1)
	}
	if *only != "" {
		if _, ok := manifest.Variant(*only); !ok {
			fmt.Fprintf(os.Stderr, "update_manifest: variant %q not in manifest\n", *only)
			os.Exit(1)
		}
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	failures := 0

	for name, variant := range manifest.Variants {
		if *only != "" && name != *only {
			continue
		}
		if variant.URL == "" {
			fmt.Printf("%s: skipping (no URL)\n", name)
			continue
		}

		size, sum, err := measure(client, variant.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failures++
			continue
		}

		variant.SHA256 = sum
		variant.SizeBytes = size
		manifest.Variants[name] = variant
		fmt.Printf("%s: size=%d sha256=%s\n", name, size, sum)
	}

	if err := writeManifest(*manifestPath, manifest); err != nil {
		fmt.Fprintf(os.Stderr, "update_manifest: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated manifest written to %s\n", *manifestPath)

	if failures > 0 {
		os.Exit(1)
	}
}

// measure streams the model once, returning its byte size and hex checksum.
func measure(client *http.Client, url string) (int64, string, error) {
	fmt.Printf("downloading %s...\n", url)
	resp, err := client.Get(url)
	if err != nil {
		return 0, "", fmt.Errorf("download error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	hasher := sha256.New()
	written, err := io.Copy(hasher, resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read error: %w", err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func readManifest(path string) (models.Manifest, error) {
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

func writeManifest(path string, manifest models.Manifest) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer out.Close()

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(manifest); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}
