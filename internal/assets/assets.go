// Package assets abstracts the platform asset manager used as an alternate
// source of model weight bytes: open a bundled read-only resource by path
// and receive its full contents.
package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrInvalidPath indicates an asset name that escapes the source root.
var ErrInvalidPath = errors.New("assets: invalid asset path")

// Source provides read access to bundled read-only resources. Names are
// slash-separated relative paths, matching mobile asset-manager semantics.
type Source interface {
	Open(name string) ([]byte, error)
}

// Dir serves assets from a filesystem directory, in the manner of http.Dir.
type Dir string

// Open reads the named asset from the directory. Names that are absolute
// or traverse outside the directory are rejected.
func (d Dir) Open(name string) ([]byte, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) {
		return nil, ErrInvalidPath
	}
	return os.ReadFile(filepath.Join(string(d), local))
}

// FS serves assets from an fs.FS, which includes embed.FS bundles.
type FS struct {
	fsys fs.FS
}

// NewFS wraps an fs.FS as an asset source.
func NewFS(fsys fs.FS) FS {
	return FS{fsys: fsys}
}

// Open reads the named asset. Name validity follows fs.ValidPath.
func (f FS) Open(name string) ([]byte, error) {
	if f.fsys == nil {
		return nil, ErrInvalidPath
	}
	if !fs.ValidPath(name) {
		return nil, ErrInvalidPath
	}
	return fs.ReadFile(f.fsys, name)
}

// ReaderFunc adapts a host-provided callback into a Source.
type ReaderFunc func(name string) ([]byte, error)

// Open invokes the callback.
func (f ReaderFunc) Open(name string) ([]byte, error) {
	return f(name)
}
