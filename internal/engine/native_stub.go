//go:build !whispercpp

package engine

import "log/slog"

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return false }

// NewNativeBackend returns an error when the native backend is not built.
func NewNativeBackend(logger *slog.Logger) (*NativeBackend, error) {
	return nil, ErrNativeUnavailable
}

// NativeBackend is a placeholder that satisfies the Backend interface when
// the native library is absent.
type NativeBackend struct{}

func (b *NativeBackend) Name() string { return "whispercpp" }

func (b *NativeBackend) NewContextFromFile(path string) (Context, error) {
	return nil, ErrNativeUnavailable
}

func (b *NativeBackend) NewContextFromBuffer(data []byte) (Context, error) {
	return nil, ErrNativeUnavailable
}
