package engine

import (
	"fmt"
	"log/slog"
	"strings"
)

// Backend selection modes accepted by New.
const (
	ModeAuto   = "auto"
	ModeNative = "native"
	ModeStub   = "stub"
)

// New resolves a backend for the requested mode. Auto prefers the native
// whisper.cpp binding and falls back to the stub backend with a warning
// when the native library is not compiled in or fails to initialise.
func New(mode string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeNative:
		backend, err := NewNativeBackend(logger)
		if err != nil {
			return nil, fmt.Errorf("engine: native backend requested: %w", err)
		}
		return backend, nil

	case ModeStub:
		logger.Warn("stub backend forced by configuration")
		return NewStubBackend(logger), nil

	case ModeAuto, "":
		if NativeAvailable() {
			backend, err := NewNativeBackend(logger)
			if err == nil {
				logger.Info("native backend ready")
				return backend, nil
			}
			logger.Error("native backend initialisation failed; using stub", "error", err)
			return NewStubBackend(logger), nil
		}
		logger.Warn("native backend disabled at build time; using stub backend")
		return NewStubBackend(logger), nil

	default:
		return nil, fmt.Errorf("engine: unknown backend mode %q", mode)
	}
}
