package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// StubBackend produces deterministic transcripts without invoking
// whisper.cpp. Model loading only checks that weights exist and are
// non-empty; transcription derives one segment per started second of
// 16 kHz audio with reproducible text.
type StubBackend struct {
	log *slog.Logger
}

// NewStubBackend returns a Backend that generates placeholder transcripts.
func NewStubBackend(logger *slog.Logger) *StubBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubBackend{
		log: logger.With("component", "engine.stub"),
	}
}

// Name implements the Backend interface.
func (b *StubBackend) Name() string { return "stub" }

// NewContextFromFile implements the Backend interface.
func (b *StubBackend) NewContextFromFile(path string) (Context, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stub: open model: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("stub: model %s is empty", path)
	}
	return &stubContext{log: b.log, model: filepath.Base(path)}, nil
}

// NewContextFromBuffer implements the Backend interface.
func (b *StubBackend) NewContextFromBuffer(data []byte) (Context, error) {
	if len(data) == 0 {
		return nil, errors.New("stub: model buffer is empty")
	}
	return &stubContext{log: b.log, model: fmt.Sprintf("buffer-%d", len(data))}, nil
}

type stubContext struct {
	log   *slog.Logger
	model string

	mu       sync.Mutex
	closed   bool
	segments []string
}

// Full implements the Context interface.
func (c *stubContext) Full(params FullParams, samples []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if len(samples) == 0 {
		return ErrNoAudio
	}

	seconds := (len(samples) + SampleRate - 1) / SampleRate
	segments := make([]string, seconds)
	for i := range segments {
		segments[i] = fmt.Sprintf("[stub:%s] window %d of %d over %d samples", c.model, i+1, seconds, len(samples))
	}
	c.segments = segments

	c.log.Debug("stub transcription",
		"model", c.model,
		"samples", len(samples),
		"threads", params.Threads,
		"segments", len(segments),
	)
	return nil
}

// SegmentCount implements the Context interface.
func (c *stubContext) SegmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return len(c.segments)
}

// SegmentText implements the Context interface.
func (c *stubContext) SegmentText(index int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || index < 0 || index >= len(c.segments) {
		return ""
	}
	return c.segments[index]
}

// Close implements the Context interface.
func (c *stubContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.segments = nil
	return nil
}
