package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Recorder tracks bridge-level telemetry that can be surfaced over the status
// endpoint or logged at shutdown.
type Recorder struct {
	log *slog.Logger

	totalContexts        atomic.Uint64
	activeContexts       atomic.Int64
	invalidHandleCalls   atomic.Uint64
	totalTranscriptions  atomic.Uint64
	failedTranscriptions atomic.Uint64
	totalSegments        atomic.Uint64
	totalSamples         atomic.Uint64
	legacyCalls          atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalContexts        uint64
	ActiveContexts       int64
	InvalidHandleCalls   uint64
	TotalTranscriptions  uint64
	FailedTranscriptions uint64
	TotalSegments        uint64
	TotalSamples         uint64
	LegacyCalls          uint64
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalContexts:        r.totalContexts.Load(),
		ActiveContexts:       r.activeContexts.Load(),
		InvalidHandleCalls:   r.invalidHandleCalls.Load(),
		TotalTranscriptions:  r.totalTranscriptions.Load(),
		FailedTranscriptions: r.failedTranscriptions.Load(),
		TotalSegments:        r.totalSegments.Load(),
		TotalSamples:         r.totalSamples.Load(),
		LegacyCalls:          r.legacyCalls.Load(),
	}
}

// ContextOpened updates counters after a context handle is issued.
func (r *Recorder) ContextOpened() {
	if r == nil {
		return
	}
	r.totalContexts.Add(1)
	r.activeContexts.Add(1)
}

// ContextReleased updates counters after a context handle is freed.
func (r *Recorder) ContextReleased() {
	if r == nil {
		return
	}
	r.activeContexts.Add(-1)
}

// InvalidHandle counts a boundary call that named an unknown or null handle.
func (r *Recorder) InvalidHandle() {
	if r == nil {
		return
	}
	r.invalidHandleCalls.Add(1)
}

// LegacyCall counts an invocation of the one-shot compatibility entry point.
func (r *Recorder) LegacyCall() {
	if r == nil {
		return
	}
	r.legacyCalls.Add(1)
}

// TranscriptionMetrics accumulates statistics for a single transcription run.
type TranscriptionMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	source  string
	samples int

	started  time.Time
	segments int
	closed   atomic.Bool
}

// StartTranscription initialises a TranscriptionMetrics instance bound to the
// recorder. Source names the entry point that triggered the run.
func (r *Recorder) StartTranscription(source string, samples int) *TranscriptionMetrics {
	if r == nil {
		return nil
	}

	r.totalTranscriptions.Add(1)
	if samples > 0 {
		r.totalSamples.Add(uint64(samples))
	}

	return &TranscriptionMetrics{
		recorder: r,
		log: r.log.With(
			"source", source,
			"samples", samples,
		),

		source:  source,
		samples: samples,

		started: time.Now(),
	}
}

// RecordSegments updates counters for segments produced by a completed run.
func (m *TranscriptionMetrics) RecordSegments(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.segments += count
	m.recorder.totalSegments.Add(uint64(count))
}

// RecordTranscript stores statistics for an assembled transcript.
func (m *TranscriptionMetrics) RecordTranscript(text string) {
	if m == nil {
		return
	}
	m.log.Debug("transcript assembled",
		"chars", len(text),
		"runes", utf8.RuneCountInString(text),
	)
}

// Finish logs a summary for the transcription run. It is safe to call more
// than once; only the first call is recorded.
func (m *TranscriptionMetrics) Finish(err error) {
	if m == nil {
		return
	}
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	duration := time.Since(m.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"samples", m.samples,
		"segments", m.segments,
	}

	if err != nil {
		m.recorder.failedTranscriptions.Add(1)
		m.log.Error("transcription completed with error", append(args, "error", err)...)
		return
	}

	m.log.Info("transcription completed", args...)
}
