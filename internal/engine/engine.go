// Package engine defines the C-style contract of the native transcription
// library and its implementations: a cgo whisper.cpp binding compiled in
// behind the whispercpp build tag, and a deterministic stub backend used
// when the native library is absent.
package engine

import "errors"

// SampleRate is the input sample rate the engine expects, in Hz.
const SampleRate = 16000

// DefaultLanguage is the fixed source-language hint passed to the engine.
const DefaultLanguage = "en"

var (
	// ErrNativeUnavailable indicates the native backend is not compiled in.
	ErrNativeUnavailable = errors.New("engine: native backend unavailable")
	// ErrContextClosed indicates an operation on a closed context.
	ErrContextClosed = errors.New("engine: context closed")
	// ErrNoAudio indicates a transcription call with no samples.
	ErrNoAudio = errors.New("engine: no audio samples")
)

// Backend loads model weights and produces transcription contexts.
type Backend interface {
	// Name identifies the backend implementation.
	Name() string
	// NewContextFromFile loads a model from a file path.
	NewContextFromFile(path string) (Context, error)
	// NewContextFromBuffer loads a model from an in-memory buffer. The
	// buffer is fully consumed before the call returns; the caller may
	// release it immediately afterwards.
	NewContextFromBuffer(data []byte) (Context, error)
}

// Context is one loaded model instance. A context supports repeated
// transcription calls; each call overwrites the previous segment results.
// Callers must not run concurrent transcriptions on the same context.
type Context interface {
	// Full runs a synchronous transcription over the samples. It blocks
	// the calling goroutine until the engine completes; there is no
	// cancellation once started. The sample slice is read-only for the
	// duration of the call.
	Full(params FullParams, samples []float32) error
	// SegmentCount reports the number of segments produced by the most
	// recent Full call, 0 before the first call.
	SegmentCount() int
	// SegmentText returns the text of one segment, or "" when the index
	// is out of range. The returned string is a copy and remains valid
	// after further calls.
	SegmentText(index int) string
	// Close releases the engine-internal state. Close is idempotent.
	Close() error
}

// FullParams carries the decoding configuration for one transcription
// call. The bridge passes a fixed configuration in which only the thread
// count varies; sampling is always greedy.
type FullParams struct {
	Threads         int
	Language        string
	Translate       bool
	PrintProgress   bool
	PrintSpecial    bool
	PrintRealtime   bool
	PrintTimestamps bool
	OffsetMS        int
	DurationMS      int
	SingleSegment   bool
	MaxTokens       int
	AudioCtx        int
}

// DefaultFullParams returns the fixed decoding configuration: greedy
// sampling, all printing disabled, no translation, the default language
// hint, multi-segment output, uncapped tokens, engine-default audio
// context, and the requested thread count floored at one.
func DefaultFullParams(threads int) FullParams {
	if threads < 1 {
		threads = 1
	}
	return FullParams{
		Threads:  threads,
		Language: DefaultLanguage,
	}
}
