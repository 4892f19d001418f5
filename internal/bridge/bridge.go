// Package bridge exposes the whisper.cpp transcription engine across a
// foreign-function boundary. Integer handles stand in for engine contexts so
// callers on the managed side never hold raw pointers. Calls that name a null
// or unknown handle degrade to logged no-ops with benign defaults, and every
// string crossing the boundary is UTF-8.
package bridge

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/voxlay/whisperbridge/internal/assets"
	"github.com/voxlay/whisperbridge/internal/engine"
	"github.com/voxlay/whisperbridge/internal/pcm"
	"github.com/voxlay/whisperbridge/internal/telemetry"
)

// NullHandle is returned when context initialisation fails. It is never
// issued for a live context.
const NullHandle int64 = 0

// LegacyThreads is the fixed thread count used by the one-shot Transcribe
// entry point.
const LegacyThreads = 4

// Sentinel transcripts returned by the one-shot Transcribe entry point.
// Callers of the original surface match on these exact strings, so they must
// not change.
const (
	LegacyModelLoadError  = "Error: Failed to load model"
	LegacyAudioReadError  = "Error: Failed to read audio file"
	LegacyProcessingError = "Error: Failed to process audio"
)

// IsLegacyError reports whether a transcript returned by Transcribe is one of
// the sentinel error strings rather than real output.
func IsLegacyError(transcript string) bool {
	switch transcript {
	case LegacyModelLoadError, LegacyAudioReadError, LegacyProcessingError:
		return true
	}
	return false
}

// Bridge owns the handle registry and dispatches boundary calls to the
// transcription engine.
type Bridge struct {
	log      *slog.Logger
	backend  engine.Backend
	recorder *telemetry.Recorder

	mu         sync.Mutex
	lastHandle int64
	contexts   map[int64]engine.Context
}

// New constructs a Bridge backed by the given engine backend. The recorder
// may be nil.
func New(backend engine.Backend, logger *slog.Logger, recorder *telemetry.Recorder) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		log:      logger.With("component", "bridge.Bridge"),
		backend:  backend,
		recorder: recorder,
		contexts: make(map[int64]engine.Context),
	}
}

// BackendName reports which engine backend the bridge dispatches to.
func (b *Bridge) BackendName() string {
	return b.backend.Name()
}

// Has reports whether handle names a live context. Unlike the boundary
// operations it neither logs nor counts; it exists for callers that need to
// distinguish "unknown handle" from "no results".
func (b *Bridge) Has(handle int64) bool {
	if handle == NullHandle {
		return false
	}
	b.mu.Lock()
	_, ok := b.contexts[handle]
	b.mu.Unlock()
	return ok
}

// InitContext loads a model from a filesystem path and returns a handle for
// it, or NullHandle when the model cannot be loaded.
func (b *Bridge) InitContext(modelPath string) int64 {
	ctx, err := b.backend.NewContextFromFile(modelPath)
	if err != nil {
		b.log.Warn("context initialisation failed",
			"model_path", modelPath,
			"error", err,
		)
		return NullHandle
	}

	handle := b.store(ctx)
	b.recorder.ContextOpened()
	b.log.Info("context initialised",
		"handle", handle,
		"model_path", modelPath,
	)
	return handle
}

// InitContextFromAsset loads a model shipped inside the application package.
// The asset source resolves the path to raw model bytes; the engine then
// initialises from that in-memory buffer. Returns NullHandle on any failure.
func (b *Bridge) InitContextFromAsset(src assets.Source, assetPath string) int64 {
	if src == nil {
		b.log.Warn("asset source not provided", "asset_path", assetPath)
		return NullHandle
	}

	data, err := src.Open(assetPath)
	if err != nil {
		b.log.Warn("asset read failed",
			"asset_path", assetPath,
			"error", err,
		)
		return NullHandle
	}

	ctx, err := b.backend.NewContextFromBuffer(data)
	if err != nil {
		b.log.Warn("context initialisation from asset failed",
			"asset_path", assetPath,
			"bytes", len(data),
			"error", err,
		)
		return NullHandle
	}

	handle := b.store(ctx)
	b.recorder.ContextOpened()
	b.log.Info("context initialised",
		"handle", handle,
		"asset_path", assetPath,
		"bytes", len(data),
	)
	return handle
}

// FreeContext releases the context behind handle. Passing NullHandle is a
// supported no-op; any other unknown handle is logged and ignored.
func (b *Bridge) FreeContext(handle int64) {
	if handle == NullHandle {
		return
	}

	ctx, ok := b.take(handle)
	if !ok {
		b.invalidHandle("free_context", handle)
		return
	}

	if err := ctx.Close(); err != nil {
		b.log.Warn("context close failed", "handle", handle, "error", err)
	}
	b.recorder.ContextReleased()
	b.log.Info("context released", "handle", handle)
}

// FullTranscribe runs a blocking transcription of the sample buffer on the
// context behind handle. Samples are mono float32 PCM at 16 kHz. Results are
// stored on the context and read back via TextSegmentCount and TextSegment;
// failures are logged and leave the previous results untouched.
func (b *Bridge) FullTranscribe(handle int64, threads int, samples []float32) {
	ctx, ok := b.lookup("full_transcribe", handle)
	if !ok {
		return
	}

	params := engine.DefaultFullParams(threads)
	metrics := b.recorder.StartTranscription("full_transcribe", len(samples))
	b.log.Info("transcription requested",
		"handle", handle,
		"threads", params.Threads,
		"samples", len(samples),
	)

	if err := ctx.Full(params, samples); err != nil {
		metrics.Finish(err)
		b.log.Error("transcription failed", "handle", handle, "error", err)
		return
	}

	metrics.RecordSegments(ctx.SegmentCount())
	metrics.Finish(nil)
}

// TextSegmentCount returns the number of segments produced by the most
// recent FullTranscribe on the context, or zero for an unknown handle or a
// context that has not transcribed yet.
func (b *Bridge) TextSegmentCount(handle int64) int {
	ctx, ok := b.lookup("segment_count", handle)
	if !ok {
		return 0
	}
	return ctx.SegmentCount()
}

// TextSegment returns the text of one segment from the most recent
// FullTranscribe, or the empty string for an unknown handle or an index out
// of range.
func (b *Bridge) TextSegment(handle int64, index int) string {
	ctx, ok := b.lookup("segment_text", handle)
	if !ok {
		return ""
	}
	return ctx.SegmentText(index)
}

// Transcribe is the one-shot compatibility entry point: it loads the model,
// decodes the audio file and returns the full transcript in a single call.
// Failures are reported through sentinel strings instead of errors, and the
// model is loaded fresh and released on every call. The context API above is
// the replacement for new callers.
func (b *Bridge) Transcribe(audioPath, modelPath string) string {
	b.recorder.LegacyCall()

	ctx, err := b.backend.NewContextFromFile(modelPath)
	if err != nil {
		b.log.Error("legacy transcription rejected: model load failed",
			"model_path", modelPath,
			"error", err,
		)
		return LegacyModelLoadError
	}
	defer func() {
		if cerr := ctx.Close(); cerr != nil {
			b.log.Warn("legacy context close failed", "error", cerr)
		}
	}()

	samples, err := pcm.ReadFile(audioPath)
	if err != nil {
		b.log.Error("legacy transcription rejected: audio read failed",
			"audio_path", audioPath,
			"error", err,
		)
		return LegacyAudioReadError
	}
	if len(samples) == 0 {
		b.log.Error("legacy transcription rejected: no audio samples",
			"audio_path", audioPath,
		)
		return LegacyAudioReadError
	}

	metrics := b.recorder.StartTranscription("legacy", len(samples))
	if err := ctx.Full(engine.DefaultFullParams(LegacyThreads), samples); err != nil {
		metrics.Finish(err)
		b.log.Error("legacy transcription failed",
			"audio_path", audioPath,
			"error", err,
		)
		return LegacyProcessingError
	}

	count := ctx.SegmentCount()
	texts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		texts = append(texts, ctx.SegmentText(i))
	}
	metrics.RecordSegments(count)

	transcript := strings.Join(texts, " ")
	metrics.RecordTranscript(transcript)
	metrics.Finish(nil)
	return transcript
}

// Init is retained for callers of the original boundary surface. Engine
// state is created per context, so there is nothing to initialise globally.
func (b *Bridge) Init() {
	b.log.Info("legacy init invoked")
}

// Cleanup is the counterpart of Init and is likewise a no-op.
func (b *Bridge) Cleanup() {
	b.log.Info("legacy cleanup invoked")
}

// Close releases every context still registered with the bridge.
func (b *Bridge) Close() error {
	b.mu.Lock()
	remaining := b.contexts
	b.contexts = make(map[int64]engine.Context)
	b.mu.Unlock()

	for handle, ctx := range remaining {
		if err := ctx.Close(); err != nil {
			b.log.Warn("context close failed", "handle", handle, "error", err)
		}
		b.recorder.ContextReleased()
	}
	if len(remaining) > 0 {
		b.log.Info("released remaining contexts", "count", len(remaining))
	}
	return nil
}

func (b *Bridge) store(ctx engine.Context) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastHandle++
	handle := b.lastHandle
	b.contexts[handle] = ctx
	return handle
}

func (b *Bridge) take(handle int64) (engine.Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, ok := b.contexts[handle]
	if ok {
		delete(b.contexts, handle)
	}
	return ctx, ok
}

func (b *Bridge) lookup(op string, handle int64) (engine.Context, bool) {
	if handle == NullHandle {
		b.invalidHandle(op, handle)
		return nil, false
	}

	b.mu.Lock()
	ctx, ok := b.contexts[handle]
	b.mu.Unlock()
	if !ok {
		b.invalidHandle(op, handle)
		return nil, false
	}
	return ctx, true
}

func (b *Bridge) invalidHandle(op string, handle int64) {
	b.recorder.InvalidHandle()
	b.log.Warn("invalid context handle", "op", op, "handle", handle)
}
