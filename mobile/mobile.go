// Package mobile is the boundary surface intended for gomobile bind. Every
// exported signature restricts itself to types the bind tool can project
// into Kotlin and Swift, and every call is safe to invoke with stale or null
// handles. The heavy lifting lives in internal/bridge; this package only
// adapts types and owns the process-wide bridge instance.
package mobile

import (
	"log/slog"
	"sync"

	"github.com/voxlay/whisperbridge/internal/assets"
	"github.com/voxlay/whisperbridge/internal/bridge"
	"github.com/voxlay/whisperbridge/internal/engine"
	"github.com/voxlay/whisperbridge/internal/pcm"
	"github.com/voxlay/whisperbridge/internal/telemetry"
)

// AssetReader is implemented on the host side to hand bundled resources
// across the boundary. Paths are slash-separated and relative to the asset
// root of the application package.
type AssetReader interface {
	ReadAsset(path string) ([]byte, error)
}

var (
	mu     sync.Mutex
	shared *bridge.Bridge
)

func sharedBridge() *bridge.Bridge {
	mu.Lock()
	defer mu.Unlock()

	if shared == nil {
		logger := slog.Default().With("component", "mobile")
		backend, err := engine.New(engine.ModeAuto, logger)
		if err != nil {
			logger.Error("engine selection failed; falling back to stub", "error", err)
			backend = engine.NewStubBackend(logger)
		}
		shared = bridge.New(backend, logger, telemetry.NewRecorder(logger))
	}
	return shared
}

// reset tears down the shared bridge. Tests use it to isolate state.
func reset() {
	mu.Lock()
	defer mu.Unlock()

	if shared != nil {
		_ = shared.Close()
		shared = nil
	}
}

// NativeAvailable reports whether this binary carries the whisper.cpp
// backend. When it returns false the bridge serves deterministic stub
// transcripts.
func NativeAvailable() bool {
	return engine.NativeAvailable()
}

// InitContext loads model weights from a filesystem path and returns a
// context handle, or 0 when loading fails.
func InitContext(modelPath string) int64 {
	return sharedBridge().InitContext(modelPath)
}

// InitContextFromAsset loads model weights through the host asset reader and
// returns a context handle, or 0 when loading fails.
func InitContextFromAsset(reader AssetReader, assetPath string) int64 {
	var src assets.Source
	if reader != nil {
		src = assets.ReaderFunc(reader.ReadAsset)
	}
	return sharedBridge().InitContextFromAsset(src, assetPath)
}

// FreeContext releases the context behind handle. Passing 0 is a no-op.
func FreeContext(handle int64) {
	sharedBridge().FreeContext(handle)
}

// FullTranscribe runs a blocking transcription on the context behind handle.
// The buffer holds raw 16-bit little-endian PCM at 16 kHz, mono, with no
// container header. Results are read back with TextSegmentCount and
// TextSegment.
func FullTranscribe(handle int64, numThreads int32, pcm16 []byte) {
	sharedBridge().FullTranscribe(handle, int(numThreads), pcm.Float32FromPCM16(pcm16))
}

// TextSegmentCount returns the number of segments produced by the most
// recent FullTranscribe on the context behind handle.
func TextSegmentCount(handle int64) int {
	return sharedBridge().TextSegmentCount(handle)
}

// TextSegment returns the text of one transcribed segment as UTF-8.
func TextSegment(handle int64, index int) string {
	return sharedBridge().TextSegment(handle, index)
}

// Transcribe is the one-shot compatibility call: load the model at
// modelPath, decode the WAV file at audioPath and return the transcript.
// Failures come back as "Error: ..." strings rather than exceptions so the
// call can never fault across the boundary.
func Transcribe(audioPath, modelPath string) string {
	return sharedBridge().Transcribe(audioPath, modelPath)
}

// Init is retained for callers of the original surface and does nothing.
func Init() {
	sharedBridge().Init()
}

// Cleanup is retained for callers of the original surface and does nothing.
func Cleanup() {
	sharedBridge().Cleanup()
}
