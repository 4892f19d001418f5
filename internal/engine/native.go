//go:build whispercpp

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include <stdlib.h>
#include "include/whisper.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"
)

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return true }

// NativeBackend binds the whisper.cpp C API.
type NativeBackend struct {
	log *slog.Logger
}

// NewNativeBackend returns the whisper.cpp backend.
func NewNativeBackend(logger *slog.Logger) (*NativeBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeBackend{
		log: logger.With("component", "engine.native"),
	}, nil
}

// Name implements the Backend interface.
func (b *NativeBackend) Name() string { return "whispercpp" }

func contextParams() C.struct_whisper_context_params {
	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(false)
	return cParams
}

// NewContextFromFile implements the Backend interface.
func (b *NativeBackend) NewContextFromFile(path string) (Context, error) {
	if path == "" {
		return nil, errors.New("whisper: model path required")
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ctx := C.whisper_init_from_file_with_params(cPath, contextParams())
	if ctx == nil {
		return nil, fmt.Errorf("whisper: failed to initialise context from %s", path)
	}
	b.log.Debug("native context initialised", "model_path", path)
	return &nativeContext{ctx: ctx}, nil
}

// NewContextFromBuffer implements the Backend interface. The model loader
// consumes the buffer during initialisation, so the caller may release it
// as soon as the call returns.
func (b *NativeBackend) NewContextFromBuffer(data []byte) (Context, error) {
	if len(data) == 0 {
		return nil, errors.New("whisper: model buffer is empty")
	}

	ctx := C.whisper_init_from_buffer_with_params(unsafe.Pointer(&data[0]), C.size_t(len(data)), contextParams())
	runtime.KeepAlive(data)
	if ctx == nil {
		return nil, fmt.Errorf("whisper: failed to initialise context from %d byte buffer", len(data))
	}
	b.log.Debug("native context initialised", "buffer_bytes", len(data))
	return &nativeContext{ctx: ctx}, nil
}

type nativeContext struct {
	ctx *C.struct_whisper_context
}

// Full implements the Context interface.
func (c *nativeContext) Full(params FullParams, samples []float32) error {
	if c.ctx == nil {
		return ErrContextClosed
	}
	if len(samples) == 0 {
		return ErrNoAudio
	}

	lang := params.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))

	threads := params.Threads
	if threads < 1 {
		threads = 1
	}

	cParams := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	cParams.print_progress = C.bool(params.PrintProgress)
	cParams.print_special = C.bool(params.PrintSpecial)
	cParams.print_realtime = C.bool(params.PrintRealtime)
	cParams.print_timestamps = C.bool(params.PrintTimestamps)
	cParams.translate = C.bool(params.Translate)
	cParams.language = cLang
	cParams.n_threads = C.int(threads)
	cParams.offset_ms = C.int(params.OffsetMS)
	cParams.duration_ms = C.int(params.DurationMS)
	cParams.single_segment = C.bool(params.SingleSegment)
	cParams.max_tokens = C.int(params.MaxTokens)
	cParams.audio_ctx = C.int(params.AudioCtx)

	ret := C.whisper_full(c.ctx, cParams, (*C.float)(unsafe.Pointer(&samples[0])), C.int(len(samples)))
	runtime.KeepAlive(samples)
	if ret != 0 {
		return fmt.Errorf("whisper: transcription failed with code %d", int(ret))
	}
	return nil
}

// SegmentCount implements the Context interface.
func (c *nativeContext) SegmentCount() int {
	if c.ctx == nil {
		return 0
	}
	return int(C.whisper_full_n_segments(c.ctx))
}

// SegmentText implements the Context interface.
func (c *nativeContext) SegmentText(index int) string {
	if c.ctx == nil || index < 0 || index >= c.SegmentCount() {
		return ""
	}
	cText := C.whisper_full_get_segment_text(c.ctx, C.int(index))
	if cText == nil {
		return ""
	}
	return C.GoString(cText)
}

// Close implements the Context interface.
func (c *nativeContext) Close() error {
	if c.ctx != nil {
		C.whisper_free(c.ctx)
		c.ctx = nil
	}
	return nil
}
