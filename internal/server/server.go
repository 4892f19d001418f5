// Package server is the daemon surface over the bridge: a chi HTTP API and
// a WebSocket stream for the data plane, plus the standard gRPC health
// service for process supervision.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxlay/whisperbridge/internal/assets"
	"github.com/voxlay/whisperbridge/internal/bridge"
	"github.com/voxlay/whisperbridge/internal/bridgeinfo"
	"github.com/voxlay/whisperbridge/internal/config"
	"github.com/voxlay/whisperbridge/internal/engine"
	"github.com/voxlay/whisperbridge/internal/events"
	"github.com/voxlay/whisperbridge/internal/history"
	"github.com/voxlay/whisperbridge/internal/models"
	"github.com/voxlay/whisperbridge/internal/pcm"
	"github.com/voxlay/whisperbridge/internal/telemetry"
)

// maxAudioBytes bounds request bodies and session buffers. A quarter GiB is
// over two hours of 16 kHz PCM16.
const maxAudioBytes = 256 << 20

// Deps bundles the collaborators the daemon surface dispatches to. History,
// Publisher and Assets may be nil.
type Deps struct {
	Bridge    *bridge.Bridge
	Recorder  *telemetry.Recorder
	Manager   *models.Manager
	Manifest  models.Manifest
	History   *history.Store
	Publisher *events.Publisher
	Assets    assets.Source
}

// Server serves the HTTP and WebSocket data plane.
type Server struct {
	cfg  config.Config
	log  *slog.Logger
	deps Deps

	upgrader websocket.Upgrader
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Bridge == nil {
		panic("server: bridge must not be nil")
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"model_variant", cfg.ModelVariant,
		),
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/contexts", s.handleCreateContext)
	r.Delete("/v1/contexts/{handle}", s.handleFreeContext)
	r.Post("/v1/contexts/{handle}/transcribe", s.handleTranscribe)
	r.Get("/v1/contexts/{handle}/segments", s.handleSegments)
	r.Post("/v1/transcribe-file", s.handleTranscribeFile)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/ws/transcribe", s.handleTranscribeSocket)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":          bridgeinfo.Info.Name,
		"version":       bridgeinfo.Version(),
		"backend":       s.deps.Bridge.BackendName(),
		"native":        engine.NativeAvailable(),
		"model_variant": s.cfg.ModelVariant,
		"telemetry":     s.deps.Recorder.Snapshot(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Manager == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "model store unavailable"})
		return
	}

	files, err := s.deps.Manager.List()
	if err != nil {
		s.log.Error("list models failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "model store listing failed"})
		return
	}

	type modelEntry struct {
		File   string  `json:"file"`
		SizeMB float64 `json:"size_mb"`
	}
	entries := make([]modelEntry, 0, len(files))
	for _, file := range files {
		size, err := s.deps.Manager.SizeMB(file)
		if err != nil {
			continue
		}
		entries = append(entries, modelEntry{File: file, SizeMB: size})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": entries})
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelPath string `json:"model_path"`
		Asset     string `json:"asset"`
		Variant   string `json:"variant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	var handle int64
	switch {
	case req.ModelPath != "":
		handle = s.deps.Bridge.InitContext(req.ModelPath)
	case req.Asset != "":
		handle = s.deps.Bridge.InitContextFromAsset(s.deps.Assets, req.Asset)
	case req.Variant != "":
		if s.deps.Manager == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "model store unavailable"})
			return
		}
		path, err := s.deps.Manager.Resolve(s.deps.Manifest, req.Variant, "")
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		handle = s.deps.Bridge.InitContext(path)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "model_path, asset or variant is required"})
		return
	}

	if handle == bridge.NullHandle {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "context initialisation failed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"handle": handle})
}

func (s *Server) handleFreeContext(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.parseHandle(w, r)
	if !ok {
		return
	}
	// Release is benign for unknown handles, so the response is too.
	s.deps.Bridge.FreeContext(handle)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.parseHandle(w, r)
	if !ok {
		return
	}
	if !s.deps.Bridge.Has(handle) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown context handle"})
		return
	}

	threads, ok := s.parseThreads(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "audio payload too large"})
		return
	}

	var samples []float32
	switch format := r.URL.Query().Get("format"); format {
	case "", "wav":
		samples = pcm.Decode(body)
	case "pcm":
		samples = pcm.Float32FromPCM16(body)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "format must be wav or pcm"})
		return
	}
	if len(samples) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "no audio samples"})
		return
	}

	started := time.Now()
	s.deps.Bridge.FullTranscribe(handle, threads, samples)

	segments := s.collectSegments(handle)
	if len(segments) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "transcription produced no segments"})
		return
	}
	text := engine.JoinSegments(segments)
	durationMS := time.Since(started).Milliseconds()

	s.recordTranscript(history.Record{
		Source:     "api",
		Segments:   len(segments),
		DurationMS: durationMS,
		Text:       text,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"handle":      handle,
		"segments":    segments,
		"text":        text,
		"duration_ms": durationMS,
	})
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.parseHandle(w, r)
	if !ok {
		return
	}
	if !s.deps.Bridge.Has(handle) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown context handle"})
		return
	}

	segments := s.collectSegments(handle)
	writeJSON(w, http.StatusOK, map[string]any{
		"handle":   handle,
		"count":    len(segments),
		"segments": segments,
	})
}

func (s *Server) handleTranscribeFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioPath string `json:"audio_path"`
		ModelPath string `json:"model_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.AudioPath == "" || req.ModelPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "audio_path and model_path are required"})
		return
	}

	started := time.Now()
	transcript := s.deps.Bridge.Transcribe(req.AudioPath, req.ModelPath)
	if bridge.IsLegacyError(transcript) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": transcript})
		return
	}

	s.recordTranscript(history.Record{
		Source:     "legacy",
		Model:      req.ModelPath,
		DurationMS: time.Since(started).Milliseconds(),
		Text:       transcript,
	})

	writeJSON(w, http.StatusOK, map[string]any{"text": transcript})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.History.Enabled || s.deps.History == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "history disabled"})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	records, err := s.deps.History.Recent(limit)
	if err != nil {
		s.log.Error("history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "history query failed"})
		return
	}

	type historyEntry struct {
		ID         int64     `json:"id"`
		Session    string    `json:"session,omitempty"`
		Source     string    `json:"source"`
		Model      string    `json:"model,omitempty"`
		DurationMS int64     `json:"duration_ms"`
		Segments   int       `json:"segments"`
		Text       string    `json:"text"`
		CreatedAt  time.Time `json:"created_at"`
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			ID:         rec.ID,
			Session:    rec.Session,
			Source:     rec.Source,
			Model:      rec.Model,
			DurationMS: rec.DurationMS,
			Segments:   rec.Segments,
			Text:       rec.Text,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": entries})
}

// recordTranscript persists and publishes a finished transcript.
// Failures are logged and never surface to the caller.
func (s *Server) recordTranscript(rec history.Record) {
	if rec.Text == "" {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if s.cfg.History.Enabled && s.deps.History != nil {
		if err := s.deps.History.Append(rec); err != nil {
			s.log.Warn("history append failed", "source", rec.Source, "error", err)
		}
	}
	s.deps.Publisher.PublishTranscript(events.TranscriptEvent{
		Session:    rec.Session,
		Source:     rec.Source,
		Model:      rec.Model,
		Segments:   rec.Segments,
		DurationMS: rec.DurationMS,
		Text:       rec.Text,
		CreatedAt:  rec.CreatedAt,
	})
}

func (s *Server) collectSegments(handle int64) []string {
	count := s.deps.Bridge.TextSegmentCount(handle)
	segments := make([]string, 0, count)
	for i := 0; i < count; i++ {
		segments = append(segments, s.deps.Bridge.TextSegment(handle, i))
	}
	return segments
}

func (s *Server) parseHandle(w http.ResponseWriter, r *http.Request) (int64, bool) {
	handle, err := strconv.ParseInt(chi.URLParam(r, "handle"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "handle must be an integer"})
		return 0, false
	}
	return handle, true
}

func (s *Server) parseThreads(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("threads")
	if raw == "" {
		return s.cfg.Threads, true
	}
	threads, err := strconv.Atoi(raw)
	if err != nil || threads < config.MinThreads || threads > config.MaxThreads {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "threads must be an integer between 1 and 16"})
		return 0, false
	}
	return threads, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
