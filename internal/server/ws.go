package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxlay/whisperbridge/internal/bridge"
	"github.com/voxlay/whisperbridge/internal/engine"
	"github.com/voxlay/whisperbridge/internal/history"
	"github.com/voxlay/whisperbridge/internal/pcm"
)

// socketCommand is a client control frame. Audio arrives as binary frames
// and is buffered until a flush command.
type socketCommand struct {
	Event string `json:"event"`
}

// socketResult is sent back after every flush.
type socketResult struct {
	Type     string `json:"type"`
	Session  string `json:"session"`
	Text     string `json:"text"`
	Segments int    `json:"segments"`
	Final    bool   `json:"final"`
}

type socketError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleTranscribeSocket streams PCM16 audio over a WebSocket. Binary frames
// accumulate audio, {"event":"flush"} transcribes the buffer and returns a
// result frame, {"event":"close"} ends the session.
func (s *Server) handleTranscribeSocket(w http.ResponseWriter, r *http.Request) {
	modelPath := r.URL.Query().Get("model_path")
	if modelPath == "" {
		if s.deps.Manager == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "model store unavailable"})
			return
		}
		resolved, err := s.deps.Manager.Resolve(s.deps.Manifest, s.cfg.ModelVariant, s.cfg.ModelPath)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		modelPath = resolved
	}

	threads, ok := s.parseThreads(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	log := s.log.With("session", session)

	handle := s.deps.Bridge.InitContext(modelPath)
	if handle == bridge.NullHandle {
		_ = conn.WriteJSON(socketError{Type: "error", Error: "context initialisation failed"})
		return
	}
	defer s.deps.Bridge.FreeContext(handle)

	log.Info("websocket session started", "model_path", modelPath, "threads", threads)

	var buffer []byte
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket session aborted", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if len(buffer)+len(payload) > maxAudioBytes {
				_ = conn.WriteJSON(socketError{Type: "error", Error: "audio buffer limit exceeded"})
				return
			}
			buffer = append(buffer, payload...)

		case websocket.TextMessage:
			var cmd socketCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				_ = conn.WriteJSON(socketError{Type: "error", Error: "invalid command"})
				continue
			}
			switch cmd.Event {
			case "flush":
				s.flushSocketBuffer(conn, log, session, handle, threads, buffer)
				buffer = buffer[:0]
			case "close":
				log.Info("websocket session closed")
				return
			default:
				_ = conn.WriteJSON(socketError{Type: "error", Error: "unknown event"})
			}
		}
	}
}

func (s *Server) flushSocketBuffer(conn *websocket.Conn, log *slog.Logger, session string, handle int64, threads int, buffer []byte) {
	samples := pcm.Float32FromPCM16(buffer)
	if len(samples) == 0 {
		_ = conn.WriteJSON(socketError{Type: "error", Error: "no audio samples buffered"})
		return
	}

	started := time.Now()
	s.deps.Bridge.FullTranscribe(handle, threads, samples)

	segments := s.collectSegments(handle)
	if len(segments) == 0 {
		_ = conn.WriteJSON(socketError{Type: "error", Error: "transcription produced no segments"})
		return
	}
	text := engine.JoinSegments(segments)

	s.recordTranscript(history.Record{
		Session:    session,
		Source:     "websocket",
		Segments:   len(segments),
		DurationMS: time.Since(started).Milliseconds(),
		Text:       text,
	})

	if err := conn.WriteJSON(socketResult{
		Type:     "result",
		Session:  session,
		Text:     text,
		Segments: len(segments),
		Final:    true,
	}); err != nil {
		log.Warn("websocket result write failed", "error", err)
	}
}
