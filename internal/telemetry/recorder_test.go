package telemetry

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRecorderSnapshot(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if snapshot := recorder.Snapshot(); snapshot.TotalContexts != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}

	recorder.ContextOpened()
	recorder.ContextOpened()
	recorder.ContextReleased()
	recorder.InvalidHandle()
	recorder.LegacyCall()

	metrics := recorder.StartTranscription("full_transcribe", 16000)
	if metrics == nil {
		t.Fatalf("expected transcription metrics")
	}
	metrics.RecordSegments(3)
	metrics.RecordTranscript("hello world")

	time.Sleep(5 * time.Millisecond)
	metrics.Finish(nil)

	snapshot := recorder.Snapshot()
	if snapshot.TotalContexts != 2 {
		t.Fatalf("unexpected TotalContexts: %d", snapshot.TotalContexts)
	}
	if snapshot.ActiveContexts != 1 {
		t.Fatalf("unexpected ActiveContexts: %d", snapshot.ActiveContexts)
	}
	if snapshot.InvalidHandleCalls != 1 {
		t.Fatalf("unexpected InvalidHandleCalls: %d", snapshot.InvalidHandleCalls)
	}
	if snapshot.LegacyCalls != 1 {
		t.Fatalf("unexpected LegacyCalls: %d", snapshot.LegacyCalls)
	}
	if snapshot.TotalTranscriptions != 1 {
		t.Fatalf("unexpected TotalTranscriptions: %d", snapshot.TotalTranscriptions)
	}
	if snapshot.TotalSegments != 3 {
		t.Fatalf("unexpected TotalSegments: %d", snapshot.TotalSegments)
	}
	if snapshot.TotalSamples != 16000 {
		t.Fatalf("unexpected TotalSamples: %d", snapshot.TotalSamples)
	}
	if snapshot.FailedTranscriptions != 0 {
		t.Fatalf("unexpected FailedTranscriptions: %d", snapshot.FailedTranscriptions)
	}

	metrics.Finish(io.EOF)
	if snapshot2 := recorder.Snapshot(); snapshot2.FailedTranscriptions != 0 {
		t.Fatalf("snapshot changed after duplicate finish: %+v", snapshot2)
	}
}

func TestTranscriptionFinishWithError(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	metrics := recorder.StartTranscription("legacy", 800)
	metrics.Finish(io.EOF)

	snapshot := recorder.Snapshot()
	if snapshot.TotalTranscriptions != 1 {
		t.Fatalf("unexpected transcriptions: %d", snapshot.TotalTranscriptions)
	}
	if snapshot.FailedTranscriptions != 1 {
		t.Fatalf("unexpected failures: %d", snapshot.FailedTranscriptions)
	}
	if snapshot.TotalSegments != 0 {
		t.Fatalf("unexpected segments: %d", snapshot.TotalSegments)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder

	recorder.ContextOpened()
	recorder.ContextReleased()
	recorder.InvalidHandle()
	recorder.LegacyCall()

	metrics := recorder.StartTranscription("full_transcribe", 10)
	if metrics != nil {
		t.Fatalf("expected nil metrics from nil recorder")
	}
	metrics.RecordSegments(1)
	metrics.RecordTranscript("x")
	metrics.Finish(nil)

	if snapshot := recorder.Snapshot(); snapshot != (Snapshot{}) {
		t.Fatalf("unexpected snapshot from nil recorder: %+v", snapshot)
	}
}
