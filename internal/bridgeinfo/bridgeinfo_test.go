package bridgeinfo

import "testing"

func TestMetadata(t *testing.T) {
	t.Run("version", func(t *testing.T) {
		if Version() == "" {
			t.Fatal("Version() returned empty string")
		}
		if Version() != Info.Version {
			t.Fatalf("Version() mismatch: got %q want %q", Version(), Info.Version)
		}
	})

	expect := Metadata{
		Name:        "Voxlay Whisper Bridge",
		BinaryName:  "whisperbridged",
		Slug:        "whisper-bridge",
		Description: "Boundary bridge exposing whisper.cpp transcription to managed-runtime callers.",
		GeneratorID: "whisper-bridge",
		Version:     "1.0.0",
	}

	if Info != expect {
		t.Fatalf("unexpected Info metadata: %+v", Info)
	}
}

func TestTranscriptMetadata(t *testing.T) {
	meta := TranscriptMetadata("base", "en")
	if meta["generator"] != Info.GeneratorID {
		t.Fatalf("generator mismatch: %q", meta["generator"])
	}
	if meta["model_variant"] != "base" {
		t.Fatalf("model_variant mismatch: %q", meta["model_variant"])
	}
	if meta["language"] != "en" {
		t.Fatalf("language mismatch: %q", meta["language"])
	}
}
