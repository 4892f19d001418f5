package bridgeinfo

// Metadata captures static identifiers for the bridge. Centralising the values
// makes it easy to clone this repository for new bridges.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current bridge.
var Info = Metadata{
	Name:        "Voxlay Whisper Bridge",
	BinaryName:  "whisperbridged",
	Slug:        "whisper-bridge",
	Description: "Boundary bridge exposing whisper.cpp transcription to managed-runtime callers.",
	GeneratorID: "whisper-bridge",
	Version:     "1.0.0",
}

// Version reports the release version of the bridge.
func Version() string {
	return Info.Version
}

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(modelVariant, language string) map[string]string {
	return map[string]string{
		"generator":     Info.GeneratorID,
		"model_variant": modelVariant,
		"language":      language,
	}
}
