package engine

import "strings"

// CleanSegment normalises one segment of engine output for display or
// persistence: surrounding whitespace is trimmed, runs of whitespace
// collapse to single spaces, and non-speech markers become empty. The
// boundary operations themselves return segment text unmodified; only the
// daemon-side transcript assembly uses these helpers.
func CleanSegment(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if strings.EqualFold(trimmed, "[BLANK_AUDIO]") {
		return ""
	}
	return collapseSpaces(trimmed)
}

// JoinSegments assembles cleaned segments into one transcript, separated
// by single spaces. Segments that clean to empty are skipped.
func JoinSegments(segments []string) string {
	var builder strings.Builder
	for _, segment := range segments {
		cleaned := CleanSegment(segment)
		if cleaned == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(cleaned)
	}
	return builder.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
