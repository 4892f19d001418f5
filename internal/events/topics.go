package events

import "fmt"

// TopicStatus carries the retained daemon liveness marker.
func TopicStatus(prefix string) string {
	return fmt.Sprintf("%s/daemon/status", prefix)
}

// TopicTranscript carries finished transcripts, fanned out by source
// (api, legacy, websocket).
func TopicTranscript(prefix, source string) string {
	return fmt.Sprintf("%s/transcript/%s", prefix, source)
}
