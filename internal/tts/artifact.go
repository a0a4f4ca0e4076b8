package tts

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var artifactPattern = regexp.MustCompile(`^(chatterbox|kokoro|coqui)-\d+-[0-9a-f]{8}\.wav$`)

// ArtifactName returns a collision-free file name for one request's audio.
func ArtifactName(t EngineType) string {
	return fmt.Sprintf("%s-%d-%s.wav", t, time.Now().UnixNano(), uuid.NewString()[:8])
}

// IsArtifactName reports whether name looks like a file from ArtifactName.
func IsArtifactName(name string) bool {
	return artifactPattern.MatchString(name)
}
