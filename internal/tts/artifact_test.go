package tts

import "testing"

func TestArtifactName(t *testing.T) {
	a, b := ArtifactName(EngineKokoro), ArtifactName(EngineKokoro)
	if a == b {
		t.Errorf("ArtifactName() repeated %q", a)
	}
	for _, typ := range KnownEngines {
		if name := ArtifactName(typ); !IsArtifactName(name) {
			t.Errorf("IsArtifactName(%q) = false", name)
		}
	}

	for _, name := range []string{"notes.wav", "kokoro-1-abc.wav", "piper-1-0123abcd.wav", "kokoro-1-0123abcd.wav.download", "cache.index"} {
		if IsArtifactName(name) {
			t.Errorf("IsArtifactName(%q) = true", name)
		}
	}
}
