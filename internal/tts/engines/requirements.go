package engines

import "github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"

// Requirements lists what an engine needs from the host. It is used for
// dependency reports and never triggers a bootstrap.
type Requirements struct {
	Engine tts.EngineType
	Python string

	// Modules are the import names checked at bootstrap.
	Modules []string

	// Packages are the pip names installed when modules are missing.
	Packages []string

	// Assets are absolute paths of model files the runner reads.
	Assets []string
}

// Requirements reports the engine's host requirements.
func (e *pythonEngine) Requirements() Requirements {
	r := Requirements{
		Engine:   e.engineType,
		Python:   e.cfg.Python,
		Modules:  append([]string(nil), e.modules...),
		Packages: append([]string(nil), e.packages...),
	}
	for _, a := range e.assets {
		r.Assets = append(r.Assets, e.assetPath(a.name))
	}
	return r
}

// FindPython resolves the configured interpreter the way the bootstrap does.
func FindPython(configured string) (string, error) {
	return findPython(configured)
}
