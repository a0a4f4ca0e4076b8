package engines

import "github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"

// Factories returns a constructor for every known engine, all sharing cfg.
func Factories(cfg Config) map[tts.EngineType]tts.Factory {
	return map[tts.EngineType]tts.Factory{
		tts.EngineChatterbox: func() (tts.Engine, error) {
			e, err := NewChatterbox(cfg)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
		tts.EngineKokoro: func() (tts.Engine, error) {
			e, err := NewKokoro(cfg)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
		tts.EngineCoqui: func() (tts.Engine, error) {
			e, err := NewCoqui(cfg)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
	}
}
