package settings

import "strings"

// Settings is the persisted backend selection exposed at /settings.
type Settings struct {
	OllamaHost string `json:"ollama_host"`
	LLMModel   string `json:"llm_model"`
}

// Normalize trims both fields and drops a trailing slash from the host.
func (s Settings) Normalize() Settings {
	return Settings{
		OllamaHost: strings.TrimRight(strings.TrimSpace(s.OllamaHost), "/"),
		LLMModel:   strings.TrimSpace(s.LLMModel),
	}
}

// Complete reports whether both fields carry a value.
func (s Settings) Complete() bool {
	n := s.Normalize()
	return n.OllamaHost != "" && n.LLMModel != ""
}
