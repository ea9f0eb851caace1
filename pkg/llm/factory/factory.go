package factory

import (
	"fmt"
	"time"

	"cluster-intelligence-be/pkg/llm"
	"cluster-intelligence-be/pkg/llm/huggingface"
	"cluster-intelligence-be/pkg/llm/langchain"
	"cluster-intelligence-be/pkg/llm/ollama"
)

type Config struct {
	Provider string // ollama | langchain | huggingface | none
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// NewLLMProvider returns nil with no error for provider "none" or "", which
// makes callers use their non-LLM fallback.
func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model, cfg.Timeout), nil
	case "langchain":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return langchain.NewOllama(baseURL, cfg.Model)
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
