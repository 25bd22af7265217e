package factory

import (
	"fmt"

	"docchat-be/pkg/llm"
	"docchat-be/pkg/llm/gemini"
	"docchat-be/pkg/llm/huggingface"
	"docchat-be/pkg/llm/ollama"
)

type Settings struct {
	Provider    string // "gemini", "ollama" or "huggingface"
	Model       string
	BaseURL     string // ollama / huggingface endpoint override
	GeminiKey   string
	HuggingFace string
}

func NewLLMProvider(s Settings) (llm.LLMProvider, error) {
	switch s.Provider {
	case "gemini":
		if s.GeminiKey == "" {
			return nil, fmt.Errorf("gemini provider requires GOOGLE_GEMINI_API_KEY")
		}
		return gemini.NewGeminiProvider(s.GeminiKey, s.Model), nil
	case "ollama":
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, s.Model), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(s.HuggingFace, s.BaseURL, s.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
