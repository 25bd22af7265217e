package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Keys      APIKeys
	Ai        AIConfig
	Chat      ChatConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Port               string `env:"APP_PORT" envDefault:"3000"`
	Environment        string `env:"GO_ENV" envDefault:"development"`
	LogFilePath        string `env:"LOG_FILE_PATH" envDefault:"app.log"`
	CorsAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`
	// Empty NATS_URL or REDIS_URL disables that transport.
	NatsURL  string `env:"NATS_URL"`
	RedisURL string `env:"REDIS_URL"`
	SeedDemo bool   `env:"SEED_DEMO" envDefault:"false"`
}

type APIKeys struct {
	GoogleGemini string `env:"GOOGLE_GEMINI_API_KEY"`
	HuggingFace  string `env:"HUGGINGFACE_API_KEY"`
}

type AIConfig struct {
	LLMProvider        string  `env:"LLM_PROVIDER" envDefault:"ollama"` // "gemini", "ollama" or "huggingface"
	LLMModel           string  `env:"LLM_MODEL" envDefault:"llama3"`
	OllamaBaseURL      string  `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	HuggingFaceBaseURL string  `env:"HUGGINGFACE_BASE_URL"`
	Temperature        float64 `env:"LLM_TEMPERATURE" envDefault:"0.2"`
	MaxTokens          int     `env:"LLM_MAX_TOKENS" envDefault:"1024"`
}

type ChatConfig struct {
	TurnTimeout    time.Duration `env:"TURN_TIMEOUT" envDefault:"60s"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	EventsTopic    string        `env:"EVENTS_TOPIC" envDefault:"docchat.events"`
}

type TelemetryConfig struct {
	Enabled      bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}
	return Parse()
}

// Parse builds the config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Ai.LLMProvider == "gemini" && cfg.Keys.GoogleGemini == "" {
		return nil, fmt.Errorf("parse config: GOOGLE_GEMINI_API_KEY is required for the gemini provider")
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}
