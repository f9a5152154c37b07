package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config 聚合整个服务的配置项。
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server  ServerConfig
	AI      AIConfig
	Storage StorageConfig
	Session SessionConfig
	Parser  ParserConfig
	Events  EventsConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8000"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000,http://localhost:8000,http://127.0.0.1:8000"`
	StaticDir      string   `env:"STATIC_DIR" envDefault:"frontend/build"`

	// Addr 由 Port 推导得到。
	Addr string
}

// AIConfig 描述补全后端配置。OllamaHost 与 Model 只是首次启动时的默认值，
// 运行时以 /settings 中保存的记录为准。
type AIConfig struct {
	Provider           string        `env:"LLM_PROVIDER" envDefault:"ollama"`
	OllamaHost         string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	Model              string        `env:"LLM_MODEL" envDefault:"gemma2"`
	APIKey             string        `env:"LLM_API_KEY"`
	ArkAPIKey          string        `env:"ARK_API_KEY"`
	ArkBaseURL         string        `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion          string        `env:"ARK_REGION" envDefault:"cn-beijing"`
	RawTemperature     string        `env:"LLM_TEMPERATURE"`
	RawMaxTokens       string        `env:"LLM_MAX_TOKENS"`
	Timeout            time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	ContextTokenBudget int           `env:"CONTEXT_TOKEN_BUDGET" envDefault:"0"`

	Temperature *float64
	MaxTokens   *int
}

// StorageConfig 描述本地持久化位置。
type StorageConfig struct {
	SettingsPath string `env:"SETTINGS_PATH" envDefault:"data/settings.db"`
}

// SessionConfig 控制会话过期与清理频率。
type SessionConfig struct {
	IdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10s"`
}

// ParserConfig 追加额外的噪声标记。
type ParserConfig struct {
	NoiseMarkers []string `env:"TRANSCRIPT_NOISE_MARKERS" envSeparator:"|"`
}

// EventsConfig 描述可选的 NATS 事件发布。URL 为空时不发布。
type EventsConfig struct {
	NatsURL       string `env:"NATS_URL"`
	NatsToken     string `env:"NATS_TOKEN"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"transcript"`
}

// Enabled 表示是否配置了 NATS。
func (c EventsConfig) Enabled() bool {
	return strings.TrimSpace(c.NatsURL) != ""
}

var knownProviders = map[string]bool{"ollama": true, "openai": true, "ark": true}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr
	cfg.Server.AllowedOrigins = compact(cfg.Server.AllowedOrigins)
	cfg.Parser.NoiseMarkers = compact(cfg.Parser.NoiseMarkers)

	if err := cfg.AI.normalize(); err != nil {
		return nil, err
	}

	if cfg.Session.IdleTimeout <= 0 {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT value %q: must be positive", cfg.Session.IdleTimeout)
	}
	if cfg.Session.SweepInterval <= 0 {
		return nil, fmt.Errorf("invalid SESSION_SWEEP_INTERVAL value %q: must be positive", cfg.Session.SweepInterval)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg, nil
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func (c *AIConfig) normalize() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if !knownProviders[c.Provider] {
		return fmt.Errorf("invalid LLM_PROVIDER value %q", c.Provider)
	}
	if c.Provider == "ark" && strings.TrimSpace(c.ArkAPIKey) == "" {
		return fmt.Errorf("ARK_API_KEY is required when LLM_PROVIDER=ark")
	}

	temperature, err := parseOptionalFloat("LLM_TEMPERATURE", c.RawTemperature)
	if err != nil {
		return err
	}
	maxTokens, err := parseOptionalInt("LLM_MAX_TOKENS", c.RawMaxTokens)
	if err != nil {
		return err
	}
	c.Temperature = temperature
	c.MaxTokens = maxTokens

	if c.ContextTokenBudget < 0 {
		c.ContextTokenBudget = 0
	}
	return nil
}

func parseOptionalFloat(key, raw string) (*float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalInt(key, raw string) (*int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
