package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	settingsmodel "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
)

// Provider names accepted by LLM_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// ProviderConfig carries the static, non-settings knobs of a backend.
type ProviderConfig struct {
	Provider    string
	APIKey      string
	ArkAPIKey   string
	ArkBaseURL  string
	ArkRegion   string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// NewModelFactory returns a ModelFactory for the configured provider.
// The host in Settings is the Ollama server for "ollama", and the root of an
// OpenAI-compatible API for "openai" ("/v1" is appended when missing).
// "ark" ignores the host and uses the model field as the endpoint id.
func NewModelFactory(cfg ProviderConfig) (ModelFactory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		return cfg.newOllama, nil
	case ProviderOpenAI:
		return cfg.newOpenAI, nil
	case ProviderArk:
		if cfg.ArkAPIKey == "" {
			return nil, fmt.Errorf("ARK_API_KEY is required for provider %q", ProviderArk)
		}
		return cfg.newArk, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func (c ProviderConfig) newOllama(ctx context.Context, s settingsmodel.Settings) (model.BaseChatModel, error) {
	chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: s.OllamaHost,
		Timeout: c.Timeout,
		Model:   s.LLMModel,
	})
	if err != nil {
		return nil, err
	}
	return withCallOptions(chatModel, c.callOptions()), nil
}

func (c ProviderConfig) newOpenAI(_ context.Context, s settingsmodel.Settings) (model.BaseChatModel, error) {
	baseURL := strings.TrimRight(s.OllamaHost, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return NewOpenAIChatModel(OpenAIConfig{
		APIKey:      c.APIKey,
		BaseURL:     baseURL,
		Model:       s.LLMModel,
		Temperature: c.float32Temperature(),
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}), nil
}

func (c ProviderConfig) newArk(ctx context.Context, s settingsmodel.Settings) (model.BaseChatModel, error) {
	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		Model:       s.LLMModel,
		MaxTokens:   c.MaxTokens,
		Temperature: c.float32Temperature(),
	})
}

func (c ProviderConfig) float32Temperature() *float32 {
	if c.Temperature == nil {
		return nil
	}
	val := float32(*c.Temperature)
	return &val
}

func (c ProviderConfig) callOptions() []model.Option {
	var opts []model.Option
	if t := c.float32Temperature(); t != nil {
		opts = append(opts, model.WithTemperature(*t))
	}
	if c.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*c.MaxTokens))
	}
	return opts
}

// optionModel prepends fixed call options to every request.
type optionModel struct {
	inner model.BaseChatModel
	opts  []model.Option
}

func withCallOptions(inner model.BaseChatModel, opts []model.Option) model.BaseChatModel {
	if len(opts) == 0 {
		return inner
	}
	return &optionModel{inner: inner, opts: opts}
}

func (m *optionModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.inner.Generate(ctx, input, append(append([]model.Option(nil), m.opts...), opts...)...)
}

func (m *optionModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.inner.Stream(ctx, input, append(append([]model.Option(nil), m.opts...), opts...)...)
}
