package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	settingsmodel "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
)

// ErrEmptyCompletion is returned when the backend answers with no text.
var ErrEmptyCompletion = errors.New("completion backend returned an empty reply")

// Role marks which side of the conversation a turn belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message rendered for the model.
type Turn struct {
	Role    Role
	Content string
}

// Prompt is everything the backend sees for a single reply.
type Prompt struct {
	System string
	Turns  []Turn
}

// ModelFactory builds a chat model for the given host/model selection.
type ModelFactory func(ctx context.Context, s settingsmodel.Settings) (model.BaseChatModel, error)

// SettingsSource exposes the active backend selection.
type SettingsSource interface {
	Current() settingsmodel.Settings
}

type chainKey struct {
	host  string
	model string
}

// Service runs prompts through an eino chain bound to the currently selected model.
// Chains are compiled lazily and cached per host/model pair, so a settings change
// takes effect on the next call.
type Service struct {
	factory  ModelFactory
	settings SettingsSource
	logger   *slog.Logger

	mu     sync.Mutex
	chains map[chainKey]compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance.
func NewService(factory ModelFactory, settings SettingsSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		factory:  factory,
		settings: settings,
		logger:   logger,
		chains:   make(map[chainKey]compose.Runnable[map[string]any, *schema.Message]),
	}
}

// Complete returns the full reply for p.
func (s *Service) Complete(ctx context.Context, p Prompt) (string, error) {
	runnable, current, err := s.runnable(ctx)
	if err != nil {
		return "", err
	}

	response, err := runnable.Invoke(ctx, buildChainInput(p))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		return "", ErrEmptyCompletion
	}

	s.logger.Debug("generated completion", "model", current.LLMModel, "turns", len(p.Turns), "length", len(reply))
	return reply, nil
}

// Stream forwards reply fragments to onDelta as they arrive and returns the
// assembled reply. An error from onDelta aborts the stream.
func (s *Service) Stream(ctx context.Context, p Prompt, onDelta func(string) error) (string, error) {
	runnable, current, err := s.runnable(ctx)
	if err != nil {
		return "", err
	}

	stream, err := runnable.Stream(ctx, buildChainInput(p))
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive stream chunk: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				return "", err
			}
		}
	}

	if len(chunks) == 0 {
		return "", ErrEmptyCompletion
	}
	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("failed to merge stream chunks: %w", err)
	}

	reply := strings.TrimSpace(merged.Content)
	if reply == "" {
		return "", ErrEmptyCompletion
	}

	s.logger.Debug("streamed completion", "model", current.LLMModel, "chunks", len(chunks), "length", len(reply))
	return reply, nil
}

func (s *Service) runnable(ctx context.Context) (compose.Runnable[map[string]any, *schema.Message], settingsmodel.Settings, error) {
	current := s.settings.Current()
	key := chainKey{host: current.OllamaHost, model: current.LLMModel}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.chains[key]; ok {
		return r, current, nil
	}

	chatModel, err := s.factory(ctx, current)
	if err != nil {
		return nil, current, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	r, err := chain.Compile(ctx)
	if err != nil {
		return nil, current, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	s.chains[key] = r
	s.logger.Info("compiled chat chain", "host", current.OllamaHost, "model", current.LLMModel)
	return r, current, nil
}

func buildChainInput(p Prompt) map[string]any {
	return map[string]any{
		"system":  p.System,
		"history": buildHistoryMessages(p.Turns),
	}
}

func buildHistoryMessages(turns []Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
